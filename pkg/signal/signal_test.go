package signal

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"

	"example.com/trigger_bridge/pkg/trigger"
)

func TestTriggerEvent(t *testing.T) {
	msg, err := TriggerEvent("alice", "", trigger.Failure(errors.New("mic")))
	if err != nil {
		t.Fatalf("TriggerEvent: %v", err)
	}
	if msg.Type != TypeTriggerEvent || msg.ClientID != "alice" {
		t.Fatalf("unexpected message %+v", msg)
	}

	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"trigger_event","client_id":"alice","event":{"type":"error","error":"mic"}}`
	if string(b) != want {
		t.Fatalf("expected %s, got %s", want, b)
	}
}

func TestNewPeerConnection(t *testing.T) {
	pc, err := NewPeerConnection()
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	defer pc.Close()

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		t.Fatalf("AddTransceiverFromKind: %v", err)
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if !strings.Contains(offer.SDP, "opus/48000/2") {
		t.Fatalf("expected opus in offer:\n%s", offer.SDP)
	}
}
