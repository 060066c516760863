// Package config loads agent and server settings through viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"example.com/trigger_bridge/pkg/trigger"
)

// Supported recognition engines
const (
	EngineVosk       = "vosk"
	EngineDeepgram   = "deepgram"
	EngineAssemblyAI = "assemblyai"
)

// Config holds the settings of the trigger agent
type Config struct {
	TriggerWord    string
	CompletePolicy trigger.CompletePolicy

	Engine           string
	VoskURL          string
	DeepgramAPIKey   string
	AssemblyAIAPIKey string
	SampleRate       int

	RecognizerTimeout time.Duration
	RetryDelay        time.Duration
	FinishTimeout     time.Duration

	AgentID   string
	Room      string
	ServerURL string
	Port      int
	LogLevel  string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("complete_policy", "always")
	v.SetDefault("engine", EngineVosk)
	v.SetDefault("vosk_url", "ws://localhost:2700")
	v.SetDefault("sample_rate", 16000)
	v.SetDefault("recognizer_timeout", 10*time.Second)
	v.SetDefault("retry_delay", time.Second)
	v.SetDefault("finish_timeout", 5*time.Second)
	v.SetDefault("room", "trigger-room")
	v.SetDefault("server_url", "ws://localhost:8080/ws")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
}

// New returns a viper instance reading trigger.yaml and TRIGGER_* variables.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("trigger")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("trigger")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// ReadFile reads the config file if one exists.
func ReadFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Load builds a validated Config from v.
func Load(v *viper.Viper) (Config, error) {
	policy, err := trigger.ParseCompletePolicy(v.GetString("complete_policy"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		TriggerWord:       strings.TrimSpace(v.GetString("trigger_word")),
		CompletePolicy:    policy,
		Engine:            strings.ToLower(strings.TrimSpace(v.GetString("engine"))),
		VoskURL:           v.GetString("vosk_url"),
		DeepgramAPIKey:    v.GetString("deepgram_api_key"),
		AssemblyAIAPIKey:  v.GetString("assemblyai_api_key"),
		SampleRate:        v.GetInt("sample_rate"),
		RecognizerTimeout: v.GetDuration("recognizer_timeout"),
		RetryDelay:        v.GetDuration("retry_delay"),
		FinishTimeout:     v.GetDuration("finish_timeout"),
		AgentID:           v.GetString("agent_id"),
		Room:              v.GetString("room"),
		ServerURL:         v.GetString("server_url"),
		Port:              v.GetInt("port"),
		LogLevel:          v.GetString("log_level"),
	}
	if cfg.AgentID == "" {
		cfg.AgentID = "trigger-" + uuid.NewString()[:8]
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := trigger.ValidateTriggerWord(c.TriggerWord); err != nil {
		return err
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", c.SampleRate)
	}

	switch c.Engine {
	case EngineVosk:
		if c.VoskURL == "" {
			return errors.New("vosk_url is required for the vosk engine")
		}
	case EngineDeepgram:
		if c.DeepgramAPIKey == "" {
			return errors.New("deepgram_api_key is required for the deepgram engine")
		}
	case EngineAssemblyAI:
		if c.AssemblyAIAPIKey == "" {
			return errors.New("assemblyai_api_key is required for the assemblyai engine")
		}
	default:
		return fmt.Errorf("unknown engine: %s", c.Engine)
	}
	return nil
}
