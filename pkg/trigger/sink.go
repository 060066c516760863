package trigger

// Sink receives the events of one gate. It has a single producer and a
// single consumer; Complete and Error end the stream.
type Sink interface {
	// Next delivers a Begin or Word event
	Next(event Event)

	// Error ends the stream with an engine failure
	Error(err error)

	// Complete ends the stream normally
	Complete()

	// Cancelled reports whether the subscriber stopped listening
	Cancelled() bool
}
