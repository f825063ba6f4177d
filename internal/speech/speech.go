// Package speech is the gateway's client to the upstream streaming
// speech-recognition provider. Each Session is one live recognizer stream:
// raw audio goes in, transcript events come out on a channel until the
// session ends.
package speech

import "context"

// Event is one recognition event from an upstream session. When Err is set
// the session has failed and the events channel is closed afterward.
type Event struct {
	Text       string
	IsFinal    bool
	Confidence float64
	Err        error
}

// SessionConfig describes the audio a session will receive.
type SessionConfig struct {
	// Encoding of the raw audio, e.g. "linear16".
	Encoding string
	// SampleRate in Hz.
	SampleRate int
	// Channels of audio.
	Channels int
	// InterimResults requests partial hypotheses before each final.
	InterimResults bool
}

// DefaultSessionConfig matches the relay's wire contract: PCM16 mono 16kHz.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Encoding:       "linear16",
		SampleRate:     16000,
		Channels:       1,
		InterimResults: true,
	}
}

// Session is one live streaming-recognition session.
type Session interface {
	// SendAudio forwards one chunk of raw audio upstream.
	SendAudio(p []byte) error
	// Events returns the channel of recognition events. It is closed when
	// the session ends, after a terminal Err event if the session failed.
	Events() <-chan Event
	// Close finalizes the session and releases its connection. Safe to call
	// more than once.
	Close() error
}

// Recognizer opens streaming recognition sessions.
type Recognizer interface {
	OpenSession(ctx context.Context, cfg SessionConfig) (Session, error)
}
