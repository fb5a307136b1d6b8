// Package speech provides the text-to-speech service and the placeholder
// speech-to-text service exposed over the bridge channels.
//
// TTS wraps a platform synthesizer ([Engine]) with an explicit lifecycle:
// Uninitialized, Initializing, then Ready or Failed. STT only reports
// listening state changes; no recognition is performed.
package speech

import (
	"context"
	"errors"
)

// Errors reported by engines.
var (
	// ErrLanguageUnavailable is returned by Engine.SetLanguage when the
	// requested voice data is missing or unsupported.
	ErrLanguageUnavailable = errors.New("speech: language unavailable")

	// ErrEngineClosed is returned after Shutdown.
	ErrEngineClosed = errors.New("speech: engine shut down")
)

// DefaultLanguage is the BCP 47 tag used for synthesis.
const DefaultLanguage = "en-US"

// Default prosody, as multipliers of the engine's normal rate and pitch.
const (
	DefaultSpeechRate = 0.8
	DefaultPitch      = 1.0
)

// Engine is a platform speech synthesizer.
type Engine interface {
	// Init prepares the engine. It may block until the platform is ready.
	Init(ctx context.Context) error

	// SetLanguage selects the voice for a language tag.
	SetLanguage(tag string) error

	// SetRate sets the speech rate multiplier (1.0 is normal).
	SetRate(rate float64)

	// SetPitch sets the pitch multiplier (1.0 is normal).
	SetPitch(pitch float64)

	// Speak flushes anything queued and starts speaking text. It returns
	// once playback has started.
	Speak(ctx context.Context, text, utteranceID string) error

	// Stop interrupts the current utterance.
	Stop() error

	// Shutdown stops and releases the engine.
	Shutdown() error
}
