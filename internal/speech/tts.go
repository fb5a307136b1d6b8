package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// State is the TTS lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// TTSConfig holds the initial synthesis settings.
type TTSConfig struct {
	Language string
	Rate     float64
	Pitch    float64
}

func (c *TTSConfig) defaults() {
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.Rate == 0 {
		c.Rate = DefaultSpeechRate
	}
	if c.Pitch == 0 {
		c.Pitch = DefaultPitch
	}
}

// initRequest is the single outstanding initialization. done is closed once
// ok is final.
type initRequest struct {
	done chan struct{}
	ok   bool
}

// TTS is the text-to-speech service behind the tts channel.
type TTS struct {
	engine   Engine
	language string

	// setupMu serializes engine setup across generations.
	setupMu sync.Mutex

	mu      sync.Mutex
	state   State
	pending *initRequest // non-nil only while Initializing
	gen     int          // bumped by Shutdown so stale initializations are ignored
	rate    float64
	pitch   float64
}

// NewTTS creates a service over engine. Call Start to begin initialization.
func NewTTS(engine Engine, cfg TTSConfig) *TTS {
	cfg.defaults()
	return &TTS{
		engine:   engine,
		language: cfg.Language,
		rate:     cfg.Rate,
		pitch:    cfg.Pitch,
	}
}

// State returns the current lifecycle state.
func (t *TTS) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start begins initialization if it has not started yet. It does not wait.
func (t *TTS) Start(ctx context.Context) {
	t.mu.Lock()
	t.startLocked(ctx)
	t.mu.Unlock()
}

// startLocked returns the pending request, creating it when Uninitialized.
// It returns nil when the outcome is already known.
func (t *TTS) startLocked(ctx context.Context) *initRequest {
	switch t.state {
	case StateInitializing:
		return t.pending
	case StateReady, StateFailed:
		return nil
	}
	req := &initRequest{done: make(chan struct{})}
	t.state = StateInitializing
	t.pending = req
	go t.initialize(context.WithoutCancel(ctx), req, t.gen)
	return req
}

func (t *TTS) initialize(ctx context.Context, req *initRequest, gen int) {
	t.setupMu.Lock()
	ran, ok := t.current(gen), false
	if ran {
		ok = t.setup(ctx)
	}

	t.mu.Lock()
	stale := gen != t.gen
	if !stale {
		if ok {
			t.state = StateReady
		} else {
			t.state = StateFailed
		}
		t.pending = nil
	}
	t.mu.Unlock()

	// Shutdown ran while the engine was coming up; leave it shut down.
	if stale && ran {
		if err := t.engine.Shutdown(); err != nil {
			slog.Warn("tts: shutdown failed", "error", err)
		}
	}
	t.setupMu.Unlock()

	req.ok = ok && !stale
	close(req.done)
}

func (t *TTS) current(gen int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return gen == t.gen
}

func (t *TTS) setup(ctx context.Context) bool {
	if err := t.engine.Init(ctx); err != nil {
		slog.Error("tts: engine init failed", "error", err)
		return false
	}
	if err := t.engine.SetLanguage(t.language); err != nil {
		if errors.Is(err, ErrLanguageUnavailable) {
			slog.Error("tts: language not supported", "language", t.language)
		} else {
			slog.Error("tts: set language failed", "language", t.language, "error", err)
		}
		return false
	}

	t.mu.Lock()
	rate, pitch := t.rate, t.pitch
	t.mu.Unlock()
	t.engine.SetRate(rate)
	t.engine.SetPitch(pitch)
	slog.Info("tts: ready", "language", t.language, "rate", rate, "pitch", pitch)
	return true
}

// Initialize reports whether the engine is usable, waiting for a pending
// initialization (starting one if needed). A cancelled ctx reports false
// without affecting the initialization itself.
func (t *TTS) Initialize(ctx context.Context) bool {
	t.mu.Lock()
	switch t.state {
	case StateReady:
		t.mu.Unlock()
		return true
	case StateFailed:
		t.mu.Unlock()
		return false
	}
	req := t.startLocked(ctx)
	t.mu.Unlock()

	select {
	case <-req.done:
		return req.ok
	case <-ctx.Done():
		return false
	}
}

// Speak flushes the queue and speaks text. Empty text and calls made before
// the engine is ready are ignored. The channel always reports success.
func (t *TTS) Speak(ctx context.Context, text string) bool {
	if text == "" || t.State() != StateReady {
		return true
	}
	id := uuid.NewString()
	if err := t.engine.Speak(ctx, text, id); err != nil {
		slog.Warn("tts: speak failed", "utterance", id, "error", err)
	}
	return true
}

// Stop interrupts the current utterance.
func (t *TTS) Stop() bool {
	if err := t.engine.Stop(); err != nil {
		slog.Warn("tts: stop failed", "error", err)
	}
	return true
}

// SetSpeechRate sets the rate multiplier, remembered across initialization.
func (t *TTS) SetSpeechRate(rate float64) bool {
	t.mu.Lock()
	t.rate = rate
	t.mu.Unlock()
	t.engine.SetRate(rate)
	return true
}

// SetPitch sets the pitch multiplier, remembered across initialization.
func (t *TTS) SetPitch(pitch float64) bool {
	t.mu.Lock()
	t.pitch = pitch
	t.mu.Unlock()
	t.engine.SetPitch(pitch)
	return true
}

// Shutdown stops speech and releases the engine. A later Initialize starts
// over.
func (t *TTS) Shutdown() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.engine.Stop(); err != nil {
		slog.Warn("tts: stop failed", "error", err)
	}
	if err := t.engine.Shutdown(); err != nil {
		slog.Warn("tts: shutdown failed", "error", err)
	}

	t.gen++
	// An in-flight initialization resolves its waiters with false.
	t.pending = nil
	t.state = StateUninitialized
	return true
}
