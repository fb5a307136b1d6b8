package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/andresmejia3/recallme/internal/utils"
)

// DefaultCommand is the synthesizer driven by ExecEngine.
const DefaultCommand = "espeak-ng"

// Base prosody of espeak-ng.
const (
	baseWordsPerMinute = 175
	basePitch          = 50
)

// ExecEngine drives an espeak-compatible command-line synthesizer. Each
// utterance is one child process; speaking again or stopping kills the
// previous one.
type ExecEngine struct {
	Command string

	mu     sync.Mutex
	path   string
	voice  string
	rate   float64
	pitch  float64
	cancel context.CancelFunc // stops the running utterance
	closed bool
}

var _ Engine = (*ExecEngine)(nil)

// NewExecEngine creates an engine for command (DefaultCommand if empty).
func NewExecEngine(command string) *ExecEngine {
	if command == "" {
		command = DefaultCommand
	}
	return &ExecEngine{Command: command, rate: 1.0, pitch: 1.0}
}

// Init resolves the synthesizer binary.
func (e *ExecEngine) Init(ctx context.Context) error {
	path, err := exec.LookPath(e.Command)
	if err != nil {
		return fmt.Errorf("speech: synthesizer %q not found: %w", e.Command, err)
	}
	e.mu.Lock()
	e.path = path
	e.closed = false
	e.mu.Unlock()
	return nil
}

// SetLanguage selects the espeak voice for tag ("en-US" -> "en-us") after
// checking the synthesizer lists it.
func (e *ExecEngine) SetLanguage(tag string) error {
	voice := strings.ToLower(tag)
	e.mu.Lock()
	path := e.path
	e.mu.Unlock()
	if path == "" {
		return ErrEngineClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	lang, _, _ := strings.Cut(voice, "-")
	out, err := utils.NewSafeCommand(ctx, path, "--voices="+lang).Output()
	if err != nil {
		return fmt.Errorf("speech: listing voices: %w", err)
	}
	if !hasVoice(string(out), voice) {
		return fmt.Errorf("%w: %s", ErrLanguageUnavailable, tag)
	}

	e.mu.Lock()
	e.voice = voice
	e.mu.Unlock()
	return nil
}

// hasVoice reports whether the language column of an espeak --voices
// listing contains voice.
func hasVoice(listing, voice string) bool {
	for _, line := range strings.Split(listing, "\n") {
		fields := strings.Fields(line)
		// Pty Language Age/Gender VoiceName File Other
		if len(fields) >= 2 && strings.EqualFold(fields[1], voice) {
			return true
		}
	}
	return false
}

func (e *ExecEngine) SetRate(rate float64) {
	e.mu.Lock()
	e.rate = rate
	e.mu.Unlock()
}

func (e *ExecEngine) SetPitch(pitch float64) {
	e.mu.Lock()
	e.pitch = pitch
	e.mu.Unlock()
}

// args builds the synthesizer arguments for one utterance.
func (e *ExecEngine) args(text string) []string {
	wpm := int(baseWordsPerMinute * e.rate)
	pitch := min(max(int(basePitch*e.pitch), 0), 99)
	args := []string{"-s", strconv.Itoa(wpm), "-p", strconv.Itoa(pitch)}
	if e.voice != "" {
		args = append(args, "-v", e.voice)
	}
	return append(args, "--", text)
}

// Speak kills any running utterance and starts a new one.
func (e *ExecEngine) Speak(ctx context.Context, text, utteranceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.path == "" {
		return ErrEngineClosed
	}
	e.stopLocked()

	// The utterance outlives the request that started it.
	uctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := utils.NewSafeCommand(uctx, e.path, e.args(text)...)
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("speech: starting utterance %s: %w", utteranceID, err)
	}
	e.cancel = cancel

	go func() {
		err := cmd.Wait()
		interrupted := uctx.Err() != nil
		cancel()
		if err != nil && !interrupted {
			slog.Warn("speech: utterance failed", "utterance", utteranceID, "error", err, "stderr", cmd.Stderr.String())
			return
		}
		slog.Debug("speech: utterance done", "utterance", utteranceID)
	}()
	return nil
}

func (e *ExecEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	return nil
}

func (e *ExecEngine) stopLocked() {
	if e.cancel != nil {
		e.cancel()
	}
	e.cancel = nil
}

func (e *ExecEngine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	e.closed = true
	e.path = ""
	return nil
}
