package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeEngine records calls. Init blocks on gate when it is non-nil.
type fakeEngine struct {
	mu        sync.Mutex
	gate      chan struct{}
	initErr   error
	langErr   error
	language  string
	rate      float64
	pitch     float64
	spoken    []string
	ids       []string
	stops     int
	shutdowns int
	inits     int
	live      bool
}

func (f *fakeEngine) Init(ctx context.Context) error {
	f.mu.Lock()
	f.inits++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr == nil {
		f.live = true
	}
	return f.initErr
}

func (f *fakeEngine) SetLanguage(tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.langErr != nil {
		return f.langErr
	}
	f.language = tag
	return nil
}

func (f *fakeEngine) SetRate(rate float64) {
	f.mu.Lock()
	f.rate = rate
	f.mu.Unlock()
}

func (f *fakeEngine) SetPitch(pitch float64) {
	f.mu.Lock()
	f.pitch = pitch
	f.mu.Unlock()
}

func (f *fakeEngine) Speak(ctx context.Context, text, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	f.ids = append(f.ids, id)
	return nil
}

func (f *fakeEngine) Stop() error {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Shutdown() error {
	f.mu.Lock()
	f.shutdowns++
	f.live = false
	f.mu.Unlock()
	return nil
}

func TestTTSInitializeReady(t *testing.T) {
	eng := &fakeEngine{}
	tts := NewTTS(eng, TTSConfig{})

	if tts.State() != StateUninitialized {
		t.Fatalf("Expected uninitialized, got %s", tts.State())
	}
	if !tts.Initialize(context.Background()) {
		t.Fatal("Expected initialize to succeed")
	}
	if tts.State() != StateReady {
		t.Errorf("Expected ready, got %s", tts.State())
	}
	if eng.language != DefaultLanguage {
		t.Errorf("Expected language %s, got %s", DefaultLanguage, eng.language)
	}
	if eng.rate != DefaultSpeechRate || eng.pitch != DefaultPitch {
		t.Errorf("Expected default prosody applied, got rate=%v pitch=%v", eng.rate, eng.pitch)
	}

	// Already ready: no second engine init
	if !tts.Initialize(context.Background()) {
		t.Error("Expected second initialize to report true")
	}
	if eng.inits != 1 {
		t.Errorf("Expected 1 engine init, got %d", eng.inits)
	}
}

func TestTTSInitializeFailures(t *testing.T) {
	tests := []struct {
		name string
		eng  *fakeEngine
	}{
		{"engine init error", &fakeEngine{initErr: errors.New("no audio")}},
		{"language missing", &fakeEngine{langErr: fmt.Errorf("%w: en-US", ErrLanguageUnavailable)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tts := NewTTS(tt.eng, TTSConfig{})
			if tts.Initialize(context.Background()) {
				t.Fatal("Expected initialize to fail")
			}
			if tts.State() != StateFailed {
				t.Errorf("Expected failed, got %s", tts.State())
			}
			// Failed is terminal until shutdown; later calls answer immediately.
			if tts.Initialize(context.Background()) {
				t.Error("Expected false on repeated initialize")
			}
		})
	}
}

func TestTTSConcurrentInitializeShareOneRequest(t *testing.T) {
	eng := &fakeEngine{gate: make(chan struct{})}
	tts := NewTTS(eng, TTSConfig{})
	tts.Start(context.Background())

	if tts.State() != StateInitializing {
		t.Fatalf("Expected initializing, got %s", tts.State())
	}

	var wg sync.WaitGroup
	results := make([]bool, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = tts.Initialize(context.Background())
		}(i)
	}

	close(eng.gate)
	wg.Wait()

	for i, ok := range results {
		if !ok {
			t.Errorf("Waiter %d got false", i)
		}
	}
	if eng.inits != 1 {
		t.Errorf("Expected 1 engine init, got %d", eng.inits)
	}
}

func TestTTSInitializeContextCancelled(t *testing.T) {
	eng := &fakeEngine{gate: make(chan struct{})}
	defer close(eng.gate)
	tts := NewTTS(eng, TTSConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if tts.Initialize(ctx) {
		t.Error("Expected false when the caller gives up")
	}
	if tts.State() != StateInitializing {
		t.Errorf("Expected initialization to keep running, got %s", tts.State())
	}
}

func TestTTSSpeak(t *testing.T) {
	eng := &fakeEngine{}
	tts := NewTTS(eng, TTSConfig{})

	// Before ready: ignored but still reported as success
	if !tts.Speak(context.Background(), "hello") {
		t.Error("Expected speak to report true")
	}
	if len(eng.spoken) != 0 {
		t.Fatalf("Expected nothing spoken before ready, got %v", eng.spoken)
	}

	tts.Initialize(context.Background())
	tts.Speak(context.Background(), "")
	tts.Speak(context.Background(), "hello")
	tts.Speak(context.Background(), "again")

	if len(eng.spoken) != 2 || eng.spoken[0] != "hello" {
		t.Fatalf("Expected two utterances, got %v", eng.spoken)
	}
	if eng.ids[0] == "" || eng.ids[0] == eng.ids[1] {
		t.Errorf("Expected distinct utterance IDs, got %v", eng.ids)
	}
}

func TestTTSProsodyAndShutdown(t *testing.T) {
	eng := &fakeEngine{}
	tts := NewTTS(eng, TTSConfig{})

	// Settings made before initialization survive it
	tts.SetSpeechRate(1.5)
	tts.SetPitch(0.7)
	tts.Initialize(context.Background())
	if eng.rate != 1.5 || eng.pitch != 0.7 {
		t.Errorf("Expected rate=1.5 pitch=0.7, got rate=%v pitch=%v", eng.rate, eng.pitch)
	}

	tts.Stop()
	if eng.stops != 1 {
		t.Errorf("Expected 1 stop, got %d", eng.stops)
	}

	tts.Shutdown()
	if tts.State() != StateUninitialized {
		t.Errorf("Expected uninitialized after shutdown, got %s", tts.State())
	}
	if eng.shutdowns != 1 {
		t.Errorf("Expected 1 engine shutdown, got %d", eng.shutdowns)
	}

	// Re-initialization starts over
	if !tts.Initialize(context.Background()) || eng.inits != 2 {
		t.Errorf("Expected re-initialization, got inits=%d", eng.inits)
	}
}

func TestTTSShutdownDuringInitialize(t *testing.T) {
	eng := &fakeEngine{gate: make(chan struct{})}
	tts := NewTTS(eng, TTSConfig{})

	done := make(chan bool)
	go func() { done <- tts.Initialize(context.Background()) }()

	// Wait for the initialization to be in flight
	for tts.State() != StateInitializing {
		time.Sleep(time.Millisecond)
	}
	tts.Shutdown()
	close(eng.gate)

	if <-done {
		t.Error("Expected stale initialization to report false")
	}
	if tts.State() != StateUninitialized {
		t.Errorf("Expected uninitialized, got %s", tts.State())
	}
}

func TestTTSShutdownKeepsEngineDown(t *testing.T) {
	eng := &fakeEngine{gate: make(chan struct{})}
	tts := NewTTS(eng, TTSConfig{})

	done := make(chan bool)
	go func() { done <- tts.Initialize(context.Background()) }()

	// Wait until the engine is inside Init
	for {
		eng.mu.Lock()
		inits := eng.inits
		eng.mu.Unlock()
		if inits == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	tts.Shutdown()
	close(eng.gate)

	if <-done {
		t.Error("Expected stale initialization to report false")
	}
	eng.mu.Lock()
	live := eng.live
	eng.gate = nil
	eng.mu.Unlock()
	if live {
		t.Error("Expected engine to stay shut down after a stale Init")
	}

	// A fresh initialization brings it back
	if !tts.Initialize(context.Background()) {
		t.Fatal("Expected re-initialization to succeed")
	}
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if !eng.live || eng.inits != 2 {
		t.Errorf("Expected live engine after 2 inits, got live=%v inits=%d", eng.live, eng.inits)
	}
}

func TestSTTEvents(t *testing.T) {
	stt := NewSTT()

	// No listener: events are dropped without blocking
	stt.StartListening()

	var got []Event
	detach := stt.Listen(EventSinkFunc(func(e Event) { got = append(got, e) }))

	if !stt.Initialize() || !stt.StartListening() || !stt.StopListening() {
		t.Fatal("Expected all STT methods to report true")
	}
	stt.SendResult("hel", false)
	stt.SendResult("hello", true)

	want := []Event{
		{Type: EventState, State: ListenListening},
		{Type: EventState, State: ListenIdle},
		{Type: EventPartial, Text: "hel"},
		{Type: EventFinal, Text: "hello"},
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d events, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Event %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}

	detach()
	stt.StartListening()
	if len(got) != len(want) {
		t.Errorf("Expected no events after detach, got %d", len(got))
	}
}

func TestSTTStaleDetach(t *testing.T) {
	stt := NewSTT()

	var first, second int
	detachFirst := stt.Listen(EventSinkFunc(func(Event) { first++ }))
	stt.Listen(EventSinkFunc(func(Event) { second++ }))

	// The first listener was replaced; detaching it must not drop the second
	detachFirst()
	stt.StartListening()
	if first != 0 || second != 1 {
		t.Errorf("Expected only the second listener to fire, got first=%d second=%d", first, second)
	}

	stt.Cancel()
	stt.StopListening()
	if second != 1 {
		t.Errorf("Expected no events after cancel, got %d", second)
	}
}

func TestExecEngineArgs(t *testing.T) {
	e := NewExecEngine("")
	if e.Command != DefaultCommand {
		t.Errorf("Expected default command %s, got %s", DefaultCommand, e.Command)
	}
	e.voice = "en-us"
	e.SetRate(0.8)
	e.SetPitch(3.0)

	args := e.args("-hello")
	want := []string{"-s", "140", "-p", "99", "-v", "en-us", "--", "-hello"}
	if fmt.Sprint(args) != fmt.Sprint(want) {
		t.Errorf("Expected %v, got %v", want, args)
	}
}

func TestExecEngineMissingBinary(t *testing.T) {
	e := NewExecEngine("recallme-no-such-synthesizer")
	if err := e.Init(context.Background()); err == nil {
		t.Error("Expected init error for missing binary")
	}
	if err := e.Speak(context.Background(), "hi", "id"); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Expected ErrEngineClosed, got %v", err)
	}
}

func TestHasVoice(t *testing.T) {
	listing := `Pty Language       Age/Gender VoiceName          File                 Other Languages
 2  en-gb          --/M      English_(Great_Britain) gmw/en
 2  en-us          --/M      English_(America)  gmw/en-US`
	if !hasVoice(listing, "en-us") {
		t.Error("Expected en-us to be found")
	}
	if hasVoice(listing, "fr-fr") {
		t.Error("Expected fr-fr to be missing")
	}
}
