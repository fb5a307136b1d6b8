package speech

import (
	"log/slog"
	"sync"
)

// Event types sent on the STT event channel.
const (
	EventState   = "state"
	EventPartial = "partial"
	EventFinal   = "final"
)

// Listening states carried by EventState events.
const (
	ListenListening = "listening"
	ListenIdle      = "idle"
)

// Event is one STT event. State is set for EventState, Text for results.
type Event struct {
	Type  string `msgpack:"type" json:"type"`
	State string `msgpack:"state,omitempty" json:"state,omitempty"`
	Text  string `msgpack:"text,omitempty" json:"text,omitempty"`
}

// EventSink receives STT events.
type EventSink interface {
	Send(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Send(e Event) { f(e) }

// STT is the speech-to-text placeholder behind the stt channel. It accepts
// the full method set and reports listening state, but recognizes nothing.
type STT struct {
	mu   sync.Mutex
	sink EventSink
	seq  int // identifies the attached sink
}

// NewSTT creates an STT service with no listener attached.
func NewSTT() *STT {
	return &STT{}
}

// Listen attaches sink, replacing any previous one. The returned function
// detaches sink unless another sink has replaced it since.
func (s *STT) Listen(sink EventSink) (detach func()) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.sink = sink
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		if s.seq == seq {
			s.sink = nil
		}
		s.mu.Unlock()
	}
}

// Cancel detaches the current sink.
func (s *STT) Cancel() {
	s.mu.Lock()
	s.sink = nil
	s.mu.Unlock()
}

func (s *STT) emit(e Event) {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		slog.Debug("stt: event dropped, no listener", "type", e.Type)
		return
	}
	sink.Send(e)
}

func (s *STT) Initialize() bool { return true }

// StartListening reports the listening state.
func (s *STT) StartListening() bool {
	s.emit(Event{Type: EventState, State: ListenListening})
	return true
}

// StopListening reports the idle state.
func (s *STT) StopListening() bool {
	s.emit(Event{Type: EventState, State: ListenIdle})
	return true
}

func (s *STT) Shutdown() bool { return true }

// SendResult emits a recognition result.
func (s *STT) SendResult(text string, final bool) {
	typ := EventPartial
	if final {
		typ = EventFinal
	}
	s.emit(Event{Type: typ, Text: text})
}
