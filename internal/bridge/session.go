package bridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/andresmejia3/recallme/internal/speech"
)

// session serves one host connection. Calls run concurrently; every
// outgoing envelope goes through send, which the transport serializes.
type session struct {
	handler *Handler
	send    func(Envelope) error
	log     *slog.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	detach func()
}

func newSession(h *Handler, send func(Envelope) error, log *slog.Logger) *session {
	return &session{handler: h, send: send, log: log}
}

func (s *session) handle(ctx context.Context, env Envelope) {
	switch env.Kind {
	case KindCall:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.call(ctx, env)
		}()
	case KindListen:
		s.listen(env.Channel)
	case KindCancel:
		s.cancel(env.Channel)
	default:
		s.log.Warn("bridge: unexpected envelope", "kind", env.Kind, "id", env.ID)
		s.reply(Envelope{Kind: KindReply, ID: env.ID, Error: "unexpected kind " + env.Kind})
	}
}

func (s *session) call(ctx context.Context, env Envelope) {
	op, ok := Resolve(env.Channel, env.Method)
	if !ok {
		s.log.Debug("bridge: not implemented", "channel", env.Channel, "method", env.Method)
		s.reply(Envelope{Kind: KindReply, ID: env.ID, NotImplemented: true})
		return
	}

	res := s.dispatch(ctx, Command{Op: op, Args: env.Args})
	s.reply(Envelope{
		Kind:           KindReply,
		ID:             env.ID,
		Result:         res.Value,
		NotImplemented: res.NotImplemented,
	})
}

func (s *session) dispatch(ctx context.Context, cmd Command) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("bridge: operation panicked", "op", cmd.Op, "panic", r)
			res = Result{}
		}
	}()
	s.log.Debug("bridge: call", "op", cmd.Op)
	return s.handler.Dispatch(ctx, cmd)
}

func (s *session) listen(channel string) {
	if channel != ChannelSTTEvents {
		s.log.Warn("bridge: listen on non-event channel", "channel", channel)
		return
	}
	detach := s.handler.STT.Listen(speech.EventSinkFunc(func(e speech.Event) {
		s.reply(Envelope{Kind: KindEvent, Channel: ChannelSTTEvents, Event: &e})
	}))

	s.mu.Lock()
	s.detach = detach
	s.mu.Unlock()
}

func (s *session) cancel(channel string) {
	if channel != ChannelSTTEvents {
		return
	}
	s.mu.Lock()
	detach := s.detach
	s.detach = nil
	s.mu.Unlock()
	if detach != nil {
		detach()
	}
}

func (s *session) reply(env Envelope) {
	if err := s.send(env); err != nil {
		s.log.Debug("bridge: send failed", "kind", env.Kind, "id", env.ID, "error", err)
	}
}

// close waits for in-flight calls and drops the event subscription.
func (s *session) close() {
	s.wg.Wait()
	s.cancel(ChannelSTTEvents)
}
