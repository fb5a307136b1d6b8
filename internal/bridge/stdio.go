package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// ServeStdio carries channel traffic as length-prefixed frames, for hosts
// that run the bridge as a child process. It returns nil when r reaches a
// clean end of stream, after in-flight calls have replied.
func ServeStdio(ctx context.Context, r io.Reader, w io.Writer, h *Handler) error {
	log := slog.With("transport", "stdio")

	var writeMu sync.Mutex
	send := func(env Envelope) error {
		data, err := Encode(env)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		return WriteFrame(w, data)
	}

	sess := newSession(h, send, log)
	defer sess.close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := ReadFrame(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info("bridge: host closed input")
				return nil
			}
			return err
		}
		env, err := Decode(frame)
		if err != nil {
			log.Warn("bridge: bad envelope", "error", err)
			continue
		}
		sess.handle(ctx, env)
	}
}
