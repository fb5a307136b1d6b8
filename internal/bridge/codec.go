package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/andresmejia3/recallme/internal/speech"
)

// Envelope kinds.
const (
	KindCall   = "call"   // host -> bridge: invoke channel#method
	KindReply  = "reply"  // bridge -> host: result of the call with the same id
	KindEvent  = "event"  // bridge -> host: stream event
	KindListen = "listen" // host -> bridge: subscribe to an event channel
	KindCancel = "cancel" // host -> bridge: unsubscribe
)

// MaxFrameSize bounds a single stdio frame.
const MaxFrameSize = 64 << 20

var ErrFrameTooLarge = errors.New("bridge: frame too large")

// Envelope is one message on the wire, msgpack encoded. Result is always
// written so that empty lists and false reach the host as such.
type Envelope struct {
	Kind           string         `msgpack:"kind"`
	ID             uint64         `msgpack:"id,omitempty"`
	Channel        string         `msgpack:"channel,omitempty"`
	Method         string         `msgpack:"method,omitempty"`
	Args           map[string]any `msgpack:"args,omitempty"`
	Result         any            `msgpack:"result"`
	NotImplemented bool           `msgpack:"not_implemented,omitempty"`
	Event          *speech.Event  `msgpack:"event,omitempty"`
	Error          string         `msgpack:"error,omitempty"`
}

func Encode(env Envelope) ([]byte, error) {
	return msgpack.Marshal(&env)
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("bridge: decoding envelope: %w", err)
	}
	if env.Kind == "" {
		return Envelope{}, errors.New("bridge: envelope without kind")
	}
	return env, nil
}

// WriteFrame writes data as [uint32 big-endian length][data].
func WriteFrame(w io.Writer, data []byte) error {
	if len(data) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// ReadFrame reads one length-prefixed frame. A clean end of stream before
// the header returns io.EOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header)
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}
