package bridge

import (
	"context"
	"log/slog"

	"github.com/andresmejia3/recallme/internal/detector"
	"github.com/andresmejia3/recallme/internal/embedding"
	"github.com/andresmejia3/recallme/internal/speech"
)

// Handler owns the services behind the channels.
type Handler struct {
	TTS       *speech.TTS
	STT       *speech.STT
	Localizer detector.Localizer
}

// Dispatch runs one command. It never fails: faults become empty or nil
// values, and unknown operations are reported as not implemented.
func (h *Handler) Dispatch(ctx context.Context, cmd Command) Result {
	switch cmd.Op {
	case OpTTSInitialize:
		return value(h.TTS.Initialize(ctx))
	case OpTTSSpeak:
		return value(h.TTS.Speak(ctx, cmd.Args.String("text", "")))
	case OpTTSStop:
		return value(h.TTS.Stop())
	case OpTTSSetSpeechRate:
		return value(h.TTS.SetSpeechRate(cmd.Args.Float("rate", speech.DefaultSpeechRate)))
	case OpTTSSetPitch:
		return value(h.TTS.SetPitch(cmd.Args.Float("pitch", speech.DefaultPitch)))
	case OpTTSShutdown:
		return value(h.TTS.Shutdown())

	case OpSTTInitialize:
		return value(h.STT.Initialize())
	case OpSTTStartListening:
		return value(h.STT.StartListening())
	case OpSTTStopListening:
		return value(h.STT.StopListening())
	case OpSTTShutdown:
		return value(h.STT.Shutdown())

	case OpFaceInitialize:
		// The localizer is built at startup.
		return value(true)
	case OpFaceDetect:
		data := cmd.Args.Bytes("imageBytes")
		if len(data) == 0 {
			return value([]any{})
		}
		return value(h.Localizer.Detect(data))
	case OpFaceEmbed:
		vec := embedding.FromBytes(cmd.Args.Bytes("faceImageBytes"))
		if vec == nil {
			return value(nil)
		}
		return value([]float64(vec))
	case OpFaceShutdown:
		if err := h.Localizer.Close(); err != nil {
			slog.Warn("bridge: closing face localizer", "error", err)
		}
		return value(true)
	}
	return Result{NotImplemented: true}
}

func value(v any) Result {
	return Result{Value: v}
}
