// Package bridge exposes the speech and face services to a UI host over
// named message channels.
//
// Wire names are resolved to an [Op] once, at the transport boundary, and
// [Handler.Dispatch] switches over that closed set. Calls that do not name
// a known (channel, method) pair are answered as not implemented.
package bridge

import "fmt"

// Channel names shared with the UI host.
const (
	ChannelTTS       = "com.recallme/tts"
	ChannelSTT       = "com.recallme/stt"
	ChannelSTTEvents = "com.recallme/stt_events"
	ChannelFace      = "com.recallme/face"
)

// Op is one operation reachable over a channel.
type Op int

const (
	OpUnknown Op = iota

	OpTTSInitialize
	OpTTSSpeak
	OpTTSStop
	OpTTSSetSpeechRate
	OpTTSSetPitch
	OpTTSShutdown

	OpSTTInitialize
	OpSTTStartListening
	OpSTTStopListening
	OpSTTShutdown

	OpFaceInitialize
	OpFaceDetect
	OpFaceEmbed
	OpFaceShutdown
)

type route struct {
	channel string
	method  string
}

var routes = map[route]Op{
	{ChannelTTS, "initialize"}:    OpTTSInitialize,
	{ChannelTTS, "speak"}:         OpTTSSpeak,
	{ChannelTTS, "stop"}:          OpTTSStop,
	{ChannelTTS, "setSpeechRate"}: OpTTSSetSpeechRate,
	{ChannelTTS, "setPitch"}:      OpTTSSetPitch,
	{ChannelTTS, "shutdown"}:      OpTTSShutdown,

	{ChannelSTT, "initialize"}:     OpSTTInitialize,
	{ChannelSTT, "startListening"}: OpSTTStartListening,
	{ChannelSTT, "stopListening"}:  OpSTTStopListening,
	{ChannelSTT, "shutdown"}:       OpSTTShutdown,

	{ChannelFace, "initialize"}:        OpFaceInitialize,
	{ChannelFace, "detectFaces"}:       OpFaceDetect,
	{ChannelFace, "generateEmbedding"}: OpFaceEmbed,
	{ChannelFace, "shutdown"}:          OpFaceShutdown,
}

var names = func() map[Op]route {
	m := make(map[Op]route, len(routes))
	for r, op := range routes {
		m[op] = r
	}
	return m
}()

// Resolve maps a wire (channel, method) pair to its Op.
func Resolve(channel, method string) (Op, bool) {
	op, ok := routes[route{channel, method}]
	return op, ok
}

func (o Op) String() string {
	if r, ok := names[o]; ok {
		return r.channel + "#" + r.method
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Args are the named arguments of a call as decoded from the wire.
type Args map[string]any

// String returns the string argument key, or def when absent or mistyped.
func (a Args) String(key, def string) string {
	if s, ok := a[key].(string); ok {
		return s
	}
	return def
}

// Float returns the numeric argument key as a float64, or def when absent
// or not a number. Integer encodings are accepted.
func (a Args) Float(key string, def float64) float64 {
	switch v := a[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int8:
		return float64(v)
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint8:
		return float64(v)
	case uint16:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	}
	return def
}

// Bytes returns the binary argument key, or nil when absent.
func (a Args) Bytes(key string) []byte {
	switch v := a[key].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	}
	return nil
}

// Command is a resolved call.
type Command struct {
	Op   Op
	Args Args
}

// Result is the reply to a Command. NotImplemented is set for unknown
// operations; Value is then nil.
type Result struct {
	Value          any
	NotImplemented bool
}
