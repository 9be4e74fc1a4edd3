package reactor

import "github.com/rs/zerolog"

// Logger is the minimal logging collaborator a Worker accepts. The core
// never logs through a channel of its own; it only reports through
// whatever Logger it was constructed with, the same way its optional
// lifecycle hooks default to a no-op rather than reaching outside their
// boundary on their own.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NoopLogger discards everything. It is the default when a nil Logger
// is supplied to NewWorker.
var NoopLogger Logger = noopLogger{}

// ZerologAdapter satisfies Logger over a zerolog.Logger.
type ZerologAdapter struct {
	log zerolog.Logger
}

// NewZerologAdapter wraps l as a reactor.Logger.
func NewZerologAdapter(l zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{log: l}
}

func (z *ZerologAdapter) Debug(msg string, kv ...any) { z.event(z.log.Debug(), msg, kv) }
func (z *ZerologAdapter) Info(msg string, kv ...any)  { z.event(z.log.Info(), msg, kv) }
func (z *ZerologAdapter) Warn(msg string, kv ...any)  { z.event(z.log.Warn(), msg, kv) }
func (z *ZerologAdapter) Error(msg string, kv ...any) { z.event(z.log.Error(), msg, kv) }

func (z *ZerologAdapter) event(e *zerolog.Event, msg string, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg(msg)
}
