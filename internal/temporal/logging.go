package temporal

import (
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// ZerologAdapter routes Temporal SDK logs through zerolog.
type ZerologAdapter struct {
	logger zerolog.Logger
}

func NewLogger(logger zerolog.Logger) log.Logger {
	return &ZerologAdapter{
		logger: logger.With().Str("component", "temporal-sdk").Logger(),
	}
}

func (a *ZerologAdapter) fields(event *zerolog.Event, keyvals []interface{}) *zerolog.Event {
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "MISSING_VALUE")
	}
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = "INVALID_KEY"
		}
		event = event.Interface(key, keyvals[i+1])
	}
	return event
}

func (a *ZerologAdapter) Debug(msg string, keyvals ...interface{}) {
	a.fields(a.logger.Debug(), keyvals).Msg(msg)
}

func (a *ZerologAdapter) Info(msg string, keyvals ...interface{}) {
	a.fields(a.logger.Info(), keyvals).Msg(msg)
}

func (a *ZerologAdapter) Warn(msg string, keyvals ...interface{}) {
	a.fields(a.logger.Warn(), keyvals).Msg(msg)
}

func (a *ZerologAdapter) Error(msg string, keyvals ...interface{}) {
	a.fields(a.logger.Error(), keyvals).Msg(msg)
}

// With returns a logger that adds keyvals to every entry.
func (a *ZerologAdapter) With(keyvals ...interface{}) log.Logger {
	ctx := a.logger.With()
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "MISSING_VALUE")
	}
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = "INVALID_KEY"
		}
		ctx = ctx.Interface(key, keyvals[i+1])
	}
	return &ZerologAdapter{logger: ctx.Logger()}
}
