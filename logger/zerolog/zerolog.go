package zerolog

import (
	"github.com/foodcourt/ordersaga/saga"
	"github.com/rs/zerolog"
)

// zerolog implementation of saga.Logger interface.
type Logger struct {
	Logger zerolog.Logger
}

var _ saga.Logger = (*Logger)(nil)

func (l *Logger) Debug(msg string) {
	l.Logger.Debug().Msg(msg)
}

func (l *Logger) Warn(msg string) {
	l.Logger.Warn().Msg(msg)
}

func (l *Logger) Error(msg string, err error) {
	l.Logger.Err(err).Msg(msg)
}

func (l *Logger) Info(msg string) {
	l.Logger.Info().Msg(msg)
}
