package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-stomp/stomp/v3"
)

// stompLogger routes go-stomp's own diagnostics into the session logger.
type stompLogger struct {
	log *slog.Logger
}

var _ stomp.Logger = stompLogger{}

func (l stompLogger) emit(level slog.Level, msg string) {
	l.log.Log(context.Background(), level, "stomp: "+msg)
}

func (l stompLogger) Debugf(format string, v ...interface{}) {
	l.emit(slog.LevelDebug, fmt.Sprintf(format, v...))
}

func (l stompLogger) Infof(format string, v ...interface{}) {
	l.emit(slog.LevelInfo, fmt.Sprintf(format, v...))
}

func (l stompLogger) Warningf(format string, v ...interface{}) {
	l.emit(slog.LevelWarn, fmt.Sprintf(format, v...))
}

func (l stompLogger) Errorf(format string, v ...interface{}) {
	l.emit(slog.LevelError, fmt.Sprintf(format, v...))
}

func (l stompLogger) Debug(msg string)   { l.emit(slog.LevelDebug, msg) }
func (l stompLogger) Info(msg string)    { l.emit(slog.LevelInfo, msg) }
func (l stompLogger) Warning(msg string) { l.emit(slog.LevelWarn, msg) }
func (l stompLogger) Error(msg string)   { l.emit(slog.LevelError, msg) }
