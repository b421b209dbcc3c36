package logger

import (
	"fmt"

	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
)

// waLogger routes whatsmeow's printf-style logging through zap.
type waLogger struct {
	sugar *zap.SugaredLogger
}

// WhatsApp returns a whatsmeow logger for the given module name.
func WhatsApp(module string) waLog.Logger {
	return &waLogger{sugar: L().Named(module).Sugar()}
}

func (l *waLogger) Warnf(msg string, args ...interface{})  { l.sugar.Warnf(msg, args...) }
func (l *waLogger) Errorf(msg string, args ...interface{}) { l.sugar.Errorf(msg, args...) }
func (l *waLogger) Infof(msg string, args ...interface{})  { l.sugar.Infof(msg, args...) }
func (l *waLogger) Debugf(msg string, args ...interface{}) { l.sugar.Debugf(msg, args...) }

func (l *waLogger) Sub(module string) waLog.Logger {
	return &waLogger{sugar: l.sugar.Named(fmt.Sprint(module))}
}
