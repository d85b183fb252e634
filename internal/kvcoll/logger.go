package kvcoll

import "go.uber.org/zap"

// badgerLogger routes Badger's internal logging to zap. Badger is chatty at
// info level, so info and debug both go to debug.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.s.Errorf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.s.Warnf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.s.Debugf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.s.Debugf(format, args...)
}
