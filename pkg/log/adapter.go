package log

import "github.com/sirupsen/logrus"

// BadgerLogrusAdapter implements badger.Logger interface using logrus
type BadgerLogrusAdapter struct {
	*logrus.Entry
}

// NewBadgerLogrusAdapter creates a new adapter
func NewBadgerLogrusAdapter(entry *logrus.Entry) *BadgerLogrusAdapter {
	return &BadgerLogrusAdapter{entry}
}

// Errorf logs an error message
func (l *BadgerLogrusAdapter) Errorf(f string, v ...interface{}) { l.Entry.Errorf(f, v...) }

// Warningf logs a warning message
func (l *BadgerLogrusAdapter) Warningf(f string, v ...interface{}) { l.Entry.Warningf(f, v...) }

// Infof logs an info message
func (l *BadgerLogrusAdapter) Infof(f string, v ...interface{}) { l.Entry.Infof(f, v...) }

// Debugf logs a debug message
func (l *BadgerLogrusAdapter) Debugf(f string, v ...interface{}) { l.Entry.Debugf(f, v...) }

// KafkaLogrusAdapter implements kafka.Logger (a single Printf method) at a fixed logrus level.
// kafka-go writers take two loggers, one for chatter and one for errors, so the level is chosen per instance.
type KafkaLogrusAdapter struct {
	entry *logrus.Entry
	level logrus.Level
}

// NewKafkaLogrusAdapter creates an adapter that logs every message at level.
func NewKafkaLogrusAdapter(entry *logrus.Entry, level logrus.Level) *KafkaLogrusAdapter {
	return &KafkaLogrusAdapter{entry: entry, level: level}
}

// Printf logs a formatted message at the adapter's level
func (l *KafkaLogrusAdapter) Printf(f string, v ...interface{}) { l.entry.Logf(l.level, f, v...) }
