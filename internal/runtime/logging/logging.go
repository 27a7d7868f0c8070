package logging

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
)

// LogFields represents structured logging key/value pairs used by Featureflow.
type LogFields map[string]any

// ServiceLogger is the minimal logging contract required by Featureflow
// scopes. It carries the four levels Watermill's LoggerAdapter knows about,
// so the same logger serves the dispatcher and any Watermill pub/sub wired
// into an event tap.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

// LevelTrace is the slog level Trace output is written at. slog defines no
// trace level of its own; this sits one step below slog.LevelDebug.
const LevelTrace = slog.LevelDebug - 4

// NewSlogServiceLogger wraps a slog.Logger so it satisfies the ServiceLogger
// interface. Trace logs are emitted at LevelTrace and are therefore dropped
// by default slog handlers unless their level is lowered.
func NewSlogServiceLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("featureflow: slog logger cannot be nil")
	}
	return slogLogger{log: log}
}

type slogLogger struct {
	log *slog.Logger
}

func (l slogLogger) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return l
	}
	return slogLogger{log: l.log.With(slogArgs(fields)...)}
}

func (l slogLogger) Debug(msg string, fields LogFields) {
	l.log.Debug(msg, slogArgs(fields)...)
}

func (l slogLogger) Info(msg string, fields LogFields) {
	l.log.Info(msg, slogArgs(fields)...)
}

func (l slogLogger) Error(msg string, err error, fields LogFields) {
	args := slogArgs(fields)
	if err != nil {
		args = append(args, slog.Any("error", err))
	}
	l.log.Error(msg, args...)
}

func (l slogLogger) Trace(msg string, fields LogFields) {
	l.log.Log(context.Background(), LevelTrace, msg, slogArgs(fields)...)
}

func slogArgs(fields LogFields) []any {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields))
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	return args
}

// NewWatermillServiceLogger wraps an existing Watermill LoggerAdapter so it
// can be supplied to NewScope.
func NewWatermillServiceLogger(logger watermill.LoggerAdapter) ServiceLogger {
	if logger == nil {
		panic("featureflow: watermill logger cannot be nil")
	}
	return &watermillLogger{inner: logger}
}

type watermillLogger struct {
	inner watermill.LoggerAdapter
}

func (w *watermillLogger) With(fields LogFields) ServiceLogger {
	return &watermillLogger{inner: w.inner.With(wmFields(fields))}
}

func (w *watermillLogger) Debug(msg string, fields LogFields) {
	w.inner.Debug(msg, wmFields(fields))
}

func (w *watermillLogger) Info(msg string, fields LogFields) {
	w.inner.Info(msg, wmFields(fields))
}

func (w *watermillLogger) Error(msg string, err error, fields LogFields) {
	w.inner.Error(msg, err, wmFields(fields))
}

func (w *watermillLogger) Trace(msg string, fields LogFields) {
	w.inner.Trace(msg, wmFields(fields))
}

// NewWatermillAdapter converts a ServiceLogger into a Watermill LoggerAdapter,
// letting a scope's logger back the pub/sub that receives its tap events.
func NewWatermillAdapter(log ServiceLogger) watermill.LoggerAdapter {
	if log == nil {
		panic("featureflow: ServiceLogger cannot be nil")
	}
	return &watermillBridge{base: log}
}

type watermillBridge struct {
	base ServiceLogger
}

func (b *watermillBridge) Error(msg string, err error, fields watermill.LogFields) {
	b.base.Error(msg, err, svcFields(fields))
}

func (b *watermillBridge) Info(msg string, fields watermill.LogFields) {
	b.base.Info(msg, svcFields(fields))
}

func (b *watermillBridge) Debug(msg string, fields watermill.LogFields) {
	b.base.Debug(msg, svcFields(fields))
}

func (b *watermillBridge) Trace(msg string, fields watermill.LogFields) {
	b.base.Trace(msg, svcFields(fields))
}

func (b *watermillBridge) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillBridge{base: b.base.With(svcFields(fields))}
}

func wmFields(fields LogFields) watermill.LogFields {
	if len(fields) == 0 {
		return nil
	}
	return watermill.LogFields(fields)
}

func svcFields(fields watermill.LogFields) LogFields {
	if len(fields) == 0 {
		return nil
	}
	return LogFields(fields)
}

// EntryLoggerAdapter captures the capabilities required by
// NewEntryServiceLogger. The constraint is generic so entry-style loggers
// whose With methods return their own concrete type (logrus entries and
// friends) can be used without wrappers.
type EntryLoggerAdapter[T any] interface {
	Error(args ...any)
	Info(args ...any)
	Debug(args ...any)
	Trace(args ...any)
	WithError(err error) T
	WithField(key string, value any) T
}

// EntryLogger is the non-generic form of the constraint, kept for callers
// that name the adapter interface directly.
type EntryLogger interface {
	EntryLoggerAdapter[EntryLogger]
}

// NewEntryServiceLogger wraps an entry-style logger so it can be supplied to
// NewScope without a further adapter.
func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	if any(entry) == nil {
		panic("featureflow: entry logger cannot be nil")
	}
	return &entryLogger[T]{entry: entry}
}

type entryLogger[T EntryLoggerAdapter[T]] struct {
	entry T
}

func (e *entryLogger[T]) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return e
	}
	return &entryLogger[T]{entry: entryWith(e.entry, fields)}
}

func (e *entryLogger[T]) Debug(msg string, fields LogFields) {
	entryWith(e.entry, fields).Debug(msg)
}

func (e *entryLogger[T]) Info(msg string, fields LogFields) {
	entryWith(e.entry, fields).Info(msg)
}

func (e *entryLogger[T]) Error(msg string, err error, fields LogFields) {
	enriched := entryWith(e.entry, fields)
	if err != nil {
		enriched = enriched.WithError(err)
	}
	enriched.Error(msg)
}

func (e *entryLogger[T]) Trace(msg string, fields LogFields) {
	entryWith(e.entry, fields).Trace(msg)
}

func entryWith[T EntryLoggerAdapter[T]](entry T, fields LogFields) T {
	enriched := entry
	for key, value := range fields {
		enriched = enriched.WithField(key, value)
	}
	return enriched
}
