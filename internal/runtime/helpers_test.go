package runtime

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/featureflow/internal/runtime/config"
	loggingpkg "github.com/drblury/featureflow/internal/runtime/logging"
)

func newTestSlogLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(newTestSlogLogger())
}

type recordedLog struct {
	level  string
	msg    string
	err    error
	fields loggingpkg.LogFields
}

type logRecorder struct {
	mu   sync.Mutex
	logs []recordedLog
}

func (r *logRecorder) append(entry recordedLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, entry)
}

func (r *logRecorder) entries() []recordedLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := make([]recordedLog, len(r.logs))
	copy(clone, r.logs)
	return clone
}

func (r *logRecorder) hasMessage(level, msg string) bool {
	for _, entry := range r.entries() {
		if entry.level == level && entry.msg == msg {
			return true
		}
	}
	return false
}

// recordingLogger is a ServiceLogger that captures every entry so tests can
// assert on diagnostics without parsing output.
type recordingLogger struct {
	recorder *logRecorder
	base     loggingpkg.LogFields
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{recorder: &logRecorder{}}
}

func (l *recordingLogger) With(fields loggingpkg.LogFields) loggingpkg.ServiceLogger {
	merged := make(loggingpkg.LogFields, len(l.base)+len(fields))
	for k, v := range l.base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &recordingLogger{recorder: l.recorder, base: merged}
}

func (l *recordingLogger) log(level, msg string, err error, fields loggingpkg.LogFields) {
	merged := make(loggingpkg.LogFields, len(l.base)+len(fields))
	for k, v := range l.base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	l.recorder.append(recordedLog{level: level, msg: msg, err: err, fields: merged})
}

func (l *recordingLogger) Debug(msg string, fields loggingpkg.LogFields) {
	l.log("debug", msg, nil, fields)
}

func (l *recordingLogger) Info(msg string, fields loggingpkg.LogFields) {
	l.log("info", msg, nil, fields)
}

func (l *recordingLogger) Error(msg string, err error, fields loggingpkg.LogFields) {
	l.log("error", msg, err, fields)
}

func (l *recordingLogger) Trace(msg string, fields loggingpkg.LogFields) {
	l.log("trace", msg, nil, fields)
}

type completedEvent struct {
	info ActionInfo
	err  error
}

type droppedEvent struct {
	info   ActionInfo
	reason DropReason
}

// hookRecorder captures every hook invocation. The sequence slice records
// event order across kinds; the typed slices keep the full payloads.
type hookRecorder struct {
	mu        sync.Mutex
	sequence  []string
	enqueued  []ActionInfo
	delivered []ActionInfo
	completed []completedEvent
	dropped   []droppedEvent
}

func (h *hookRecorder) hooks() DispatchHooks {
	return DispatchHooks{
		OnEnqueue: func(info ActionInfo) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.sequence = append(h.sequence, "enqueue:"+info.Feature)
			h.enqueued = append(h.enqueued, info)
		},
		OnDeliver: func(info ActionInfo) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.sequence = append(h.sequence, "deliver:"+info.Feature)
			h.delivered = append(h.delivered, info)
		},
		OnComplete: func(info ActionInfo, err error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.sequence = append(h.sequence, "complete:"+info.Feature)
			h.completed = append(h.completed, completedEvent{info: info, err: err})
		},
		OnDrop: func(info ActionInfo, reason DropReason) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.sequence = append(h.sequence, fmt.Sprintf("drop:%s:%s", info.Feature, reason))
			h.dropped = append(h.dropped, droppedEvent{info: info, reason: reason})
		},
		OnRegister: func(scope, feature string, replayed int) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.sequence = append(h.sequence, fmt.Sprintf("register:%s:%d", feature, replayed))
		},
		OnUnregister: func(scope, feature string) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.sequence = append(h.sequence, "unregister:"+feature)
		},
	}
}

func (h *hookRecorder) events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	clone := make([]string, len(h.sequence))
	copy(clone, h.sequence)
	return clone
}

func (h *hookRecorder) enqueuedInfos() []ActionInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	clone := make([]ActionInfo, len(h.enqueued))
	copy(clone, h.enqueued)
	return clone
}

func (h *hookRecorder) deliveredInfos() []ActionInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	clone := make([]ActionInfo, len(h.delivered))
	copy(clone, h.delivered)
	return clone
}

func (h *hookRecorder) completedEvents() []completedEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	clone := make([]completedEvent, len(h.completed))
	copy(clone, h.completed)
	return clone
}

func (h *hookRecorder) droppedEvents() []droppedEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	clone := make([]droppedEvent, len(h.dropped))
	copy(clone, h.dropped)
	return clone
}

type publishedMessage struct {
	topic string
	msg   *message.Message
}

type testPublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	err       error
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	for _, msg := range messages {
		p.published = append(p.published, publishedMessage{topic: topic, msg: msg})
	}
	return nil
}

func (p *testPublisher) Close() error { return nil }

func (p *testPublisher) Messages() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := make([]publishedMessage, len(p.published))
	copy(clone, p.published)
	return clone
}

type greeterService interface {
	Greet(name string) string
}

type stubGreeter struct {
	mu   sync.Mutex
	seen []string
}

func (g *stubGreeter) Greet(name string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = append(g.seen, name)
	return "hello " + name
}

func (g *stubGreeter) Seen() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	clone := make([]string, len(g.seen))
	copy(clone, g.seen)
	return clone
}

// scopeFixture bundles a scope with the injected collaborators tests assert
// against.
type scopeFixture struct {
	scope  *Scope
	clk    *clock.Mock
	logger *recordingLogger
	hooks  *hookRecorder
}

func newTestScope(t *testing.T, conf configpkg.Config) *scopeFixture {
	t.Helper()

	fx := &scopeFixture{
		clk:    clock.NewMock(),
		logger: newRecordingLogger(),
		hooks:  &hookRecorder{},
	}
	scope, err := TryNewScope("test", conf, ScopeDependencies{
		Clock:             fx.clk,
		Logger:            fx.logger,
		Hooks:             fx.hooks.hooks(),
		MetricsRegisterer: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("scope init failed: %v", err)
	}
	fx.scope = scope
	return fx
}
