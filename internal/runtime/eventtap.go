package runtime

import (
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/benbjohnson/clock"

	errspkg "github.com/drblury/featureflow/internal/runtime/errors"
	idspkg "github.com/drblury/featureflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/featureflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/featureflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/featureflow/internal/runtime/metadata"
)

// TapEventKind identifies which lifecycle transition a tap message describes.
type TapEventKind string

const (
	TapEventEnqueued     TapEventKind = "enqueued"
	TapEventDelivered    TapEventKind = "delivered"
	TapEventCompleted    TapEventKind = "completed"
	TapEventFailed       TapEventKind = "failed"
	TapEventDropped      TapEventKind = "dropped"
	TapEventRegistered   TapEventKind = "registered"
	TapEventUnregistered TapEventKind = "unregistered"
)

// Metadata keys stamped onto every tap message so subscribers can route
// without decoding the payload.
const (
	MetadataKeyTapEventKind = "tap_event_kind"
	MetadataKeyTapScope     = "tap_scope"
)

// TapEvent is the JSON payload published for a single lifecycle event.
// Fields that do not apply to a given kind are omitted.
type TapEvent struct {
	Kind          TapEventKind `json:"kind"`
	Scope         string       `json:"scope"`
	Feature       string       `json:"feature"`
	ActionID      string       `json:"action_id,omitempty"`
	Priority      string       `json:"priority,omitempty"`
	Replayed      bool         `json:"replayed,omitempty"`
	DurationMS    int64        `json:"duration_ms,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Error         string       `json:"error,omitempty"`
	ReplayedCount int          `json:"replayed_count,omitempty"`
	EmittedAt     time.Time    `json:"emitted_at"`
}

// EventTap publishes dispatch lifecycle events onto a Watermill topic so
// external systems can observe a scope without attaching hooks themselves.
// Publishing is fire-and-forget. A failed publish is logged and the dispatch
// that triggered it proceeds untouched.
type EventTap struct {
	publisher message.Publisher
	topic     string
	logger    loggingpkg.ServiceLogger
	metadata  metadatapkg.Metadata
	clk       clock.Clock
}

// TapOption customises an EventTap beyond the required publisher and topic.
type TapOption func(*EventTap)

// WithTapLogger overrides the logger used to report encode and publish failures.
func WithTapLogger(logger loggingpkg.ServiceLogger) TapOption {
	return func(t *EventTap) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithTapMetadata attaches base metadata to every published message.
func WithTapMetadata(md metadatapkg.Metadata) TapOption {
	return func(t *EventTap) {
		t.metadata = md.Clone()
	}
}

// WithTapClock overrides the clock used to stamp emitted events.
func WithTapClock(clk clock.Clock) TapOption {
	return func(t *EventTap) {
		if clk != nil {
			t.clk = clk
		}
	}
}

// NewEventTap wires a Watermill publisher into a set of dispatch hooks.
// Attach the result to a scope via ScopeDependencies.Hooks, merging with any
// other hooks the caller already uses.
func NewEventTap(publisher message.Publisher, topic string, opts ...TapOption) (*EventTap, error) {
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}

	tap := &EventTap{
		publisher: publisher,
		topic:     topic,
		logger:    loggingpkg.NewSlogServiceLogger(slog.Default()),
		clk:       clock.New(),
	}
	for _, opt := range opts {
		opt(tap)
	}
	return tap, nil
}

// Hooks returns dispatch hooks that publish one message per lifecycle event.
func (t *EventTap) Hooks() DispatchHooks {
	return DispatchHooks{
		OnEnqueue: func(info ActionInfo) {
			t.publish(TapEvent{
				Kind:     TapEventEnqueued,
				Scope:    info.Scope,
				Feature:  info.Feature,
				ActionID: info.ActionID,
				Priority: info.Priority.String(),
			})
		},
		OnDeliver: func(info ActionInfo) {
			t.publish(TapEvent{
				Kind:     TapEventDelivered,
				Scope:    info.Scope,
				Feature:  info.Feature,
				ActionID: info.ActionID,
				Priority: info.Priority.String(),
				Replayed: info.Replayed,
			})
		},
		OnComplete: func(info ActionInfo, err error) {
			event := TapEvent{
				Kind:       TapEventCompleted,
				Scope:      info.Scope,
				Feature:    info.Feature,
				ActionID:   info.ActionID,
				Priority:   info.Priority.String(),
				Replayed:   info.Replayed,
				DurationMS: info.Duration.Milliseconds(),
			}
			if err != nil {
				event.Kind = TapEventFailed
				event.Error = err.Error()
			}
			t.publish(event)
		},
		OnDrop: func(info ActionInfo, reason DropReason) {
			t.publish(TapEvent{
				Kind:     TapEventDropped,
				Scope:    info.Scope,
				Feature:  info.Feature,
				ActionID: info.ActionID,
				Priority: info.Priority.String(),
				Reason:   string(reason),
			})
		},
		OnRegister: func(scope, feature string, replayed int) {
			t.publish(TapEvent{
				Kind:          TapEventRegistered,
				Scope:         scope,
				Feature:       feature,
				ReplayedCount: replayed,
			})
		},
		OnUnregister: func(scope, feature string) {
			t.publish(TapEvent{
				Kind:    TapEventUnregistered,
				Scope:   scope,
				Feature: feature,
			})
		},
	}
}

// DecodeTapEvent parses a message received from a tap topic back into the
// event and the metadata it was published with.
func DecodeTapEvent(msg *message.Message) (TapEvent, metadatapkg.Metadata, error) {
	if msg == nil {
		return TapEvent{}, nil, errspkg.ErrMessageRequired
	}

	var event TapEvent
	if err := jsoncodec.Unmarshal(msg.Payload, &event); err != nil {
		return TapEvent{}, nil, err
	}
	return event, metadatapkg.FromWatermill(msg.Metadata), nil
}

func (t *EventTap) publish(event TapEvent) {
	event.EmittedAt = t.clk.Now()

	payload, err := jsoncodec.Marshal(event)
	if err != nil {
		t.logger.Error("Failed to encode tap event", err, loggingpkg.LogFields{
			"kind": string(event.Kind),
		})
		return
	}

	stamp := metadatapkg.Metadata{MetadataKeyTapEventKind: string(event.Kind)}
	if event.Scope != "" {
		stamp[MetadataKeyTapScope] = event.Scope
	}
	md := t.metadata.WithAll(stamp)

	msg := message.NewMessage(idspkg.CreateULID(), payload)
	msg.Metadata = metadatapkg.ToWatermill(md)

	if err := t.publisher.Publish(t.topic, msg); err != nil {
		t.logger.Error("Failed to publish tap event", err, loggingpkg.LogFields{
			"topic": t.topic,
			"kind":  string(event.Kind),
		})
	}
}
