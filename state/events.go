package state

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Topic carries every state change
const Topic = "oscar.state"

// EventType names a state change
type EventType string

const (
	EventTranscriptAppended EventType = "transcript_appended"
	EventTranscriptCleared  EventType = "transcript_cleared"
	EventToolCallStarted    EventType = "tool_call_started"
	EventToolCallFinished   EventType = "tool_call_finished"
	EventCanvasReplaced     EventType = "canvas_replaced"
	EventViewModeChanged    EventType = "view_mode_changed"
	EventEpochChanged       EventType = "epoch_changed"
)

// Event is published on Topic after each mutation
type Event struct {
	Type     EventType          `json:"type"`
	Message  *TranscriptMessage `json:"message,omitempty"`
	ToolCall *ToolCall          `json:"tool_call,omitempty"`
	Canvas   Canvas             `json:"canvas,omitempty"`
	ViewMode ViewMode           `json:"view_mode,omitempty"`
	Epoch    uint64             `json:"epoch,omitempty"`
	Live     bool               `json:"live,omitempty"`
}

// watermillLogger routes watermill logs through zerolog
type watermillLogger struct {
	logger zerolog.Logger
}

func (w *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.logger.Error().Fields(map[string]any(fields)).Err(err).Msg(msg)
}

func (w *watermillLogger) Info(msg string, fields watermill.LogFields) {
	// watermill is chatty at info
	w.logger.Debug().Fields(map[string]any(fields)).Msg(msg)
}

func (w *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.logger.Trace().Fields(map[string]any(fields)).Msg(msg)
}

func (w *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.logger.Trace().Fields(map[string]any(fields)).Msg(msg)
}

func (w *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{logger: w.logger.With().Fields(map[string]any(fields)).Logger()}
}

var _ watermill.LoggerAdapter = &watermillLogger{}

// newWatermillLogger never goes below debug so per-message traces stay quiet
func newWatermillLogger() *watermillLogger {
	logger := log.Logger.With().Str("component", "state-bus").Logger()
	if logger.GetLevel() < zerolog.DebugLevel {
		logger = logger.Level(zerolog.DebugLevel)
	}
	return &watermillLogger{logger: logger}
}

// bus serializes event publication so subscribers see mutations in order
type bus struct {
	pubsub *gochannel.GoChannel
	queue  chan Event
	done   chan struct{}
}

func newBus() *bus {
	b := &bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			BlockPublishUntilSubscriberAck: true,
		}, newWatermillLogger()),
		queue: make(chan Event, 256),
		done:  make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *bus) run() {
	defer close(b.done)
	for ev := range b.queue {
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Error().Err(err).Str("type", string(ev.Type)).Msg("Failed to encode state event")
			continue
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		if err := b.pubsub.Publish(Topic, msg); err != nil {
			log.Warn().Err(err).Str("type", string(ev.Type)).Msg("Failed to publish state event")
		}
	}
}

// publish never blocks the store goroutine. Events are dropped when the
// queue is full.
func (b *bus) publish(ev Event) {
	select {
	case b.queue <- ev:
	default:
		log.Warn().Str("type", string(ev.Type)).Msg("State event queue full, dropping event")
	}
}

// close drains queued events then shuts the pubsub down
func (b *bus) close() error {
	close(b.queue)
	<-b.done
	return b.pubsub.Close()
}

// subscriberBuffer is how many events a subscriber may fall behind before
// events are dropped for it
const subscriberBuffer = 64

// subscribe decodes messages on Topic into Events until ctx ends. A
// subscriber that stops reading loses events instead of stalling the bus.
func (b *bus) subscribe(ctx context.Context) (<-chan Event, error) {
	msgs, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, err
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		dropped := 0
		for msg := range msgs {
			var ev Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				log.Error().Err(err).Str("uuid", msg.UUID).Msg("Failed to decode state event")
				msg.Ack()
				continue
			}
			select {
			case out <- ev:
				if dropped > 0 {
					log.Warn().Int("dropped", dropped).Msg("Slow state subscriber caught up")
					dropped = 0
				}
			default:
				dropped++
			}
			msg.Ack()
		}
	}()
	return out, nil
}
