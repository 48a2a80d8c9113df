package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-chatroom/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/z-chatroom/backend/internal/service/chat"
)

const subscriberBuffer = 32

// Bus fans room state changes out to stream subscribers. It is attached to
// every controller as an observer; events of one room reach each subscriber
// in the order the controller emitted them. Publish waits for acks to keep
// that order, and subscribers ack without waiting on their reader.
type Bus struct {
	pubsub *gochannel.GoChannel
	now    func() time.Time
}

var _ chatservice.Observer = (*Bus)(nil)

// NewBus creates an in-process bus.
func NewBus() *Bus {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            subscriberBuffer,
		BlockPublishUntilSubscriberAck: true,
	}, newZerologAdapter(log.Logger))

	return &Bus{pubsub: pubsub, now: time.Now}
}

func (b *Bus) MessagesChanged(roomID string, messages []chat.Message) {
	b.publish(Event{Type: TypeMessages, RoomID: roomID, Messages: messages})
}

func (b *Bus) LoadingChanged(roomID string, loading bool) {
	b.publish(Event{Type: TypeLoading, RoomID: roomID, Loading: &loading})
}

func (b *Bus) ErrorChanged(roomID string, msg string) {
	b.publish(Event{Type: TypeError, RoomID: roomID, Error: &msg})
}

func (b *Bus) publish(e Event) {
	e.Timestamp = b.now().UTC()
	if e.Type == TypeMessages && e.Messages == nil {
		e.Messages = []chat.Message{}
	}

	payload, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Str("room_id", e.RoomID).Msg("failed to marshal room event")
		return
	}

	topic := Topic(e.RoomID)
	if err := b.pubsub.Publish(topic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("failed to publish room event")
		return
	}
	log.Trace().Str("topic", topic).Str("event_type", string(e.Type)).Msg("published room event")
}

// Subscribe streams the events of roomID until ctx is done or the bus is
// closed; the returned channel is closed then. A subscriber that falls
// subscriberBuffer events behind is dropped and its channel closed, so
// publishers never wait on a slow reader.
func (b *Bus) Subscribe(ctx context.Context, roomID string) (<-chan Event, error) {
	subCtx, cancel := context.WithCancel(ctx)
	msgs, err := b.pubsub.Subscribe(subCtx, Topic(roomID))
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer cancel()

		for msg := range msgs {
			var e Event
			if err := json.Unmarshal(msg.Payload, &e); err != nil {
				log.Warn().Err(err).Str("room_id", roomID).Msg("dropping undecodable room event")
				msg.Ack()
				continue
			}

			select {
			case out <- e:
				msg.Ack()
			default:
				msg.Ack()
				log.Warn().Str("room_id", roomID).Msg("room event subscriber too slow, dropping it")
				cancel()
				// ack whatever is still queued until the pub/sub closes msgs
				for rest := range msgs {
					rest.Ack()
				}
				return
			}
		}
	}()
	return out, nil
}

// Close stops the bus and ends every subscription.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
