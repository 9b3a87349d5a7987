package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	channelConversationPrefix = "channel:conversation:"
	channelGlobal             = "channel:global"
)

// Frame is what travels over Redis pub/sub between instances. Origin lets a
// subscriber drop its own publishes; a nil ConversationID means a global
// broadcast (presence).
type Frame struct {
	Origin         string          `json:"origin"`
	ConversationID *uuid.UUID      `json:"conversation_id,omitempty"`
	ExcludeUserID  *uuid.UUID      `json:"exclude_user_id,omitempty"`
	Data           json.RawMessage `json:"data"`
}

// Sink receives frames published by other instances.
type Sink interface {
	DeliverRemote(conversationID *uuid.UUID, excludeUser *uuid.UUID, data []byte)
}

// RedisBridge fans broadcasts out across instances. Each hub publishes the
// envelopes it emits; every bridge subscribes to all realtime channels and
// re-injects frames whose origin is not its own.
type RedisBridge struct {
	client *redis.Client
	origin string
	sink   Sink
	pubsub *redis.PubSub
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRedisBridge(client *redis.Client, origin string) *RedisBridge {
	if origin == "" {
		origin = uuid.New().String()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBridge{
		client: client,
		origin: origin,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (b *RedisBridge) Start(sink Sink) error {
	b.sink = sink
	b.pubsub = b.client.PSubscribe(b.ctx, "channel:*")
	b.wg.Add(1)
	go b.listen()
	return nil
}

func (b *RedisBridge) Stop() {
	b.cancel()
	if b.pubsub != nil {
		b.pubsub.Close()
	}
	b.wg.Wait()
}

// Publish sends a broadcast frame to the channel for conversationID, or the
// global channel when conversationID is nil. Errors are returned but safe to
// drop: cross-instance fan-out is best-effort on top of local delivery.
func (b *RedisBridge) Publish(ctx context.Context, conversationID *uuid.UUID, excludeUser *uuid.UUID, data []byte) error {
	frame := Frame{
		Origin:         b.origin,
		ConversationID: conversationID,
		ExcludeUserID:  excludeUser,
		Data:           data,
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	channel := channelGlobal
	if conversationID != nil {
		channel = fmt.Sprintf("%s%s", channelConversationPrefix, conversationID)
	}
	return b.client.Publish(ctx, channel, raw).Err()
}

func (b *RedisBridge) listen() {
	defer b.wg.Done()
	ch := b.pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var frame Frame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				continue
			}
			if frame.Origin == b.origin || b.sink == nil {
				continue
			}
			b.sink.DeliverRemote(frame.ConversationID, frame.ExcludeUserID, frame.Data)
		}
	}
}
