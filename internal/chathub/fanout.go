package chathub

import (
	"context"
	"marketchat/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// Fanout delivers a stored, decrypted message to the pair's channel.
type Fanout interface {
	Publish(ctx context.Context, msg models.ChatMessage) error
}

// PubSub is the cross-instance transport, implemented by storage.Service.
type PubSub interface {
	PublishMessage(ctx context.Context, msg models.ChatMessage) error
	SubscribeMessages(ctx context.Context) (*redis.PubSub, error)
}

// LocalFanout broadcasts straight to this instance's router.
type LocalFanout struct {
	router *Router
}

func (f *LocalFanout) Publish(_ context.Context, msg models.ChatMessage) error {
	return broadcastMessage(f.router, msg)
}

// RedisFanout publishes to the shared channel. Every instance, this one
// included, delivers to its local members when the message comes back
// through its subscription.
type RedisFanout struct {
	pubsub PubSub
}

func (f *RedisFanout) Publish(ctx context.Context, msg models.ChatMessage) error {
	return f.pubsub.PublishMessage(ctx, msg)
}

func broadcastMessage(router *Router, msg models.ChatMessage) error {
	ev, err := models.NewEvent(models.EventMessages, msg)
	if err != nil {
		return err
	}
	router.Broadcast(PairKey(msg.SenderID, msg.ReceiverID), ev)
	return nil
}
