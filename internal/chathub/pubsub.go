package chathub

import (
	"context"
	"marketchat/backend/internal/storage"

	"go.uber.org/zap"
)

// Run delivers messages published by any instance to the members on this
// one. Without Redis there is nothing to listen to, so it only waits for
// ctx to end.
func (m *ManagerService) Run(ctx context.Context) error {
	if m.pubsub == nil {
		<-ctx.Done()
		return nil
	}

	pubsub, err := m.pubsub.SubscribeMessages(ctx)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	m.logger.Info("listening for published messages")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			m.deliverPublished(msg.Payload)
		}
	}
}

func (m *ManagerService) deliverPublished(payload string) {
	msg, err := storage.DecodeMessage(payload)
	if err != nil {
		m.logger.Error("discarding malformed published message", zap.Error(err))
		return
	}
	if err := broadcastMessage(m.Router, msg); err != nil {
		m.logger.Error("broadcast failed", zap.Uint64("message_id", msg.ID), zap.Error(err))
	}
}
