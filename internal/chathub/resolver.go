package chathub

import (
	"context"
	"marketchat/backend/internal/codec"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/storage"
)

// LastMessageResolver answers "what was the last thing said in this pair".
// It needs no room membership.
type LastMessageResolver struct {
	store storage.MessageStore
	codec *codec.Codec
}

func NewLastMessageResolver(store storage.MessageStore, c *codec.Codec) *LastMessageResolver {
	return &LastMessageResolver{store: store, codec: c}
}

// Get returns the newest message of the pair, decrypted, or nil when the
// pair has never exchanged a message.
func (r *LastMessageResolver) Get(ctx context.Context, a, b string) (*models.ChatMessage, error) {
	row, err := r.store.Latest(ctx, a, b)
	if err != nil || row == nil {
		return nil, err
	}

	msg, err := decryptRow(r.codec, row)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// decryptRow turns a stored row into its wire form.
func decryptRow(c *codec.Codec, row *models.Message) (models.ChatMessage, error) {
	plaintext, err := c.Decrypt(row.Ciphertext, row.Nonce)
	if err != nil {
		return models.ChatMessage{}, err
	}
	return models.ChatMessage{
		ID:         row.ID,
		SenderID:   row.SenderID,
		ReceiverID: row.ReceiverID,
		Plaintext:  string(plaintext),
		ReplyTo:    row.ReplyTo,
		Timestamp:  row.CreatedAt,
	}, nil
}
