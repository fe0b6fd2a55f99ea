package models

import "time"

// Message is one persisted chat message between two users.
// The body is stored only as Ciphertext + Nonce; both are required to recover
// the plaintext, so they are always written together in a single row.
type Message struct {
	// ID is assigned by the database and grows monotonically.
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	// PairLow and PairHigh are the two participants in sorted order. Together
	// with CreatedAt they form the index used by history and latest lookups,
	// so a conversation is found regardless of who sent which row.
	PairLow  string `gorm:"type:varchar(191);not null;index:idx_pair_time,priority:1"`
	PairHigh string `gorm:"type:varchar(191);not null;index:idx_pair_time,priority:2"`

	SenderID   string `gorm:"type:varchar(191);not null"`
	ReceiverID string `gorm:"type:varchar(191);not null"`

	Ciphertext []byte `gorm:"not null"`
	Nonce      []byte `gorm:"not null"`

	// ReplyTo references an earlier message of the same pair.
	ReplyTo *uint64 `gorm:"index"`

	// CreatedAt is set by the store at insert time and orders the pair's history.
	CreatedAt time.Time `gorm:"not null;index:idx_pair_time,priority:3"`
}

// TableName keeps the table name stable across drivers.
func (Message) TableName() string { return "messages" }

// SortedPair returns the two ids in canonical order.
func SortedPair(a, b string) (low, high string) {
	if a <= b {
		return a, b
	}
	return b, a
}
