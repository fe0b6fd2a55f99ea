package storage

import (
	"context"
	"errors"
	"marketchat/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// AppendParams is a message that is already encrypted and ready to store.
type AppendParams struct {
	SenderID   string
	ReceiverID string
	Ciphertext []byte
	Nonce      []byte
	ReplyTo    *uint64
}

// MessageStore is the durable, append-only log of encrypted messages.
// Lookups that find nothing return a nil value and a nil error.
type MessageStore interface {
	// Append inserts one row; the store assigns ID and CreatedAt.
	Append(ctx context.Context, p AppendParams) (*models.Message, error)
	// History returns every row of the unordered pair, oldest first.
	History(ctx context.Context, a, b string) ([]models.Message, error)
	// Latest returns the newest row of the pair.
	Latest(ctx context.Context, a, b string) (*models.Message, error)
	FindMessage(ctx context.Context, id uint64) (*models.Message, error)
}

// Directory is the read-only view of user profiles.
type Directory interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListContacts(ctx context.Context, userID string) ([]models.User, error)
}

type Storage interface {
	MessageStore
	Directory
	Ping(ctx context.Context) error
}

// Service implements Storage on top of GORM. Redis is optional and only used
// for cross-instance fanout.
type Service struct {
	DB      *gorm.DB
	Redis   *redis.Client
	Channel string
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client, channel string) *Service {
	return &Service{
		DB:      db,
		Redis:   rdb,
		Channel: channel,
	}
}

func (s *Service) Append(ctx context.Context, p AppendParams) (*models.Message, error) {
	low, high := models.SortedPair(p.SenderID, p.ReceiverID)
	msg := models.Message{
		PairLow:    low,
		PairHigh:   high,
		SenderID:   p.SenderID,
		ReceiverID: p.ReceiverID,
		Ciphertext: p.Ciphertext,
		Nonce:      p.Nonce,
		ReplyTo:    p.ReplyTo,
	}

	if err := s.DB.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, persistenceError("append", err)
	}
	return &msg, nil
}

func (s *Service) History(ctx context.Context, a, b string) ([]models.Message, error) {
	low, high := models.SortedPair(a, b)

	history := []models.Message{}
	err := s.DB.WithContext(ctx).
		Where("pair_low = ? AND pair_high = ?", low, high).
		Order("created_at asc").
		Order("id asc").
		Find(&history).Error
	if err != nil {
		return nil, persistenceError("history", err)
	}
	return history, nil
}

func (s *Service) Latest(ctx context.Context, a, b string) (*models.Message, error) {
	low, high := models.SortedPair(a, b)

	var msg models.Message
	err := s.DB.WithContext(ctx).
		Where("pair_low = ? AND pair_high = ?", low, high).
		Order("created_at desc").
		Order("id desc").
		Take(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, persistenceError("latest", err)
	}
	return &msg, nil
}

func (s *Service) FindMessage(ctx context.Context, id uint64) (*models.Message, error) {
	var msg models.Message
	err := s.DB.WithContext(ctx).Where("id = ?", id).Take(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, persistenceError("find", err)
	}
	return &msg, nil
}

// Ping checks that the database answers.
func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return persistenceError("ping", err)
	}
	return persistenceError("ping", sqlDB.PingContext(ctx))
}

func (s *Service) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, persistenceError("get user", err)
	}
	return &user, nil
}

// ListContacts returns every user except userID, ordered by name.
func (s *Service) ListContacts(ctx context.Context, userID string) ([]models.User, error) {
	contacts := []models.User{}
	err := s.DB.WithContext(ctx).
		Where("id <> ?", userID).
		Order("name asc").
		Find(&contacts).Error
	if err != nil {
		return nil, persistenceError("list contacts", err)
	}
	return contacts, nil
}
