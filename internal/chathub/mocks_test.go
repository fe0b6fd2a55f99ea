package chathub_test

import (
	"context"
	"encoding/json"
	"marketchat/backend/internal/codec"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/storage"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient is a test double for chathub.Client that records delivered events.
type MockClient struct {
	id     string
	userID string
	events chan models.Event

	mu     sync.Mutex
	closed bool
}

func newMockClient(id, userID string) *MockClient {
	return newMockClientWithBuffer(id, userID, 32)
}

func newMockClientWithBuffer(id, userID string, buffer int) *MockClient {
	return &MockClient{id: id, userID: userID, events: make(chan models.Event, buffer)}
}

func (c *MockClient) GetID() string     { return c.id }
func (c *MockClient) GetUserID() string { return c.userID }

func (c *MockClient) Deliver(ev models.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// next returns the next delivered event or fails the test.
func (c *MockClient) next(t *testing.T) models.Event {
	t.Helper()
	select {
	case ev := <-c.events:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("client %s received no event", c.id)
		return models.Event{}
	}
}

func (c *MockClient) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case ev := <-c.events:
		t.Fatalf("client %s got unexpected event %q: %s", c.id, ev.Event, ev.Data)
	default:
	}
}

func payload[T any](t *testing.T, ev models.Event) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(ev.Data, &v))
	return v
}

// memStore is an in-memory MessageStore with a strictly increasing clock.
type memStore struct {
	mu   sync.Mutex
	rows []models.Message
	now  time.Time
}

func newMemStore() *memStore {
	return &memStore{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (s *memStore) Append(_ context.Context, p storage.AppendParams) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.now = s.now.Add(time.Second)
	low, high := models.SortedPair(p.SenderID, p.ReceiverID)
	row := models.Message{
		ID:         uint64(len(s.rows) + 1),
		PairLow:    low,
		PairHigh:   high,
		SenderID:   p.SenderID,
		ReceiverID: p.ReceiverID,
		Ciphertext: p.Ciphertext,
		Nonce:      p.Nonce,
		ReplyTo:    p.ReplyTo,
		CreatedAt:  s.now,
	}
	s.rows = append(s.rows, row)
	return &row, nil
}

// insertRaw stores a row as-is, bypassing encryption.
func (s *memStore) insertRaw(from, to string, ciphertext, nonce []byte) uint64 {
	row, _ := s.Append(context.Background(), storage.AppendParams{
		SenderID: from, ReceiverID: to, Ciphertext: ciphertext, Nonce: nonce,
	})
	return row.ID
}

func (s *memStore) History(_ context.Context, a, b string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	low, high := models.SortedPair(a, b)
	out := []models.Message{}
	for _, row := range s.rows {
		if row.PairLow == low && row.PairHigh == high {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memStore) Latest(ctx context.Context, a, b string) (*models.Message, error) {
	rows, _ := s.History(ctx, a, b)
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[len(rows)-1], nil
}

func (s *memStore) FindMessage(_ context.Context, id uint64) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.ID == id {
			return &row, nil
		}
	}
	return nil, nil
}

// MockStore is a testify mock of storage.MessageStore for failure paths.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Append(ctx context.Context, p storage.AppendParams) (*models.Message, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStore) History(ctx context.Context, a, b string) ([]models.Message, error) {
	args := m.Called(ctx, a, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStore) Latest(ctx context.Context, a, b string) (*models.Message, error) {
	args := m.Called(ctx, a, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStore) FindMessage(ctx context.Context, id uint64) (*models.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

// MockPubSub records published messages instead of talking to Redis.
type MockPubSub struct {
	mock.Mock
}

func (m *MockPubSub) PublishMessage(ctx context.Context, msg models.ChatMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockPubSub) SubscribeMessages(ctx context.Context) (*redis.PubSub, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*redis.PubSub), args.Error(1)
}

func newTestCodec(t *testing.T) *codec.Codec {
	t.Helper()
	key, err := codec.GenerateKey()
	require.NoError(t, err)
	c, err := codec.New(key, codec.AlgorithmAESGCM)
	require.NoError(t, err)
	return c
}
