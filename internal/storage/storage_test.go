package storage

import (
	"context"
	"fmt"
	"marketchat/backend/internal/models"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestService opens a private in-memory SQLite database per test.
func newTestService(t *testing.T, now func() time.Time) *Service {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: now,
		Logger:  gormlogger.Discard,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Migrate(db))
	return NewStorageService(db, nil, "chat:test")
}

// steppingClock returns strictly increasing timestamps.
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func appendText(t *testing.T, s *Service, from, to, body string) *models.Message {
	t.Helper()
	msg, err := s.Append(context.Background(), AppendParams{
		SenderID:   from,
		ReceiverID: to,
		Ciphertext: []byte(body),
		Nonce:      []byte("nonce-" + body),
	})
	require.NoError(t, err)
	return msg
}

func TestAppend_AssignsIDAndTimestamp(t *testing.T) {
	s := newTestService(t, steppingClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)))

	first := appendText(t, s, "bob", "alice", "hola")
	second := appendText(t, s, "alice", "bob", "qué tal")

	assert.NotZero(t, first.ID)
	assert.Greater(t, second.ID, first.ID)
	assert.False(t, first.CreatedAt.IsZero())
	assert.True(t, second.CreatedAt.After(first.CreatedAt))
	assert.Equal(t, "alice", first.PairLow)
	assert.Equal(t, "bob", first.PairHigh)
	assert.Equal(t, "bob", first.SenderID)
}

func TestHistory_OrderedAndSymmetric(t *testing.T) {
	s := newTestService(t, steppingClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)))
	ctx := context.Background()

	appendText(t, s, "alice", "bob", "m1")
	appendText(t, s, "bob", "alice", "m2")
	appendText(t, s, "alice", "carol", "other pair")
	appendText(t, s, "alice", "bob", "m3")

	fromAlice, err := s.History(ctx, "alice", "bob")
	require.NoError(t, err)
	fromBob, err := s.History(ctx, "bob", "alice")
	require.NoError(t, err)

	require.Len(t, fromAlice, 3)
	assert.Equal(t, fromAlice, fromBob)

	var bodies []string
	for _, m := range fromAlice {
		bodies = append(bodies, string(m.Ciphertext))
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, bodies)
}

func TestHistory_EmptyPair(t *testing.T) {
	s := newTestService(t, nil)

	rows, err := s.History(context.Background(), "alice", "nobody")
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestTimestampTiesBrokenByID(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	s := newTestService(t, func() time.Time { return fixed })
	ctx := context.Background()

	a := appendText(t, s, "alice", "bob", "first")
	b := appendText(t, s, "bob", "alice", "second")

	rows, err := s.History(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, a.ID, rows[0].ID)
	assert.Equal(t, b.ID, rows[1].ID)

	latest, err := s.Latest(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, b.ID, latest.ID)
}

func TestLatest(t *testing.T) {
	s := newTestService(t, steppingClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)))
	ctx := context.Background()

	none, err := s.Latest(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Nil(t, none)

	appendText(t, s, "alice", "bob", "old")
	newest := appendText(t, s, "bob", "alice", "new")

	latest, err := s.Latest(ctx, "bob", "alice")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, newest.ID, latest.ID)
	assert.Equal(t, []byte("new"), latest.Ciphertext)
	assert.Equal(t, []byte("nonce-new"), latest.Nonce)
}

func TestFindMessage(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()

	stored := appendText(t, s, "alice", "bob", "hola")
	reply := stored.ID
	answer, err := s.Append(ctx, AppendParams{
		SenderID: "bob", ReceiverID: "alice",
		Ciphertext: []byte("x"), Nonce: []byte("n"),
		ReplyTo: &reply,
	})
	require.NoError(t, err)

	found, err := s.FindMessage(ctx, answer.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.NotNil(t, found.ReplyTo)
	assert.Equal(t, stored.ID, *found.ReplyTo)

	missing, err := s.FindMessage(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAppend_FailureIsPersistenceError(t *testing.T) {
	s := newTestService(t, nil)
	sqlDB, err := s.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	msg, err := s.Append(context.Background(), AppendParams{SenderID: "a", ReceiverID: "b", Ciphertext: []byte("c"), Nonce: []byte("n")})
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, ErrPersistence)

	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "append", pe.Op)

	assert.ErrorIs(t, s.Ping(context.Background()), ErrPersistence)
}

func TestDirectory(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()

	users := []models.User{
		{ID: "u1", Name: "Valentina", Email: "v@example.com", ProfilePhoto: "/uploads/v.png"},
		{ID: "u2", Name: "Andrés", Email: "a@example.com"},
		{ID: "u3", Name: "Camila", Email: "c@example.com"},
	}
	require.NoError(t, s.DB.Create(&users).Error)

	contacts, err := s.ListContacts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "Andrés", contacts[0].Name)
	assert.Equal(t, "Camila", contacts[1].Name)

	user, err := s.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "/uploads/v.png", user.ProfilePhoto)

	missing, err := s.GetUserByID(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.NoError(t, s.Ping(ctx))
}
