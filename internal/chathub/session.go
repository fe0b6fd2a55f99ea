package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"marketchat/backend/internal/codec"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/metrics"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/storage"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrSessionClosed = errors.New("session is closed")
	ErrInvalidPair   = errors.New("sender and receiver are required")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrInvalidReply  = errors.New("reply target is not a message of this pair")
	ErrForbidden     = errors.New("connection is not allowed to act for this user")
	ErrBadRequest    = errors.New("malformed request")
	ErrUnknownEvent  = errors.New("unknown event")
)

// Error codes carried by "error" events.
const (
	CodeBadRequest         = "bad_request"
	CodeUnknownEvent       = "unknown_event"
	CodeInvalidPair        = "invalid_pair"
	CodeEmptyMessage       = "empty_message"
	CodeInvalidReply       = "invalid_reply"
	CodeForbidden          = "forbidden"
	CodePersistence        = "persistence"
	CodeHistoryUnavailable = "history_unavailable"
	CodeHistorySkipped     = "history_skipped"
	CodeDecryption         = "decryption"
	CodeInternal           = "internal"
)

type SessionState int

const (
	StateConnected SessionState = iota
	StateJoined
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session is the per-connection state machine. Its operations are called
// one at a time by the connection's read loop; Disconnect may also come
// from the hub during shutdown.
type Session struct {
	hub    *ManagerService
	client Client
	lang   string
	logger *zap.Logger

	mu    sync.Mutex
	state SessionState
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Client() Client { return s.client }

// Handle decodes one inbound event and runs the matching operation.
func (s *Session) Handle(ctx context.Context, ev models.Event) error {
	switch ev.Event {
	case models.EventJoin:
		var req models.PairRequest
		if err := decode(ev.Data, &req); err != nil {
			return s.fail(ev.Event, err)
		}
		return s.Join(ctx, req)

	case models.EventSendMessage:
		var req models.SendRequest
		if err := decode(ev.Data, &req); err != nil {
			return s.fail(ev.Event, err)
		}
		return s.Send(ctx, req)

	case models.EventGetLastMessage:
		var req models.PairRequest
		if err := decode(ev.Data, &req); err != nil {
			return s.fail(ev.Event, err)
		}
		return s.LastMessage(ctx, req)
	}

	return s.fail(ev.Event, ErrUnknownEvent)
}

// Join subscribes the connection to the pair's channel and replays the
// pair's history to this connection only.
func (s *Session) Join(ctx context.Context, req models.PairRequest) error {
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	if err := s.authorize(req.SenderID); err != nil {
		return s.fail(models.EventJoin, err)
	}
	if err := validatePair(req.SenderID, req.ReceiverID); err != nil {
		return s.fail(models.EventJoin, err)
	}

	s.hub.Router.Join(s.client, PairKey(req.SenderID, req.ReceiverID))
	s.mu.Lock()
	if s.state == StateConnected {
		s.state = StateJoined
	}
	s.mu.Unlock()

	rows, err := s.hub.Store.History(ctx, req.SenderID, req.ReceiverID)
	if err != nil {
		s.logger.Error("history unavailable", zap.Error(err))
		s.notify(models.EventJoin, CodeHistoryUnavailable, nil)
		return err
	}

	replay := make([]models.ChatMessage, 0, len(rows))
	var skipped []uint64
	for i := range rows {
		msg, err := decryptRow(s.hub.Codec, &rows[i])
		if err == nil {
			replay = append(replay, msg)
			continue
		}

		s.logger.Warn("stored message could not be decrypted",
			zap.Uint64("message_id", rows[i].ID),
			zap.Error(err),
		)
		if s.hub.replayPolicy == config.ReplayAbort {
			s.notify(models.EventJoin, CodeDecryption, []uint64{rows[i].ID})
			return err
		}
		metrics.HistoryRowsSkipped.Inc()
		skipped = append(skipped, rows[i].ID)
	}

	s.emit(models.EventLoadMessages, replay)
	if len(skipped) > 0 {
		s.notify(models.EventJoin, CodeHistorySkipped, skipped)
	}
	return nil
}

// Send encrypts and stores a message, then broadcasts what was stored to the
// pair's channel. Nothing is broadcast unless the row was persisted.
func (s *Session) Send(ctx context.Context, req models.SendRequest) error {
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	if err := s.authorize(req.SenderID); err != nil {
		return s.rejectSend(err)
	}
	if err := validatePair(req.SenderID, req.ReceiverID); err != nil {
		return s.rejectSend(err)
	}
	if strings.TrimSpace(req.Plaintext) == "" {
		return s.rejectSend(ErrEmptyMessage)
	}
	if req.ReplyTo != nil {
		if err := s.validateReply(ctx, req); err != nil {
			return s.rejectSend(err)
		}
	}

	ciphertext, nonce, err := s.hub.Codec.Encrypt([]byte(req.Plaintext))
	if err != nil {
		return s.rejectSend(err)
	}

	row, err := s.hub.Store.Append(ctx, storage.AppendParams{
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		Ciphertext: ciphertext,
		Nonce:      nonce,
		ReplyTo:    req.ReplyTo,
	})
	if err != nil {
		s.logger.Error("message not persisted", zap.Error(err))
		return s.rejectSend(err)
	}

	// Broadcast what the store holds, not what the client sent.
	msg, err := decryptRow(s.hub.Codec, row)
	if err != nil {
		s.logger.Error("stored message could not be decrypted", zap.Uint64("message_id", row.ID), zap.Error(err))
		return s.rejectSend(err)
	}

	if err := s.hub.fanout.Publish(ctx, msg); err != nil {
		s.logger.Error("message stored but not broadcast", zap.Uint64("message_id", row.ID), zap.Error(err))
		metrics.SendFailures.WithLabelValues("broadcast").Inc()
		s.notify(models.EventSendMessage, CodeInternal, []uint64{row.ID})
		return err
	}

	metrics.MessagesSent.Inc()
	return nil
}

// LastMessage sends the newest message of the pair, or null, to this
// connection. It does not require a join.
func (s *Session) LastMessage(ctx context.Context, req models.PairRequest) error {
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	if user := s.client.GetUserID(); user != "" && user != req.SenderID && user != req.ReceiverID {
		return s.fail(models.EventGetLastMessage, ErrForbidden)
	}
	if err := validatePair(req.SenderID, req.ReceiverID); err != nil {
		return s.fail(models.EventGetLastMessage, err)
	}

	msg, err := s.hub.Resolver.Get(ctx, req.SenderID, req.ReceiverID)
	if err != nil {
		s.logger.Error("last message unavailable", zap.Error(err))
		return s.fail(models.EventGetLastMessage, err)
	}

	s.emit(models.EventLastMessage, msg)
	return nil
}

// Disconnect leaves every channel and closes the connection. Later
// operations return ErrSessionClosed.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	s.hub.Router.Leave(s.client)
	s.hub.unregister(s)
	s.client.Close()
	s.logger.Debug("connection closed")
}

func (s *Session) authorize(senderID string) error {
	if user := s.client.GetUserID(); user != "" && user != senderID {
		return ErrForbidden
	}
	return nil
}

func (s *Session) validateReply(ctx context.Context, req models.SendRequest) error {
	target, err := s.hub.Store.FindMessage(ctx, *req.ReplyTo)
	if err != nil {
		return err
	}
	if target == nil || PairKey(target.SenderID, target.ReceiverID) != PairKey(req.SenderID, req.ReceiverID) {
		return ErrInvalidReply
	}
	return nil
}

func (s *Session) rejectSend(err error) error {
	metrics.SendFailures.WithLabelValues(errorCode(err)).Inc()
	return s.fail(models.EventSendMessage, err)
}

// fail reports err to this connection and returns it.
func (s *Session) fail(event string, err error) error {
	s.notify(event, errorCode(err), nil)
	return err
}

func (s *Session) notify(event, code string, ids []uint64) {
	s.emit(models.EventError, models.ErrorNotice{
		Event:      event,
		Code:       code,
		Message:    s.hub.translate(s.lang, "error."+code),
		MessageIDs: ids,
	})
}

func (s *Session) emit(name string, data any) {
	ev, err := models.NewEvent(name, data)
	if err != nil {
		s.logger.Error("encode event", zap.String("event", name), zap.Error(err))
		return
	}
	if !s.client.Deliver(ev) {
		s.logger.Warn("event dropped", zap.String("event", name))
	}
}

func validatePair(a, b string) error {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return ErrInvalidPair
	}
	return nil
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return ErrBadRequest
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Join(ErrBadRequest, err)
	}
	return nil
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrBadRequest):
		return CodeBadRequest
	case errors.Is(err, ErrUnknownEvent):
		return CodeUnknownEvent
	case errors.Is(err, ErrInvalidPair):
		return CodeInvalidPair
	case errors.Is(err, ErrEmptyMessage):
		return CodeEmptyMessage
	case errors.Is(err, ErrInvalidReply):
		return CodeInvalidReply
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, storage.ErrPersistence):
		return CodePersistence
	case errors.Is(err, codec.ErrDecryption):
		return CodeDecryption
	}
	return CodeInternal
}
