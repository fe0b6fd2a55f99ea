package chathub

import (
	"marketchat/backend/internal/codec"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/localization"
	"marketchat/backend/internal/metrics"
	"marketchat/backend/internal/storage"
	"sync"

	"go.uber.org/zap"
)

// Options tune a ManagerService. Zero values select local fanout, the skip
// replay policy and English-only notices.
type Options struct {
	ReplayPolicy string
	// PubSub, when set, routes broadcasts through Redis so rooms span
	// instances.
	PubSub    PubSub
	Localizer *localization.Localizer
}

// ManagerService owns the room router and the shared dependencies of every
// session on this instance.
type ManagerService struct {
	Router   *Router
	Store    storage.MessageStore
	Codec    *codec.Codec
	Resolver *LastMessageResolver

	fanout       Fanout
	pubsub       PubSub
	localizer    *localization.Localizer
	replayPolicy string
	logger       *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManagerService(store storage.MessageStore, c *codec.Codec, opts Options, logger *zap.Logger) *ManagerService {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &ManagerService{
		Router:       NewRouter(logger),
		Store:        store,
		Codec:        c,
		Resolver:     NewLastMessageResolver(store, c),
		pubsub:       opts.PubSub,
		localizer:    opts.Localizer,
		replayPolicy: opts.ReplayPolicy,
		logger:       logger,
		sessions:     make(map[string]*Session),
	}
	if m.replayPolicy == "" {
		m.replayPolicy = config.ReplaySkip
	}

	if opts.PubSub != nil {
		m.fanout = &RedisFanout{pubsub: opts.PubSub}
	} else {
		m.fanout = &LocalFanout{router: m.Router}
	}
	return m
}

// NewSession registers a connection with the hub.
func (m *ManagerService) NewSession(client Client, lang string) *Session {
	s := &Session{
		hub:    m,
		client: client,
		lang:   localization.Normalize(lang),
		state:  StateConnected,
		logger: m.logger.With(
			zap.String("connection_id", client.GetID()),
			zap.String("user_id", client.GetUserID()),
		),
	}

	m.mu.Lock()
	m.sessions[client.GetID()] = s
	m.mu.Unlock()

	metrics.ActiveConnections.Inc()
	s.logger.Debug("connection registered")
	return s
}

func (m *ManagerService) unregister(s *Session) {
	m.mu.Lock()
	_, ok := m.sessions[s.client.GetID()]
	delete(m.sessions, s.client.GetID())
	m.mu.Unlock()

	if ok {
		metrics.ActiveConnections.Dec()
	}
}

// SessionCount returns the number of open connections.
func (m *ManagerService) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown disconnects every open session.
func (m *ManagerService) Shutdown() {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		s.Disconnect()
	}
	m.logger.Info("all sessions closed", zap.Int("count", len(open)))
}

func (m *ManagerService) translate(lang, key string) string {
	if m.localizer == nil {
		return key
	}
	return m.localizer.GetString(lang, key)
}
