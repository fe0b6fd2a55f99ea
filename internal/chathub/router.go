package chathub

import (
	"marketchat/backend/internal/metrics"
	"marketchat/backend/internal/models"
	"sync"

	"go.uber.org/zap"
)

// ChannelKey identifies the broadcast channel of an unordered pair.
type ChannelKey struct {
	Low, High string
}

// PairKey returns the channel key of a pair; PairKey(a, b) == PairKey(b, a).
func PairKey(a, b string) ChannelKey {
	low, high := models.SortedPair(a, b)
	return ChannelKey{Low: low, High: high}
}

func (k ChannelKey) String() string { return k.Low + ":" + k.High }

// Router tracks which connections are members of which pair channel.
// Rooms are created on first join and removed when the last member leaves.
type Router struct {
	mu          sync.RWMutex
	rooms       map[ChannelKey]map[string]Client
	memberships map[string]map[ChannelKey]struct{}
	logger      *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		rooms:       make(map[ChannelKey]map[string]Client),
		memberships: make(map[string]map[ChannelKey]struct{}),
		logger:      logger,
	}
}

// Join adds client to the channel. Joining twice is a no-op.
func (r *Router) Join(client Client, key ChannelKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[key]
	if !ok {
		room = make(map[string]Client)
		r.rooms[key] = room
	}
	room[client.GetID()] = client

	keys, ok := r.memberships[client.GetID()]
	if !ok {
		keys = make(map[ChannelKey]struct{})
		r.memberships[client.GetID()] = keys
	}
	keys[key] = struct{}{}

	metrics.ActiveRooms.Set(float64(len(r.rooms)))
}

// Broadcast delivers ev to every current member of the channel and returns
// how many members accepted it. Members with a full buffer miss the event.
func (r *Router) Broadcast(key ChannelKey, ev models.Event) int {
	members := r.Members(key)

	delivered := 0
	for _, client := range members {
		if client.Deliver(ev) {
			delivered++
			continue
		}
		metrics.BroadcastDropped.Inc()
		r.logger.Warn("dropping event for slow connection",
			zap.String("connection_id", client.GetID()),
			zap.String("channel", key.String()),
			zap.String("event", ev.Event),
		)
	}
	return delivered
}

// Leave removes client from every channel it joined.
func (r *Router) Leave(client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := client.GetID()
	for key := range r.memberships[id] {
		room := r.rooms[key]
		delete(room, id)
		if len(room) == 0 {
			delete(r.rooms, key)
		}
	}
	delete(r.memberships, id)

	metrics.ActiveRooms.Set(float64(len(r.rooms)))
}

// Members returns a snapshot of the channel's members.
func (r *Router) Members(key ChannelKey) []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[key]
	members := make([]Client, 0, len(room))
	for _, client := range room {
		members = append(members, client)
	}
	return members
}

// RoomsOf returns the channels client is a member of.
func (r *Router) RoomsOf(client Client) []ChannelKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]ChannelKey, 0, len(r.memberships[client.GetID()]))
	for key := range r.memberships[client.GetID()] {
		keys = append(keys, key)
	}
	return keys
}

// RoomCount returns the number of non-empty channels.
func (r *Router) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
