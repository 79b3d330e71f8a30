package broadcaster

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Registry interface {
	Admit(userId string, stream Stream) *Connection
	Remove(userId string)
	Release(connection *Connection) bool
	Evict(connection *Connection, reason CloseReason) bool
	Lookup(userId string) (*Connection, bool)
	Connections() []*Connection
	Touch(userId string)
}

// InMemoryRegistry keeps at most one live connection per user.
type InMemoryRegistry struct {
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time

	mu          sync.RWMutex
	connections map[string]*Connection
}

func NewInMemoryRegistry(
	logger *zap.Logger,
	metrics *Metrics,
) *InMemoryRegistry {
	return &InMemoryRegistry{
		logger:      logger,
		metrics:     metrics,
		now:         time.Now,
		connections: make(map[string]*Connection),
	}
}

// Admit registers stream as the live connection of userId. A previous
// connection of the same user is closed and replaced in the same critical
// section, so a lookup never observes both.
func (r *InMemoryRegistry) Admit(userId string, stream Stream) *Connection {
	connection := newConnection(userId, stream, r.now())

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.connections[userId]; ok {
		r.logger.Info("replacing existing connection",
			zap.String("userId", userId),
			zap.String("connectionId", existing.Id))

		r.closeLocked(existing, CloseReplaced)
	}

	r.connections[userId] = connection

	r.metrics.IncConnectionsAdmitted()
	r.metrics.SetConnectionsActive(len(r.connections))

	r.logger.Info("user connected",
		zap.String("userId", userId),
		zap.String("connectionId", connection.Id),
		zap.Int("totalConnections", len(r.connections)))

	return connection
}

func (r *InMemoryRegistry) Remove(userId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[userId]; !ok {
		return
	}

	r.deleteLocked(userId)
}

// Release removes connection only if it is still the live connection of its
// user. It reports whether an entry was removed.
func (r *InMemoryRegistry) Release(connection *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connections[connection.UserId] != connection {
		return false
	}

	r.deleteLocked(connection.UserId)

	return true
}

// Evict closes and removes connection if it is still the live connection of
// its user.
func (r *InMemoryRegistry) Evict(connection *Connection, reason CloseReason) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connections[connection.UserId] != connection {
		return false
	}

	r.closeLocked(connection, reason)
	r.deleteLocked(connection.UserId)

	return true
}

// CloseAll closes every live connection and empties the registry.
func (r *InMemoryRegistry) CloseAll(reason CloseReason) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userId, connection := range r.connections {
		r.closeLocked(connection, reason)
		r.deleteLocked(userId)
	}
}

func (r *InMemoryRegistry) Lookup(userId string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connection, ok := r.connections[userId]

	return connection, ok
}

// Connections returns a point-in-time copy of the live connections.
func (r *InMemoryRegistry) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connections := make([]*Connection, 0, len(r.connections))
	for _, connection := range r.connections {
		connections = append(connections, connection)
	}

	return connections
}

func (r *InMemoryRegistry) Touch(userId string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if connection, ok := r.connections[userId]; ok {
		connection.touch(r.now())
	}
}

// IMPORTANT: It must be called only when a write lock is already held.
func (r *InMemoryRegistry) closeLocked(connection *Connection, reason CloseReason) {
	connection.stream.Close(reason)

	if reason.Cause != "" {
		r.metrics.IncConnectionsEvicted(reason.Cause)
	}
}

// IMPORTANT: It must be called only when a write lock is already held.
func (r *InMemoryRegistry) deleteLocked(userId string) {
	delete(r.connections, userId)

	r.metrics.SetConnectionsActive(len(r.connections))

	r.logger.Info("user disconnected",
		zap.String("userId", userId),
		zap.Int("totalConnections", len(r.connections)))
}

type HeartbeatStatus struct {
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	AgeSeconds    int64     `json:"ageSeconds"`
}

type Stats struct {
	TotalConnections int                        `json:"totalConnections"`
	ConnectedUsers   []string                   `json:"connectedUsers"`
	HeartbeatStatus  map[string]HeartbeatStatus `json:"heartbeatStatus"`
}

func CollectStats(registry Registry, now time.Time) Stats {
	connections := registry.Connections()

	stats := Stats{
		TotalConnections: len(connections),
		ConnectedUsers:   make([]string, 0, len(connections)),
		HeartbeatStatus:  make(map[string]HeartbeatStatus, len(connections)),
	}

	for _, connection := range connections {
		lastHeartbeat := connection.LastHeartbeat()

		stats.ConnectedUsers = append(stats.ConnectedUsers, connection.UserId)
		stats.HeartbeatStatus[connection.UserId] = HeartbeatStatus{
			LastHeartbeat: lastHeartbeat,
			AgeSeconds:    int64(now.Sub(lastHeartbeat) / time.Second),
		}
	}

	sort.Strings(stats.ConnectedUsers)

	return stats
}
