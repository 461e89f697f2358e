// Package websocket is the realtime presence registry and event router.
// Uses github.com/coder/websocket - the modern, context-aware WebSocket library for Go.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zfogg/snapgram/internal/cluster"
	"github.com/zfogg/snapgram/internal/logger"
	"github.com/zfogg/snapgram/internal/metrics"
	"go.uber.org/zap"
)

const (
	// outboxSize bounds envelopes waiting for the cluster publisher
	outboxSize = 1024

	// publishTimeout bounds one broker publish
	publishTimeout = 2 * time.Second

	defaultSyncInterval = 15 * time.Second
)

// Eviction reasons
const (
	EvictSlowConsumer = "slow_consumer"
	EvictRateLimited  = "rate_limited"
	EvictHeartbeat    = "heartbeat_timeout"
	EvictShutdown     = "server_shutdown"
)

// HubConfig configures a Hub
type HubConfig struct {
	// MultiSession keeps every handle per user instead of only the latest
	MultiSession bool

	// Broker enables cross-instance fan-out. Nil runs single process.
	Broker       cluster.Broker
	InstanceID   string
	SyncInterval time.Duration
}

// Hub owns the presence registry and routes events to connections.
// Every operation is total: failures to reach a client are logged and
// counted, never returned.
type Hub struct {
	registry *Registry

	// lifecycle serializes registry mutations with the roster broadcast that
	// follows them, so clients observe rosters in mutation order
	lifecycle sync.Mutex

	broker       cluster.Broker
	instanceID   string
	remote       *cluster.RosterTracker
	syncInterval time.Duration
	outbox       chan *cluster.Envelope

	stats *Stats
	prom  *metrics.Metrics

	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	done    chan struct{}
	closed  atomic.Bool
}

// Stats tracks hub counters
type Stats struct {
	TotalConnections   atomic.Int64
	MessagesSent       atomic.Int64
	DeliveriesOffline  atomic.Int64
	DeliveriesDropped  atomic.Int64
	RosterBroadcasts   atomic.Int64
	ConnectionsEvicted atomic.Int64
	ClusterIn          atomic.Int64
	ClusterOut         atomic.Int64
}

// StatsSnapshot is a point-in-time snapshot of hub counters
type StatsSnapshot struct {
	InstanceID         string `json:"instance_id"`
	SessionMode        string `json:"session_mode"`
	ActiveConnections  int    `json:"active_connections"`
	RegisteredUsers    int    `json:"registered_users"`
	RemoteInstances    int    `json:"remote_instances"`
	TotalConnections   int64  `json:"total_connections"`
	MessagesSent       int64  `json:"messages_sent"`
	DeliveriesOffline  int64  `json:"deliveries_offline"`
	DeliveriesDropped  int64  `json:"deliveries_dropped"`
	RosterBroadcasts   int64  `json:"roster_broadcasts"`
	ConnectionsEvicted int64  `json:"connections_evicted"`
	ClusterIn          int64  `json:"cluster_in"`
	ClusterOut         int64  `json:"cluster_out"`
}

// String implements Stringer for StatsSnapshot
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"connections=%d/%d users=%d sent=%d offline=%d dropped=%d evicted=%d cluster=rx:%d/tx:%d",
		s.ActiveConnections, s.TotalConnections, s.RegisteredUsers,
		s.MessagesSent, s.DeliveriesOffline, s.DeliveriesDropped,
		s.ConnectionsEvicted, s.ClusterIn, s.ClusterOut,
	)
}

// NewHub creates a new Hub instance
func NewHub(cfg HubConfig) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.InstanceID == "" {
		cfg.InstanceID = cluster.NewInstanceID()
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = defaultSyncInterval
	}

	h := &Hub{
		registry:     NewRegistry(cfg.MultiSession),
		broker:       cfg.Broker,
		instanceID:   cfg.InstanceID,
		syncInterval: cfg.SyncInterval,
		stats:        &Stats{},
		prom:         metrics.Get(),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	if cfg.Broker != nil {
		h.remote = cluster.NewRosterTracker(3 * cfg.SyncInterval)
		h.outbox = make(chan *cluster.Envelope, outboxSize)
	}
	return h
}

// InstanceID identifies this hub on the cluster bus
func (h *Hub) InstanceID() string {
	return h.instanceID
}

// Attach registers a newly connected transport connection. Connections with a
// user id enter the registry and every connection receives the new roster.
// Anonymous connections only receive the current roster themselves.
func (h *Hub) Attach(conn Conn) {
	if h.closed.Load() {
		conn.Close(EvictShutdown)
		return
	}

	h.lifecycle.Lock()
	registered := h.registry.Register(conn)
	h.stats.TotalConnections.Add(1)
	h.updateGauges()

	var slow []Conn
	if registered {
		slow = h.broadcastRosterLocked()
	} else if err := conn.Send(NewMessage(EventPresenceRoster, h.globalRoster())); err != nil {
		slow = h.sendFailed(conn, err)
	}
	h.lifecycle.Unlock()

	logger.Log.Info("Realtime client connected",
		logger.WithConnID(conn.ID()),
		logger.WithUserID(conn.UserID()),
		zap.Bool("registered", registered),
		zap.Int("active", h.registry.ConnectionCount()),
	)

	if registered {
		h.publishRoster()
	}
	h.evictAll(slow, EvictSlowConsumer)
}

// Detach removes a disconnected transport connection. The registry entry is
// only removed when conn is the handle stored for its user. Detach is
// idempotent.
func (h *Hub) Detach(conn Conn) {
	h.lifecycle.Lock()
	if !h.registry.Tracked(conn) {
		h.lifecycle.Unlock()
		return
	}
	changed := h.registry.Unregister(conn)
	h.updateGauges()

	var slow []Conn
	if changed {
		slow = h.broadcastRosterLocked()
	}
	h.lifecycle.Unlock()

	logger.Log.Info("Realtime client disconnected",
		logger.WithConnID(conn.ID()),
		logger.WithUserID(conn.UserID()),
		zap.Bool("registry_changed", changed),
		zap.Int("active", h.registry.ConnectionCount()),
	)

	if changed {
		h.publishRoster()
	}
	h.evictAll(slow, EvictSlowConsumer)
}

// Lookup returns the most recently registered local handle for userID
func (h *Hub) Lookup(userID string) (Conn, bool) {
	return h.registry.Lookup(userID)
}

// Deliver routes one event to userID. The payload is passed through
// untouched. It reports whether the event was handed to at least one local
// connection or forwarded to the instance holding the user. An offline target
// is not an error.
func (h *Hub) Deliver(userID, event string, payload interface{}) bool {
	if userID == "" {
		return false
	}

	targets := h.registry.Targets(userID)
	if len(targets) == 0 {
		if h.remote != nil && h.remote.Has(userID) {
			return h.forward(userID, NewMessage(event, payload))
		}
		h.stats.DeliveriesOffline.Add(1)
		h.prom.RecordDelivery(event, metrics.OutcomeOffline)
		logger.Log.Debug("Realtime target offline", logger.WithUserID(userID), logger.WithEvent(event))
		return false
	}

	return h.sendTo(targets, NewMessage(event, payload))
}

// BroadcastRoster sends the current roster to every live connection
func (h *Hub) BroadcastRoster() {
	h.lifecycle.Lock()
	slow := h.broadcastRosterLocked()
	h.lifecycle.Unlock()
	h.evictAll(slow, EvictSlowConsumer)
}

// IsOnline reports whether userID is connected to this or any other instance
func (h *Hub) IsOnline(userID string) bool {
	if h.registry.Has(userID) {
		return true
	}
	return h.remote != nil && h.remote.Has(userID)
}

// OnlineUsers returns the sorted global roster
func (h *Hub) OnlineUsers() []string {
	return h.globalRoster()
}

// OnlineStatuses answers a bulk presence query in request order
func (h *Hub) OnlineStatuses(userIDs []string) []OnlineStatus {
	statuses := make([]OnlineStatus, 0, len(userIDs))
	for _, id := range userIDs {
		statuses = append(statuses, OnlineStatus{UserID: id, IsOnline: h.IsOnline(id)})
	}
	return statuses
}

// ConnectionCount returns the number of local transport connections
func (h *Hub) ConnectionCount() int {
	return h.registry.ConnectionCount()
}

// UserConnectionCount returns the number of local handles for userID
func (h *Hub) UserConnectionCount(userID string) int {
	return h.registry.ConnectionsFor(userID)
}

// Stats returns current hub counters
func (h *Hub) Stats() StatsSnapshot {
	mode := "single"
	if h.registry.MultiSession() {
		mode = "multi"
	}
	remote := 0
	if h.remote != nil {
		remote = h.remote.Instances()
	}
	return StatsSnapshot{
		InstanceID:         h.instanceID,
		SessionMode:        mode,
		ActiveConnections:  h.registry.ConnectionCount(),
		RegisteredUsers:    h.registry.UserCount(),
		RemoteInstances:    remote,
		TotalConnections:   h.stats.TotalConnections.Load(),
		MessagesSent:       h.stats.MessagesSent.Load(),
		DeliveriesOffline:  h.stats.DeliveriesOffline.Load(),
		DeliveriesDropped:  h.stats.DeliveriesDropped.Load(),
		RosterBroadcasts:   h.stats.RosterBroadcasts.Load(),
		ConnectionsEvicted: h.stats.ConnectionsEvicted.Load(),
		ClusterIn:          h.stats.ClusterIn.Load(),
		ClusterOut:         h.stats.ClusterOut.Load(),
	}
}

// Run drives cluster fan-out until ctx is cancelled or Shutdown is called.
// Without a broker it only waits. On exit every connection is closed.
func (h *Hub) Run(ctx context.Context) error {
	if !h.running.CompareAndSwap(false, true) {
		return errors.New("hub already running")
	}
	defer close(h.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-h.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Log.Info("Realtime hub starting",
		zap.String("instance_id", h.instanceID),
		zap.Bool("clustered", h.broker != nil),
		zap.Bool("multi_session", h.registry.MultiSession()),
	)

	if h.broker != nil {
		if err := h.broker.Subscribe(ctx, h.handleEnvelope); err != nil {
			h.closeAll()
			return fmt.Errorf("cluster subscribe: %w", err)
		}
		go h.publishLoop(ctx)
		h.publishRoster()

		ticker := time.NewTicker(h.syncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				h.leave()
				h.closeAll()
				return nil
			case <-ticker.C:
				h.publishRoster()
				if h.remote.Prune() {
					h.BroadcastRoster()
				}
			}
		}
	}

	<-ctx.Done()
	h.closeAll()
	return nil
}

// Shutdown stops Run and closes every connection
func (h *Hub) Shutdown(ctx context.Context) error {
	logger.Log.Info("Initiating realtime hub shutdown")
	h.cancel()

	if !h.running.Load() {
		h.closeAll()
		return nil
	}

	select {
	case <-h.done:
		logger.Log.Info("Realtime hub shutdown complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

// globalRoster is the local registry keys union fresh remote snapshots
func (h *Hub) globalRoster() []string {
	local := h.registry.Roster()
	if h.remote == nil {
		return local
	}

	seen := make(map[string]struct{}, len(local))
	users := make([]string, 0, len(local))
	users = append(users, local...)
	for _, u := range local {
		seen[u] = struct{}{}
	}
	for _, u := range h.remote.Users() {
		if _, ok := seen[u]; !ok {
			users = append(users, u)
		}
	}
	sort.Strings(users)
	return users
}

// broadcastRosterLocked must be called with lifecycle held. It returns the
// connections whose buffers were full.
func (h *Hub) broadcastRosterLocked() []Conn {
	msg := NewMessage(EventPresenceRoster, h.globalRoster())

	var slow []Conn
	for _, conn := range h.registry.Connections() {
		if err := conn.Send(msg); err != nil {
			slow = append(slow, h.sendFailed(conn, err)...)
			continue
		}
		h.stats.MessagesSent.Add(1)
	}

	h.stats.RosterBroadcasts.Add(1)
	h.prom.RealtimeRosterBroadcasts.Inc()
	return slow
}

func (h *Hub) sendTo(targets []Conn, msg *Message) bool {
	sent := false
	var slow []Conn
	for _, conn := range targets {
		if err := conn.Send(msg); err != nil {
			h.stats.DeliveriesDropped.Add(1)
			h.prom.RecordDelivery(msg.Event, metrics.OutcomeDropped)
			slow = append(slow, h.sendFailed(conn, err)...)
			continue
		}
		sent = true
		h.stats.MessagesSent.Add(1)
		h.prom.RecordDelivery(msg.Event, metrics.OutcomeSent)
	}
	h.evictAll(slow, EvictSlowConsumer)
	return sent
}

// sendFailed logs a failed send and returns conn when it should be evicted
func (h *Hub) sendFailed(conn Conn, err error) []Conn {
	if errors.Is(err, ErrSendBufferFull) {
		return []Conn{conn}
	}
	logger.Log.Debug("Realtime send skipped",
		logger.WithConnID(conn.ID()),
		logger.WithUserID(conn.UserID()),
		zap.Error(err),
	)
	return nil
}

func (h *Hub) evictAll(conns []Conn, reason string) {
	for _, conn := range conns {
		h.evict(conn, reason)
	}
}

// evict closes conn and runs the normal disconnect path
func (h *Hub) evict(conn Conn, reason string) {
	if conn.State() != StateDisconnected {
		logger.Log.Warn("Evicting realtime client",
			logger.WithConnID(conn.ID()),
			logger.WithUserID(conn.UserID()),
			zap.String("reason", reason),
		)
		h.stats.ConnectionsEvicted.Add(1)
		h.prom.RecordEviction(reason)
		conn.Close(reason)
	}
	h.Detach(conn)
}

func (h *Hub) closeAll() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}

	h.lifecycle.Lock()
	conns := h.registry.Connections()
	for _, conn := range conns {
		h.registry.Unregister(conn)
	}
	h.updateGauges()
	h.lifecycle.Unlock()

	for _, conn := range conns {
		conn.Close(EvictShutdown)
	}
	logger.Log.Info("Closed realtime connections during shutdown", zap.Int("count", len(conns)))
}

func (h *Hub) updateGauges() {
	h.prom.RealtimeConnectionsActive.Set(float64(h.registry.ConnectionCount()))
	h.prom.RealtimeRegisteredUsers.Set(float64(h.registry.UserCount()))
}

// forward hands a routed event to the instance that holds userID
func (h *Hub) forward(userID string, msg *Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Log.Error("Failed to encode routed event", logger.WithEvent(msg.Event), zap.Error(err))
		h.prom.RecordError("encode", "realtime")
		return false
	}
	if !h.enqueue(cluster.NewDeliver(h.instanceID, userID, data)) {
		h.stats.DeliveriesDropped.Add(1)
		h.prom.RecordDelivery(msg.Event, metrics.OutcomeDropped)
		return false
	}
	h.prom.RecordDelivery(msg.Event, metrics.OutcomeForwarded)
	return true
}

func (h *Hub) publishRoster() {
	if h.broker == nil {
		return
	}
	h.enqueue(cluster.NewRoster(h.instanceID, h.registry.Roster()))
}

func (h *Hub) enqueue(env *cluster.Envelope) bool {
	select {
	case h.outbox <- env:
		return true
	default:
		logger.Log.Warn("Cluster outbox full, dropping envelope", zap.String("kind", env.Kind))
		h.prom.RecordError("outbox_full", "cluster")
		return false
	}
}

// publishLoop is the only publisher, so envelopes leave in enqueue order
func (h *Hub) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-h.outbox:
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			err := h.broker.Publish(pubCtx, env)
			cancel()
			if err != nil {
				logger.Log.Warn("Cluster publish failed", zap.String("kind", env.Kind), zap.Error(err))
				h.prom.RecordError("publish", "cluster")
				continue
			}
			h.stats.ClusterOut.Add(1)
			h.prom.RecordClusterMessage("out", env.Kind)
		}
	}
}

func (h *Hub) leave() {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := h.broker.Publish(ctx, cluster.NewLeave(h.instanceID)); err != nil {
		logger.Log.Warn("Cluster leave failed", zap.Error(err))
	}
}

// handleEnvelope applies an envelope from another instance. Envelopes are
// never republished.
func (h *Hub) handleEnvelope(env *cluster.Envelope) {
	if env.Origin == h.instanceID {
		return
	}
	h.stats.ClusterIn.Add(1)
	h.prom.RecordClusterMessage("in", env.Kind)

	switch env.Kind {
	case cluster.KindDeliver:
		var wire struct {
			Event     string          `json:"event"`
			Payload   json.RawMessage `json:"payload,omitempty"`
			Timestamp FlexibleTime    `json:"timestamp"`
		}
		if err := json.Unmarshal(env.Data, &wire); err != nil {
			logger.Log.Warn("Dropping undecodable routed event", zap.Error(err))
			return
		}
		msg := &Message{Event: wire.Event, Timestamp: wire.Timestamp}
		if len(wire.Payload) > 0 {
			msg.Payload = wire.Payload
		}
		targets := h.registry.Targets(env.Target)
		if len(targets) == 0 {
			h.stats.DeliveriesOffline.Add(1)
			h.prom.RecordDelivery(wire.Event, metrics.OutcomeOffline)
			return
		}
		h.sendTo(targets, msg)

	case cluster.KindRoster:
		newInstance := !h.remote.Knows(env.Origin)
		if h.remote.Update(env.Origin, env.Users) {
			h.BroadcastRoster()
		}
		if newInstance {
			// Let a freshly started instance learn our roster without
			// waiting for the next sync
			h.publishRoster()
		}

	case cluster.KindLeave:
		if h.remote.Remove(env.Origin) {
			h.BroadcastRoster()
		}
	}
}
