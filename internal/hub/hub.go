package hub

import (
	"log/slog"

	"github.com/atelierhq/atelier/internal/observability"
)

// Hub fans events out to the connections registered for a canvas. Delivery is
// best-effort: a connection whose send fails is evicted from the registry
// after the publish pass completes. For a single connection, successive
// publishes on the same canvas are observed in the order they were issued.
type Hub struct {
	registry *Registry
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a hub over its own registry.
func New(logger *slog.Logger, metrics *observability.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		registry: NewRegistry(),
		logger:   logger.With("component", "hub"),
		metrics:  metrics,
	}
}

// Registry returns the hub's connection registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Join registers a connection for the canvas.
func (h *Hub) Join(canvasID string, conn Conn) {
	h.registry.Join(canvasID, conn)
	h.metrics.ConnOpened()
	h.logger.Debug("connection joined", "canvas_id", canvasID, "conn_id", conn.ID())
}

// Leave deregisters a connection.
func (h *Hub) Leave(canvasID string, conn Conn) {
	if h.registry.Leave(canvasID, conn) {
		h.metrics.ConnClosed()
		h.logger.Debug("connection left", "canvas_id", canvasID, "conn_id", conn.ID())
	}
}

// Publish delivers the envelope to every connection registered for the
// canvas except excluding (which may be nil). Failed sends evict the
// affected connection; the pass continues for the rest.
func (h *Hub) Publish(canvasID string, env Envelope, excluding Conn) {
	members := h.registry.Members(canvasID)
	if len(members) == 0 {
		return
	}

	var dead []Conn
	for _, conn := range members {
		if conn == excluding {
			continue
		}
		if err := conn.Send(env); err != nil {
			h.logger.Warn("send failed, evicting connection",
				"canvas_id", canvasID, "conn_id", conn.ID(), "event", env.Type, "error", err)
			h.metrics.RecordDeliveryFailure()
			dead = append(dead, conn)
		}
	}
	h.metrics.RecordEvent()

	// Eviction happens after the pass so the membership snapshot being
	// iterated is never mutated mid-publish.
	for _, conn := range dead {
		h.Leave(canvasID, conn)
		_ = conn.Close()
	}
}
