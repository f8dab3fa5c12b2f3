package canvas

import (
	"log/slog"
	"sync"

	"github.com/atelierhq/atelier/internal/hub"
)

// Manager coordinates state mutations and realtime broadcasts. Every mutation
// runs under a per-canvas mutex held across both the store operation and the
// resulting publish, so a broadcast always reflects exactly the post-mutation
// state and two mutations on one canvas can never interleave. Publishing only
// enqueues frames to per-connection buffers; no network I/O happens under the
// lock. Different canvas ids never block each other.
type Manager struct {
	store  *Store
	hub    *hub.Hub
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a canvas manager.
func NewManager(store *Store, h *hub.Hub, logger *slog.Logger) *Manager {
	if store == nil {
		store = NewStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		hub:    h,
		logger: logger.With("component", "canvas"),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Store returns the underlying state store.
func (m *Manager) Store() *Store {
	return m.store
}

// Hub returns the broadcast hub.
func (m *Manager) Hub() *hub.Hub {
	return m.hub
}

func (m *Manager) canvasLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	return lock
}

// publish marshals data and fans it out. Mutations have already happened at
// this point, so a marshal failure only costs the broadcast, never the state.
func (m *Manager) publish(canvasID, eventType string, data any, excluding hub.Conn) {
	env, err := hub.NewEnvelope(eventType, canvasID, data)
	if err != nil {
		m.logger.Error("encode event", "canvas_id", canvasID, "event", eventType, "error", err)
		return
	}
	m.hub.Publish(canvasID, env, excluding)
}

// Create allocates a new canvas. Nothing is broadcast: there are no
// connections for a canvas that did not exist yet.
func (m *Manager) Create() *State {
	return m.store.Create()
}

// Get returns a copy of the canvas state.
func (m *Manager) Get(id string) (*State, error) {
	return m.store.Get(id)
}

// Replace overwrites the whole canvas state and broadcasts a canvas_update.
func (m *Manager) Replace(id string, next *State) (*State, error) {
	lock := m.canvasLock(id)
	lock.Lock()
	defer lock.Unlock()

	state, err := m.store.Replace(id, next)
	if err != nil {
		return nil, err
	}
	m.publish(id, hub.EventCanvasUpdate, state, nil)
	return state, nil
}

// AddImage appends an image and broadcasts image_added.
func (m *Manager) AddImage(id string, spec ImageNode) (*ImageNode, error) {
	lock := m.canvasLock(id)
	lock.Lock()
	defer lock.Unlock()

	img, err := m.store.AddImage(id, spec)
	if err != nil {
		return nil, err
	}
	m.publish(id, hub.EventImageAdded, img, nil)
	return img, nil
}

// DeleteImage removes an image (cascading group cleanup) and broadcasts
// image_deleted.
func (m *Manager) DeleteImage(id, imageID string) error {
	lock := m.canvasLock(id)
	lock.Lock()
	defer lock.Unlock()

	if err := m.store.DeleteImage(id, imageID); err != nil {
		return err
	}
	m.publish(id, hub.EventImageDeleted, map[string]string{"imageId": imageID}, nil)
	return nil
}

// CreateGroup groups images together and broadcasts images_grouped.
func (m *Manager) CreateGroup(id string, imageIDs []string) (*ImageGroup, error) {
	lock := m.canvasLock(id)
	lock.Lock()
	defer lock.Unlock()

	group, err := m.store.CreateGroup(id, imageIDs)
	if err != nil {
		return nil, err
	}
	m.publish(id, hub.EventImagesGrouped, group, nil)
	return group, nil
}

// DeleteGroup ungroups and broadcasts images_ungrouped. It returns the freed
// image ids.
func (m *Manager) DeleteGroup(id, groupID string) ([]string, error) {
	lock := m.canvasLock(id)
	lock.Lock()
	defer lock.Unlock()

	freed, err := m.store.DeleteGroup(id, groupID)
	if err != nil {
		return nil, err
	}
	m.publish(id, hub.EventImagesUngrouped, map[string]any{
		"groupId":  groupID,
		"imageIds": freed,
	}, nil)
	return freed, nil
}

// AppendMessage appends a chat message and broadcasts chat_message.
func (m *Manager) AppendMessage(id, text, sender string) (*ChatMessage, error) {
	lock := m.canvasLock(id)
	lock.Lock()
	defer lock.Unlock()

	msg, err := m.store.AppendMessage(id, text, sender)
	if err != nil {
		return nil, err
	}
	m.publish(id, hub.EventChatMessage, msg, nil)
	return msg, nil
}

// Messages returns the most recent limit chat messages.
func (m *Manager) Messages(id string, limit int) ([]*ChatMessage, error) {
	return m.store.Messages(id, limit)
}

// PublishEvent broadcasts an arbitrary event that is not tied to a state
// mutation (generation progress, presence notices).
func (m *Manager) PublishEvent(canvasID, eventType string, data any) {
	m.publish(canvasID, eventType, data, nil)
}

// Join registers a connection and returns a state snapshot taken under the
// canvas mutation lock, so the snapshot reflects every mutation broadcast
// before it and none after. The snapshot is nil when the canvas does not
// exist yet; the connection is registered regardless.
func (m *Manager) Join(canvasID string, conn hub.Conn) *State {
	lock := m.canvasLock(canvasID)
	lock.Lock()
	defer lock.Unlock()

	m.hub.Join(canvasID, conn)
	state, err := m.store.Get(canvasID)
	if err != nil {
		return nil
	}
	return state
}

// Leave deregisters a connection.
func (m *Manager) Leave(canvasID string, conn hub.Conn) {
	m.hub.Leave(canvasID, conn)
}

// Relay forwards a client-originated envelope to every other member of the
// canvas. The payload is not interpreted or validated beyond the envelope
// framing that already happened at the transport.
func (m *Manager) Relay(canvasID string, env hub.Envelope, from hub.Conn) {
	env.CanvasID = canvasID
	m.hub.Publish(canvasID, env, from)
}
