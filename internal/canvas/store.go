package canvas

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store holds the authoritative in-memory state for every canvas in the
// process. Each operation is atomic with respect to other operations on the
// same canvas id; operations on different canvases never contend. State lives
// for the process lifetime; there is no deletion path.
type Store struct {
	mu       sync.RWMutex
	canvases map[string]*entry
}

type entry struct {
	mu       sync.Mutex
	state    *State
	messages []*ChatMessage
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{canvases: make(map[string]*entry)}
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.canvases[id]
	return e, ok
}

// Count returns the number of canvases created since process start.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.canvases)
}

// Create allocates a new canvas with a fresh id, empty images and groups,
// and the default viewport.
func (s *Store) Create() *State {
	state := &State{
		ID:           uuid.NewString(),
		Images:       []ImageNode{},
		Groups:       []ImageGroup{},
		Viewport:     DefaultViewport(),
		LastModified: time.Now(),
	}

	s.mu.Lock()
	s.canvases[state.ID] = &entry{state: state}
	s.mu.Unlock()
	return cloneState(state)
}

// Get returns a copy of the canvas state.
func (s *Store) Get(id string) (*State, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneState(e.state), nil
}

// Replace overwrites the whole canvas state. The id and lastModified fields
// are server-controlled; the replacement payload must satisfy the group and
// image invariants or the operation is rejected with ErrInvalidRequest.
func (s *Store) Replace(id string, next *State) (*State, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}

	replacement := cloneState(next)
	replacement.ID = id
	if err := replacement.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}
	replacement.LastModified = time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = replacement
	return cloneState(replacement), nil
}

// AddImage appends a new image to the canvas. The id is server-assigned and
// any group membership on the spec is discarded.
func (s *Store) AddImage(id string, spec ImageNode) (*ImageNode, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}

	spec.ID = uuid.NewString()
	spec.GroupID = ""

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Images = append(e.state.Images, spec)
	e.state.LastModified = time.Now()
	return &spec, nil
}

// DeleteImage removes the image and strips it from any group it belongs to,
// cascading deletion of groups that drop below two members.
func (s *Store) DeleteImage(id, imageID string) error {
	e, ok := s.lookup(id)
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Image(imageID) == nil {
		return ErrNotFound
	}

	images := e.state.Images[:0]
	for _, img := range e.state.Images {
		if img.ID != imageID {
			images = append(images, img)
		}
	}
	e.state.Images = images
	stripFromGroups(e.state, map[string]bool{imageID: true})
	e.state.LastModified = time.Now()
	return nil
}

// CreateGroup groups the listed images together, removing each of them from
// whatever group it currently belongs to first. Fails with ErrInvalidRequest
// if fewer than two ids are given or any id is unknown.
func (s *Store) CreateGroup(id string, imageIDs []string) (*ImageGroup, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	if len(imageIDs) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 images to create a group", ErrInvalidRequest)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	members := make(map[string]bool, len(imageIDs))
	for _, imageID := range imageIDs {
		if e.state.Image(imageID) == nil {
			return nil, fmt.Errorf("%w: image %s not found", ErrInvalidRequest, imageID)
		}
		if members[imageID] {
			return nil, fmt.Errorf("%w: duplicate image id %s", ErrInvalidRequest, imageID)
		}
		members[imageID] = true
	}

	stripFromGroups(e.state, members)

	group := ImageGroup{
		ID:       uuid.NewString(),
		ImageIDs: append([]string(nil), imageIDs...),
		Name:     fmt.Sprintf("Group %d", len(e.state.Groups)+1),
	}
	e.state.Groups = append(e.state.Groups, group)
	for _, imageID := range imageIDs {
		e.state.Image(imageID).GroupID = group.ID
	}
	e.state.LastModified = time.Now()

	clone := group
	clone.ImageIDs = append([]string(nil), group.ImageIDs...)
	return &clone, nil
}

// DeleteGroup removes the group and clears groupId on every former member.
// It returns the freed image ids.
func (s *Store) DeleteGroup(id, groupID string) ([]string, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	group := e.state.Group(groupID)
	if group == nil {
		return nil, ErrNotFound
	}

	freed := append([]string(nil), group.ImageIDs...)
	groups := e.state.Groups[:0]
	for _, g := range e.state.Groups {
		if g.ID != groupID {
			groups = append(groups, g)
		}
	}
	e.state.Groups = groups
	for _, imageID := range freed {
		if img := e.state.Image(imageID); img != nil {
			img.GroupID = ""
		}
	}
	e.state.LastModified = time.Now()
	return freed, nil
}

// AppendMessage appends a chat message to the canvas's message log.
func (s *Store) AppendMessage(id, text, sender string) (*ChatMessage, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	if strings.TrimSpace(sender) == "" {
		sender = "User"
	}

	msg := &ChatMessage{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    sender,
		Timestamp: time.Now(),
		CanvasID:  id,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, msg)
	return cloneMessage(msg), nil
}

// Messages returns the most recent limit messages in chronological order.
// A non-positive limit returns the full log.
func (s *Store) Messages(id string, limit int) ([]*ChatMessage, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	msgs := e.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*ChatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = cloneMessage(m)
	}
	return out, nil
}

// stripFromGroups removes the given image ids from every group's member list,
// deletes any group left with fewer than two members, and clears groupId on
// that group's surviving images. Must be called with the entry lock held.
func stripFromGroups(state *State, removed map[string]bool) {
	kept := state.Groups[:0]
	for _, group := range state.Groups {
		memberIDs := group.ImageIDs[:0]
		for _, imageID := range group.ImageIDs {
			if !removed[imageID] {
				memberIDs = append(memberIDs, imageID)
			}
		}
		group.ImageIDs = memberIDs

		if len(group.ImageIDs) >= 2 {
			kept = append(kept, group)
			continue
		}
		for _, imageID := range group.ImageIDs {
			if img := state.Image(imageID); img != nil {
				img.GroupID = ""
			}
		}
	}
	state.Groups = kept
}
