package canvas

import (
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("canvas: not found")
	ErrInvalidRequest = errors.New("canvas: invalid request")
)

// Viewport describes the client view transform for a canvas.
type Viewport struct {
	Scale float64 `json:"scale"`
	TX    float64 `json:"tx"`
	TY    float64 `json:"ty"`
}

// DefaultViewport returns the identity viewport.
func DefaultViewport() Viewport {
	return Viewport{Scale: 1.0}
}

// ImageNode is a positioned image on a canvas. The ID is server-assigned and
// immutable. GroupID, when non-empty, names the one group listing this image.
type ImageNode struct {
	ID       string  `json:"id"`
	Src      string  `json:"src"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	W        float64 `json:"w"`
	H        float64 `json:"h"`
	Selected bool    `json:"selected"`
	GroupID  string  `json:"groupId,omitempty"`
}

// ImageGroup is a named grouping of at least two images. A group that drops
// below two members is deleted, never retained empty.
type ImageGroup struct {
	ID       string   `json:"id"`
	ImageIDs []string `json:"imageIds"`
	Name     string   `json:"name,omitempty"`
}

// Contains reports whether the group lists the given image id.
func (g *ImageGroup) Contains(imageID string) bool {
	for _, id := range g.ImageIDs {
		if id == imageID {
			return true
		}
	}
	return false
}

// State is the authoritative state of one canvas. It is owned by the Store
// and mutated only through Store operations; callers receive deep copies.
type State struct {
	ID           string       `json:"id"`
	Images       []ImageNode  `json:"images"`
	Groups       []ImageGroup `json:"groups"`
	Viewport     Viewport     `json:"viewport"`
	LastModified time.Time    `json:"lastModified"`
}

// ChatMessage is one entry in a canvas's append-only chat log.
type ChatMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	CanvasID  string    `json:"canvasId"`
}

// Image returns a pointer into the state's image slice, or nil.
func (s *State) Image(imageID string) *ImageNode {
	for i := range s.Images {
		if s.Images[i].ID == imageID {
			return &s.Images[i]
		}
	}
	return nil
}

// Group returns a pointer into the state's group slice, or nil.
func (s *State) Group(groupID string) *ImageGroup {
	for i := range s.Groups {
		if s.Groups[i].ID == groupID {
			return &s.Groups[i]
		}
	}
	return nil
}

// Validate checks the structural invariants: every group has at least two
// members, every member references an existing image, no image belongs to
// more than one group, and every groupId back-reference is consistent.
func (s *State) Validate() error {
	images := make(map[string]*ImageNode, len(s.Images))
	for i := range s.Images {
		img := &s.Images[i]
		if img.ID == "" {
			return errors.New("image with empty id")
		}
		if _, dup := images[img.ID]; dup {
			return errors.New("duplicate image id " + img.ID)
		}
		images[img.ID] = img
	}

	memberOf := make(map[string]string)
	for i := range s.Groups {
		group := &s.Groups[i]
		if group.ID == "" {
			return errors.New("group with empty id")
		}
		if len(group.ImageIDs) < 2 {
			return errors.New("group " + group.ID + " has fewer than 2 members")
		}
		for _, imageID := range group.ImageIDs {
			img, ok := images[imageID]
			if !ok {
				return errors.New("group " + group.ID + " references unknown image " + imageID)
			}
			if prev, taken := memberOf[imageID]; taken {
				return errors.New("image " + imageID + " belongs to groups " + prev + " and " + group.ID)
			}
			memberOf[imageID] = group.ID
			if img.GroupID != group.ID {
				return errors.New("image " + imageID + " groupId does not match group " + group.ID)
			}
		}
	}

	for id, img := range images {
		if img.GroupID == "" {
			continue
		}
		if memberOf[id] != img.GroupID {
			return errors.New("image " + id + " has dangling groupId " + img.GroupID)
		}
	}
	return nil
}

func cloneState(s *State) *State {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Images = append([]ImageNode(nil), s.Images...)
	clone.Groups = make([]ImageGroup, len(s.Groups))
	for i, g := range s.Groups {
		clone.Groups[i] = g
		clone.Groups[i].ImageIDs = append([]string(nil), g.ImageIDs...)
	}
	return &clone
}

func cloneMessage(m *ChatMessage) *ChatMessage {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}
