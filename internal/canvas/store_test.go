package canvas

import (
	"errors"
	"testing"
)

func addImages(t *testing.T, s *Store, canvasID string, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		img, err := s.AddImage(canvasID, ImageNode{Src: "data:image/png;base64,x", W: 100, H: 100})
		if err != nil {
			t.Fatalf("AddImage() error = %v", err)
		}
		ids = append(ids, img.ID)
	}
	return ids
}

func TestStoreCreate(t *testing.T) {
	s := NewStore()

	state := s.Create()
	if state.ID == "" {
		t.Fatal("Create() returned empty id")
	}
	if state.Images == nil || len(state.Images) != 0 {
		t.Errorf("Create() Images = %v, want empty slice", state.Images)
	}
	if state.Viewport.Scale != 1.0 {
		t.Errorf("Create() Viewport.Scale = %v, want 1.0", state.Viewport.Scale)
	}
	if s.Count() != 1 {
		t.Errorf("Count() = %d, want 1", s.Count())
	}

	got, err := s.Get(state.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != state.ID {
		t.Errorf("Get() ID = %q, want %q", got.ID, state.ID)
	}
}

func TestStoreGetUnknown(t *testing.T) {
	s := NewStore()
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestStoreGetReturnsCopy(t *testing.T) {
	s := NewStore()
	canvasID := s.Create().ID
	addImages(t, s, canvasID, 1)

	first, err := s.Get(canvasID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	first.Images[0].X = 999

	second, err := s.Get(canvasID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if second.Images[0].X == 999 {
		t.Error("mutating a returned snapshot leaked into the store")
	}
}

func TestStoreReplace(t *testing.T) {
	s := NewStore()
	canvasID := s.Create().ID

	next := &State{
		ID: "client-supplied-id",
		Images: []ImageNode{
			{ID: "a", Src: "s", W: 10, H: 10},
		},
		Groups:   []ImageGroup{},
		Viewport: Viewport{Scale: 2, TX: 5, TY: 5},
	}
	got, err := s.Replace(canvasID, next)
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if got.ID != canvasID {
		t.Errorf("Replace() ID = %q, want server id %q", got.ID, canvasID)
	}
	if got.Viewport.Scale != 2 {
		t.Errorf("Replace() Viewport.Scale = %v, want 2", got.Viewport.Scale)
	}
	if got.LastModified.IsZero() {
		t.Error("Replace() did not set lastModified")
	}
}

func TestStoreReplaceRejectsInvalidState(t *testing.T) {
	s := NewStore()
	canvasID := s.Create().ID

	tests := []struct {
		name string
		next *State
	}{
		{
			name: "group with one member",
			next: &State{
				Images: []ImageNode{{ID: "a", GroupID: "g1"}},
				Groups: []ImageGroup{{ID: "g1", ImageIDs: []string{"a"}}},
			},
		},
		{
			name: "group references unknown image",
			next: &State{
				Images: []ImageNode{{ID: "a", GroupID: "g1"}},
				Groups: []ImageGroup{{ID: "g1", ImageIDs: []string{"a", "ghost"}}},
			},
		},
		{
			name: "image in two groups",
			next: &State{
				Images: []ImageNode{{ID: "a", GroupID: "g1"}, {ID: "b", GroupID: "g1"}, {ID: "c", GroupID: "g2"}},
				Groups: []ImageGroup{
					{ID: "g1", ImageIDs: []string{"a", "b"}},
					{ID: "g2", ImageIDs: []string{"a", "c"}},
				},
			},
		},
		{
			name: "dangling groupId back-reference",
			next: &State{
				Images: []ImageNode{{ID: "a", GroupID: "ghost"}},
			},
		},
		{
			name: "duplicate image id",
			next: &State{
				Images: []ImageNode{{ID: "a"}, {ID: "a"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Replace(canvasID, tt.next); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Replace() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestStoreAddImage(t *testing.T) {
	s := NewStore()
	canvasID := s.Create().ID

	img, err := s.AddImage(canvasID, ImageNode{ID: "client-id", Src: "s", GroupID: "stale", X: 1, Y: 2})
	if err != nil {
		t.Fatalf("AddImage() error = %v", err)
	}
	if img.ID == "" || img.ID == "client-id" {
		t.Errorf("AddImage() ID = %q, want fresh server id", img.ID)
	}
	if img.GroupID != "" {
		t.Errorf("AddImage() GroupID = %q, want cleared", img.GroupID)
	}

	state, err := s.Get(canvasID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(state.Images) != 1 {
		t.Fatalf("len(Images) = %d, want 1", len(state.Images))
	}
}

func TestStoreDeleteImage(t *testing.T) {
	s := NewStore()
	canvasID := s.Create().ID
	ids := addImages(t, s, canvasID, 2)

	if err := s.DeleteImage(canvasID, ids[0]); err != nil {
		t.Fatalf("DeleteImage() error = %v", err)
	}
	state, err := s.Get(canvasID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(state.Images) != 1 || state.Images[0].ID != ids[1] {
		t.Errorf("after delete, Images = %v, want only %q", state.Images, ids[1])
	}

	if err := s.DeleteImage(canvasID, ids[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteImage(deleted id) error = %v, want ErrNotFound", err)
	}
}

func TestStoreDeleteImageCascadesGroup(t *testing.T) {
	s := NewStore()
	canvasID := s.Create().ID
	ids := addImages(t, s, canvasID, 3)

	group, err := s.CreateGroup(canvasID, []string{ids[0], ids[1]})
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}

	// Removing one of two members dissolves the group and frees the other.
	if err := s.DeleteImage(canvasID, ids[0]); err != nil {
		t.Fatalf("DeleteImage() error = %v", err)
	}
	state, err := s.Get(canvasID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if state.Group(group.ID) != nil {
		t.Errorf("group %q survived with fewer than 2 members", group.ID)
	}
	if got := state.Image(ids[1]).GroupID; got != "" {
		t.Errorf("surviving member GroupID = %q, want cleared", got)
	}
}

func TestStoreDeleteImageKeepsLargerGroup(t *testing.T) {
	s := NewStore()
	canvasID := s.Create().ID
	ids := addImages(t, s, canvasID, 3)

	group, err := s.CreateGroup(canvasID, ids)
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	if err := s.DeleteImage(canvasID, ids[0]); err != nil {
		t.Fatalf("DeleteImage() error = %v", err)
	}

	state, err := s.Get(canvasID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	kept := state.Group(group.ID)
	if kept == nil {
		t.Fatal("group with 2 remaining members was deleted")
	}
	if len(kept.ImageIDs) != 2 || kept.Contains(ids[0]) {
		t.Errorf("group members = %v, want %v", kept.ImageIDs, ids[1:])
	}
}

func TestStoreCreateGroup(t *testing.T) {
	s := NewStore()
	canvasID := s.Create().ID
	ids := addImages(t, s, canvasID, 2)

	group, err := s.CreateGroup(canvasID, ids)
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	if group.Name != "Group 1" {
		t.Errorf("Name = %q, want %q", group.Name, "Group 1")
	}

	state, err := s.Get(canvasID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	for _, id := range ids {
		if got := state.Image(id).GroupID; got != group.ID {
			t.Errorf("image %q GroupID = %q, want %q", id, got, group.ID)
		}
	}
}

func TestStoreCreateGroupValidation(t *testing.T) {
	s := NewStore()
	canvasID := s.Create().ID
	ids := addImages(t, s, canvasID, 2)

	tests := []struct {
		name     string
		imageIDs []string
	}{
		{"single id", []string{ids[0]}},
		{"empty list", nil},
		{"unknown id", []string{ids[0], "ghost"}},
		{"duplicate id", []string{ids[0], ids[0]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.CreateGroup(canvasID, tt.imageIDs); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("CreateGroup(%v) error = %v, want ErrInvalidRequest", tt.imageIDs, err)
			}
		})
	}
}

func TestStoreCreateGroupStealsMembers(t *testing.T) {
	s := NewStore()
	canvasID := s.Create().ID
	ids := addImages(t, s, canvasID, 4)
	a, b, c, d := ids[0], ids[1], ids[2], ids[3]

	g1, err := s.CreateGroup(canvasID, []string{a, b})
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}

	// Grouping A with D pulls A out of G1, which dissolves G1 and frees B.
	g2, err := s.CreateGroup(canvasID, []string{a, d})
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}

	state, err := s.Get(canvasID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if state.Group(g1.ID) != nil {
		t.Errorf("old group %q survived after losing a member", g1.ID)
	}
	if got := state.Image(b).GroupID; got != "" {
		t.Errorf("freed image %q GroupID = %q, want cleared", b, got)
	}
	if got := state.Image(a).GroupID; got != g2.ID {
		t.Errorf("image %q GroupID = %q, want %q", a, got, g2.ID)
	}
	if got := state.Image(c).GroupID; got != "" {
		t.Errorf("uninvolved image %q GroupID = %q, want empty", c, got)
	}
	if len(state.Groups) != 1 {
		t.Errorf("len(Groups) = %d, want 1", len(state.Groups))
	}
}

func TestStoreCreateGroupStealsFromLargerGroup(t *testing.T) {
	s := NewStore()
	canvasID := s.Create().ID
	ids := addImages(t, s, canvasID, 4)
	a, b, c, d := ids[0], ids[1], ids[2], ids[3]

	g1, err := s.CreateGroup(canvasID, []string{a, b, c})
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	if _, err := s.CreateGroup(canvasID, []string{a, d}); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}

	state, err := s.Get(canvasID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	kept := state.Group(g1.ID)
	if kept == nil {
		t.Fatal("group with 2 remaining members was deleted")
	}
	if kept.Contains(a) {
		t.Errorf("stolen image %q still listed in old group", a)
	}
	if err := state.Validate(); err != nil {
		t.Errorf("state invalid after regroup: %v", err)
	}
}

func TestStoreDeleteGroup(t *testing.T) {
	s := NewStore()
	canvasID := s.Create().ID
	ids := addImages(t, s, canvasID, 2)

	group, err := s.CreateGroup(canvasID, ids)
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	freed, err := s.DeleteGroup(canvasID, group.ID)
	if err != nil {
		t.Fatalf("DeleteGroup() error = %v", err)
	}
	if len(freed) != 2 {
		t.Errorf("freed = %v, want both members", freed)
	}

	state, err := s.Get(canvasID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(state.Groups) != 0 {
		t.Errorf("len(Groups) = %d, want 0", len(state.Groups))
	}
	for _, id := range ids {
		if got := state.Image(id).GroupID; got != "" {
			t.Errorf("image %q GroupID = %q, want cleared", id, got)
		}
	}

	if _, err := s.DeleteGroup(canvasID, group.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteGroup(deleted id) error = %v, want ErrNotFound", err)
	}
}

func TestStoreGroupNameCountsAfterCascade(t *testing.T) {
	s := NewStore()
	canvasID := s.Create().ID
	ids := addImages(t, s, canvasID, 3)
	a, b, c := ids[0], ids[1], ids[2]

	if _, err := s.CreateGroup(canvasID, []string{a, b}); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	// G1 dissolves when A is stolen, so the new group is numbered over the
	// post-cascade group count, not the pre-cascade one.
	g2, err := s.CreateGroup(canvasID, []string{a, c})
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	if g2.Name != "Group 1" {
		t.Errorf("Name = %q, want %q", g2.Name, "Group 1")
	}
}

func TestStoreMessages(t *testing.T) {
	s := NewStore()
	canvasID := s.Create().ID

	for _, text := range []string{"one", "two", "three"} {
		if _, err := s.AppendMessage(canvasID, text, "alice"); err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
	}

	msgs, err := s.Messages(canvasID, 2)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if msgs[0].Text != "two" || msgs[1].Text != "three" {
		t.Errorf("msgs = [%q, %q], want the most recent two in order", msgs[0].Text, msgs[1].Text)
	}

	all, err := s.Messages(canvasID, 0)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}
}

func TestStoreAppendMessageDefaults(t *testing.T) {
	s := NewStore()
	canvasID := s.Create().ID

	msg, err := s.AppendMessage(canvasID, "hello", "  ")
	if err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if msg.Sender != "User" {
		t.Errorf("Sender = %q, want %q", msg.Sender, "User")
	}
	if msg.CanvasID != canvasID {
		t.Errorf("CanvasID = %q, want %q", msg.CanvasID, canvasID)
	}
	if msg.ID == "" || msg.Timestamp.IsZero() {
		t.Error("AppendMessage() did not assign id and timestamp")
	}
}
