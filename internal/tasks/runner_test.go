package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atelierhq/atelier/internal/canvas"
	"github.com/atelierhq/atelier/internal/hub"
	"github.com/atelierhq/atelier/internal/imagegen"
)

func TestExtractPrompt(t *testing.T) {
	tests := []struct {
		text   string
		prompt string
		ok     bool
	}{
		{"/imagine a red bicycle", "a red bicycle", true},
		{"/IMAGINE a red bicycle", "a red bicycle", true},
		{"  /imagine   a red bicycle  ", "a red bicycle", true},
		{"generate sunset over mountains", "sunset over mountains", true},
		{"Draw a cat wearing a hat", "a cat wearing a hat", true},
		{"create an image of a lighthouse", "a lighthouse", true},
		{"Create An Image Of a lighthouse", "a lighthouse", true},
		{"/imagine", "", false},
		{"/imagine   ", "", false},
		{"generated files are here", "", false},
		{"let's draw later", "", false},
		{"hello there", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		prompt, ok := ExtractPrompt(tt.text)
		if ok != tt.ok || prompt != tt.prompt {
			t.Errorf("ExtractPrompt(%q) = (%q, %v), want (%q, %v)", tt.text, prompt, ok, tt.prompt, tt.ok)
		}
	}
}

// fakeGenerator returns a fixed result or error.
type fakeGenerator struct {
	result *imagegen.Result
	err    error
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (*imagegen.Result, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

// watchConn signals on a channel whenever an envelope of the watched type
// arrives, so tests can wait for the async workflow to finish.
type watchConn struct {
	watch map[string]bool
	hit   chan hub.Envelope
}

func newWatchConn(types ...string) *watchConn {
	w := &watchConn{watch: make(map[string]bool), hit: make(chan hub.Envelope, 16)}
	for _, typ := range types {
		w.watch[typ] = true
	}
	return w
}

func (w *watchConn) ID() string { return "watch" }

func (w *watchConn) Send(env hub.Envelope) error {
	if w.watch[env.Type] {
		w.hit <- env
	}
	return nil
}

func (w *watchConn) Close() error { return nil }

func (w *watchConn) waitOne(t *testing.T) hub.Envelope {
	t.Helper()
	select {
	case env := <-w.hit:
		return env
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal generation event")
		return hub.Envelope{}
	}
}

func (w *watchConn) expectNoMore(t *testing.T) {
	t.Helper()
	select {
	case env := <-w.hit:
		t.Fatalf("unexpected extra terminal event %q", env.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func setupRunner(t *testing.T, gen imagegen.Generator) (*Runner, *canvas.Manager, string, *watchConn) {
	t.Helper()
	m := canvas.NewManager(canvas.NewStore(), hub.New(nil, nil), nil)
	canvasID := m.Create().ID
	conn := newWatchConn(hub.EventImageGenerated, hub.EventGenerationFailed)
	m.Join(canvasID, conn)
	return NewRunner(context.Background(), m, gen, nil, nil), m, canvasID, conn
}

func TestRunnerIgnoresPlainChat(t *testing.T) {
	r, _, canvasID, _ := setupRunner(t, &fakeGenerator{})

	msg := &canvas.ChatMessage{Text: "hello everyone", CanvasID: canvasID}
	if r.HandleMessage(msg) {
		t.Error("HandleMessage() = true for plain chat, want false")
	}
}

func TestRunnerNilGenerator(t *testing.T) {
	r, _, canvasID, _ := setupRunner(t, nil)

	msg := &canvas.ChatMessage{Text: "/imagine a boat", CanvasID: canvasID}
	if r.HandleMessage(msg) {
		t.Error("HandleMessage() = true with no generator configured, want false")
	}
}

func TestRunnerSuccess(t *testing.T) {
	gen := &fakeGenerator{result: &imagegen.Result{URL: "https://img.example/1.png", RevisedPrompt: "a detailed boat"}}
	r, m, canvasID, conn := setupRunner(t, gen)

	if !r.HandleMessage(&canvas.ChatMessage{Text: "/imagine a boat", CanvasID: canvasID}) {
		t.Fatal("HandleMessage() = false, want true")
	}
	env := conn.waitOne(t)
	r.Wait()

	if env.Type != hub.EventImageGenerated {
		t.Fatalf("terminal event = %q, want %q", env.Type, hub.EventImageGenerated)
	}
	conn.expectNoMore(t)

	state, err := m.Get(canvasID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(state.Images) != 1 {
		t.Fatalf("len(Images) = %d, want the generated image placed", len(state.Images))
	}
	img := state.Images[0]
	if img.Src != gen.result.URL {
		t.Errorf("image Src = %q, want %q", img.Src, gen.result.URL)
	}
	if img.X != generatedImageOffset || img.Y != generatedImageOffset {
		t.Errorf("image placed at (%v, %v), want viewport offset (%v, %v)", img.X, img.Y, generatedImageOffset, generatedImageOffset)
	}

	msgs, err := m.Messages(canvasID, 0)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	// Announcement plus success report, both from System.
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	for _, msg := range msgs {
		if msg.Sender != "System" {
			t.Errorf("message sender = %q, want System", msg.Sender)
		}
	}
}

func TestRunnerFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("provider unavailable")}
	r, m, canvasID, conn := setupRunner(t, gen)

	if !r.HandleMessage(&canvas.ChatMessage{Text: "draw a storm", CanvasID: canvasID}) {
		t.Fatal("HandleMessage() = false, want true")
	}
	env := conn.waitOne(t)
	r.Wait()

	if env.Type != hub.EventGenerationFailed {
		t.Fatalf("terminal event = %q, want %q", env.Type, hub.EventGenerationFailed)
	}
	conn.expectNoMore(t)

	state, err := m.Get(canvasID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(state.Images) != 0 {
		t.Errorf("len(Images) = %d, want 0 after failed generation", len(state.Images))
	}
}

func TestRunnerUnknownCanvas(t *testing.T) {
	r, _, _, conn := setupRunner(t, &fakeGenerator{result: &imagegen.Result{URL: "u"}})

	r.HandleMessage(&canvas.ChatMessage{Text: "/imagine a boat", CanvasID: "no-such-canvas"})
	r.Wait()
	conn.expectNoMore(t)
}
