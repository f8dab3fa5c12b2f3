package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/atelierhq/atelier/internal/canvas"
	"github.com/atelierhq/atelier/internal/hub"
	"github.com/atelierhq/atelier/internal/imagegen"
	"github.com/atelierhq/atelier/internal/observability"
)

// Placement of generated images relative to the canvas viewport translation.
const (
	generatedImageOffset = 96.0
	generatedImageSize   = 512.0
)

// Runner watches chat messages for generation commands and runs each match
// as an independent background workflow. Workflows are bound to the server
// lifetime context, never to the connection or request that triggered them:
// closing the triggering connection does not cancel an in-flight generation.
type Runner struct {
	manager   *canvas.Manager
	generator imagegen.Generator
	logger    *slog.Logger
	metrics   *observability.Metrics

	ctx context.Context
	wg  sync.WaitGroup
}

// NewRunner creates a runner. ctx should be the server lifetime context.
func NewRunner(ctx context.Context, manager *canvas.Manager, generator imagegen.Generator, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		manager:   manager,
		generator: generator,
		logger:    logger.With("component", "tasks"),
		metrics:   metrics,
		ctx:       ctx,
	}
}

// HandleMessage inspects an already-appended chat message and, when it
// carries a generation command, spawns the workflow. It returns immediately;
// the chat send that triggered it is never delayed.
func (r *Runner) HandleMessage(msg *canvas.ChatMessage) bool {
	if msg == nil || r.generator == nil {
		return false
	}
	prompt, ok := ExtractPrompt(msg.Text)
	if !ok {
		return false
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(msg.CanvasID, prompt)
	}()
	return true
}

// Wait blocks until all in-flight workflows finish. Used during shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// run executes one generation workflow: announce, call the collaborator,
// then emit exactly one terminal event (image_generated or
// generation_failed). Collaborator failures never propagate past here.
func (r *Runner) run(canvasID, prompt string) {
	logger := r.logger.With("canvas_id", canvasID)
	logger.Info("generation started", "prompt", prompt)
	r.metrics.RecordGenerationStarted()

	if _, err := r.manager.AppendMessage(canvasID, fmt.Sprintf("Generating image for: %s", prompt), "System"); err != nil {
		logger.Warn("announce generation", "error", err)
		return
	}
	r.manager.PublishEvent(canvasID, hub.EventGenerationStarted, map[string]string{"prompt": prompt})

	result, err := r.generator.Generate(r.ctx, prompt)
	if err != nil {
		logger.Warn("generation failed", "error", err)
		r.metrics.RecordGenerationFailed()
		if _, err := r.manager.AppendMessage(canvasID, fmt.Sprintf("Image generation failed: %v", err), "System"); err != nil {
			logger.Warn("report generation failure", "error", err)
		}
		r.manager.PublishEvent(canvasID, hub.EventGenerationFailed, map[string]string{
			"prompt": prompt,
			"error":  err.Error(),
		})
		return
	}

	img, err := r.placeImage(canvasID, result.URL)
	if err != nil {
		logger.Warn("place generated image", "error", err)
		r.metrics.RecordGenerationFailed()
		if _, err := r.manager.AppendMessage(canvasID, fmt.Sprintf("Image generation failed: %v", err), "System"); err != nil {
			logger.Warn("report generation failure", "error", err)
		}
		r.manager.PublishEvent(canvasID, hub.EventGenerationFailed, map[string]string{
			"prompt": prompt,
			"error":  err.Error(),
		})
		return
	}

	text := fmt.Sprintf("Generated image for: %s", prompt)
	if result.RevisedPrompt != "" {
		text = fmt.Sprintf("Generated image for: %s (revised: %s)", prompt, result.RevisedPrompt)
	}
	if _, err := r.manager.AppendMessage(canvasID, text, "System"); err != nil {
		logger.Warn("report generation success", "error", err)
	}
	r.manager.PublishEvent(canvasID, hub.EventImageGenerated, map[string]any{
		"image":         img,
		"prompt":        prompt,
		"revisedPrompt": result.RevisedPrompt,
	})
	r.metrics.RecordGenerationSucceeded()
	logger.Info("generation succeeded", "image_id", img.ID)
}

// placeImage adds the generated image at a fixed offset from the viewport
// translation. AddImage broadcasts image_added itself.
func (r *Runner) placeImage(canvasID, url string) (*canvas.ImageNode, error) {
	state, err := r.manager.Get(canvasID)
	if err != nil {
		return nil, err
	}
	return r.manager.AddImage(canvasID, canvas.ImageNode{
		Src: url,
		X:   state.Viewport.TX + generatedImageOffset,
		Y:   state.Viewport.TY + generatedImageOffset,
		W:   generatedImageSize,
		H:   generatedImageSize,
	})
}
