package gateway

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/atelierhq/atelier/internal/canvas"
)

const maxUploadBytes = 10 << 20

// handleCanvasCollection serves POST /api/canvas.
func (s *Server) handleCanvasCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	state := s.manager.Create()
	s.logger.Info("canvas created", "canvas_id", state.ID)
	writeJSON(w, http.StatusOK, state)
}

// handleCanvasResource routes /api/canvas/{id}... to the per-canvas
// operations.
func (s *Server) handleCanvasResource(w http.ResponseWriter, r *http.Request) {
	id, section, item, ok := splitCanvasPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch section {
	case "":
		s.handleCanvasState(w, r, id)
	case "images":
		s.handleImages(w, r, id, item)
	case "groups":
		s.handleGroups(w, r, id, item)
	case "messages":
		if item != "" {
			http.NotFound(w, r)
			return
		}
		s.handleMessages(w, r, id)
	case "analyze":
		if item != "" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		s.handleAnalyze(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleCanvasState(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		state, err := s.manager.Get(id)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, state)

	case http.MethodPut:
		var next canvas.State
		if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
			jsonError(w, "invalid canvas payload", http.StatusBadRequest)
			return
		}
		state, err := s.manager.Replace(id, &next)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, state)

	default:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request, id, imageID string) {
	switch {
	case r.Method == http.MethodPost && imageID == "":
		var spec canvas.ImageNode
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			jsonError(w, "invalid image payload", http.StatusBadRequest)
			return
		}
		img, err := s.manager.AddImage(id, spec)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, img)

	case r.Method == http.MethodDelete && imageID != "":
		if err := s.manager.DeleteImage(id, imageID); err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request, id, groupID string) {
	switch {
	case r.Method == http.MethodPost && groupID == "":
		var imageIDs []string
		if err := json.NewDecoder(r.Body).Decode(&imageIDs); err != nil {
			jsonError(w, "invalid group payload", http.StatusBadRequest)
			return
		}
		group, err := s.manager.CreateGroup(id, imageIDs)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, group)

	case r.Method == http.MethodDelete && groupID != "":
		freed, err := s.manager.DeleteGroup(id, groupID)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ungrouped",
			"imageIds": freed,
		})

	default:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type sendMessageRequest struct {
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		limit := s.config.Chat.HistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				jsonError(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}
		msgs, err := s.manager.Messages(id, limit)
		if err != nil {
			storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)

	case http.MethodPost:
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "invalid message payload", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			jsonError(w, "text is required", http.StatusBadRequest)
			return
		}
		msg, err := s.manager.AppendMessage(id, req.Text, req.Sender)
		if err != nil {
			storeError(w, err)
			return
		}
		// The command runner inspects the message asynchronously; the
		// send itself has already succeeded.
		if s.runner != nil {
			s.runner.HandleMessage(msg)
		}
		writeJSON(w, http.StatusOK, msg)

	default:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleUpload accepts a multipart image and returns it as a base64 data URL,
// leaving storage to the client.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		jsonError(w, "invalid form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		jsonError(w, "read file", http.StatusInternalServerError)
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(content)
	}
	if !strings.HasPrefix(contentType, "image/") {
		jsonError(w, "file must be an image", http.StatusBadRequest)
		return
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(content))
	writeJSON(w, http.StatusOK, map[string]string{
		"dataUrl":  dataURL,
		"filename": header.Filename,
	})
}

// handleAnalyze forwards an uploaded image to the style-analysis
// collaborator. Collaborator failures surface as 502, not as broadcasts.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request, id string) {
	if s.analyzer == nil {
		jsonError(w, "style analysis unavailable", http.StatusServiceUnavailable)
		return
	}
	if _, err := s.manager.Get(id); err != nil {
		storeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		jsonError(w, "invalid form", http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		jsonError(w, "read file", http.StatusInternalServerError)
		return
	}

	analysis, err := s.analyzer.AnalyzeStyle(r.Context(), content)
	if err != nil {
		s.logger.Warn("style analysis failed", "canvas_id", id, "error", err)
		jsonError(w, "style analysis failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}
