package session

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"

	"github.com/inamate/canvas/internal/command"
	"github.com/inamate/canvas/internal/document"
)

const maxBodySize = 16 << 20

type Handler struct {
	hub            *Hub
	originPatterns []string
}

// NewHandler serves the session endpoints. originPatterns are the
// host patterns accepted for cross-origin WebSocket connections.
func NewHandler(hub *Hub, originPatterns []string) *Handler {
	return &Handler{hub: hub, originPatterns: originPatterns}
}

// Register mounts the session routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/sessions", h.Create).Methods("POST")
	r.HandleFunc("/sessions/{id}", h.Get).Methods("GET")
	r.HandleFunc("/sessions/{id}/render", h.Render).Methods("GET")
	r.HandleFunc("/sessions/{id}/save", h.Save).Methods("POST")
	r.HandleFunc("/sessions/{id}/commands", h.Execute).Methods("POST")
	r.HandleFunc("/ws/sessions/{id}", h.WebSocket)
}

type createRequest struct {
	Document json.RawMessage `json:"document"`
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

type executeResponse struct {
	Result any `json:"result,omitempty"`
}

// Create handles POST /sessions. The body may carry an initial document;
// ?sample=1 starts from the sample scene instead.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var scene document.Scene
	if r.URL.Query().Get("sample") == "1" {
		scene = document.NewSampleScene()
	} else {
		var req createRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: command.CodeBadRequest, Error: "invalid request body"})
			return
		}
		if len(req.Document) > 0 {
			s, err := document.Unmarshal(req.Document)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{Code: command.CodeBadRequest, Error: err.Error()})
				return
			}
			scene = s
		}
	}

	info, err := h.hub.Create(r.Context(), scene)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// Get handles GET /sessions/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	info, err := h.hub.Info(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Render handles GET /sessions/{id}/render.
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	p, err := h.hub.Render(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Save handles POST /sessions/{id}/save.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	snap, err := h.hub.Save(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Execute handles POST /sessions/{id}/commands with a command body.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	var cmd command.Command
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: command.CodeBadRequest, Error: "invalid request body"})
		return
	}
	out, err := h.hub.Execute(r.Context(), mux.Vars(r)["id"], cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{Result: out.Result})
}

// WebSocket handles GET /ws/sessions/{id}.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.hub.Info(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Error("websocket accept", "error", err)
		return
	}

	client := NewClient(h.hub, conn, id)
	ctx := r.Context()
	if err := h.hub.Register(ctx, client); err != nil {
		conn.Close(websocket.StatusInternalError, "session unavailable")
		return
	}

	go client.WritePump(ctx)
	client.ReadPump(ctx)
}

func writeError(w http.ResponseWriter, err error) {
	code := Code(err)
	status := statusOf(code)
	if status == http.StatusInternalServerError {
		slog.Error("session request failed", "error", err)
		writeJSON(w, status, errorResponse{Code: code, Error: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Code: code, Error: err.Error()})
}

func statusOf(code string) int {
	switch code {
	case command.CodeNotFound:
		return http.StatusNotFound
	case command.CodeBadRequest:
		return http.StatusBadRequest
	case command.CodeLocked, command.CodeGesture:
		return http.StatusConflict
	case command.CodeInvalidGeometry, command.CodeKindMismatch:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
