package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/okian/proctor/internal/domain/types"
)

// maxFrameBody bounds a frame upload before the camera applies its own
// limit. Base64 bodies are a third larger than the image.
const maxFrameBody = 8 << 20

// SessionsHandler handles session requests.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// HandleStart handles POST /sessions requests.
func (h *SessionsHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	const op = "api.start_session"
	var req types.StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeKindError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.StudentID) == "" {
		writeKindError(w, WrapKind(op, ErrBadRequest, errors.New("missing student_id")))
		return
	}
	view, err := h.deps.StartSession(r.Context(), req)
	if err != nil {
		writeKindError(w, classify(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// HandleGet handles GET /sessions/{id} requests.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_session"
	view, err := h.deps.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeKindError(w, classify(op, err))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleStop handles POST /sessions/{id}/stop requests.
func (h *SessionsHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	const op = "api.stop_session"
	rec, err := h.deps.StopSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeKindError(w, classify(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleSignal handles POST /sessions/{id}/signals requests and answers
// with the session as it stands after the signal.
func (h *SessionsHandler) HandleSignal(w http.ResponseWriter, r *http.Request) {
	const op = "api.signal"
	id := r.PathValue("id")
	var req types.SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeKindError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.Signal(r.Context(), id, req); err != nil {
		writeKindError(w, classify(op, err))
		return
	}
	h.writeSession(w, r, op, id)
}

// HandleCamera handles POST /sessions/{id}/camera requests.
func (h *SessionsHandler) HandleCamera(w http.ResponseWriter, r *http.Request) {
	const op = "api.camera"
	id := r.PathValue("id")
	var req types.CameraRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeKindError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.Camera(r.Context(), id, req); err != nil {
		writeKindError(w, classify(op, err))
		return
	}
	h.writeSession(w, r, op, id)
}

type frameRequest struct {
	// Image is base64, optionally as a data URL.
	Image string `json:"image"`
}

type ackResponse struct {
	Status string `json:"status"`
}

// HandleFrame handles POST /sessions/{id}/frames requests. The body is the
// raw image, or JSON carrying it in base64 when the content type is
// application/json.
func (h *SessionsHandler) HandleFrame(w http.ResponseWriter, r *http.Request) {
	const op = "api.push_frame"
	frame, err := readFrame(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeKindError(w, WrapKind(op, ErrFrameTooLarge, err))
			return
		}
		writeKindError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.PushFrame(r.Context(), r.PathValue("id"), frame); err != nil {
		writeKindError(w, classify(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}

func (h *SessionsHandler) writeSession(w http.ResponseWriter, r *http.Request, op, id string) {
	view, err := h.deps.Get(r.Context(), id)
	if err != nil {
		writeKindError(w, classify(op, err))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func readFrame(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body := http.MaxBytesReader(w, r.Body, maxFrameBody)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return io.ReadAll(body)
	}

	var req frameRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return nil, err
	}
	data := req.Image
	if strings.HasPrefix(data, "data:") {
		if i := strings.IndexByte(data, ','); i >= 0 {
			data = data[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(data)
}
