package api

import (
	"fmt"
	"net/http"
	"strconv"
)

// RecordsHandler handles finished session record requests.
type RecordsHandler struct {
	deps RecordDependencies
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(deps RecordDependencies) *RecordsHandler {
	return &RecordsHandler{deps: deps}
}

// HandleGet handles GET /records/{id} requests.
func (h *RecordsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_record"
	rec, err := h.deps.Record(r.Context(), r.PathValue("id"))
	if err != nil {
		writeKindError(w, classify(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleList handles GET /records?limit=N requests.
func (h *RecordsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_records"
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeKindError(w, WrapKind(op, ErrBadRequest, fmt.Errorf("invalid limit %q", raw)))
			return
		}
		limit = n
	}
	recs, err := h.deps.Records(r.Context(), limit)
	if err != nil {
		writeKindError(w, classify(op, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}
