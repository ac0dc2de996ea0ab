package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"
)

type ocrRequest struct {
	ImageBase64 string `json:"imageBase64"`
}

// ProcessImage always answers 200 with the recognition result, successful or not.
func (h *Handler) ProcessImage(w http.ResponseWriter, r *http.Request) {
	var req ocrRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.badRequest(w, "invalid request body", err)
		return
	}

	res := h.ocr.Process(r.Context(), req.ImageBase64)

	if h.scans != nil {
		user, _ := h.userFromToken(r)
		if _, err := h.scans.Record(r.Context(), user, res); err != nil {
			log.Warnf("ocr scan not recorded: %v", err)
		}
	}

	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) RecentScans(w http.ResponseWriter, r *http.Request) {
	if h.scans == nil {
		h.CreateResponse(w, Response{
			Message: "scan history is disabled",
			Code:    http.StatusServiceUnavailable,
			Error:   "MONGODB_URI is not configured",
		})
		return
	}

	var limit int64
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.badRequest(w, "limit must be an integer", err)
			return
		}
		limit = n
	}

	scans, err := h.scans.Recent(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, scans)
}
