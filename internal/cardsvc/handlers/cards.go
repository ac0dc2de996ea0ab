package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/avvvet/expiry-services/internal/cardsvc/models"
	"github.com/go-chi/chi"
)

const (
	defaultExpiringDays = 7
	maxBodyBytes        = 10 << 20
)

func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.cards.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cards)
}

func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	id, ok := h.cardID(w, r)
	if !ok {
		return
	}
	card, err := h.cards.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, card)
}

func (h *Handler) ListCardsByStatus(w http.ResponseWriter, r *http.Request) {
	status, err := models.ParseStatus(chi.URLParam(r, "status"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cards, err := h.cards.ListByStatus(r.Context(), status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cards)
}

func (h *Handler) ListCardsByCategory(w http.ResponseWriter, r *http.Request) {
	category, err := models.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cards, err := h.cards.ListByCategory(r.Context(), category)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cards)
}

func (h *Handler) ListCardsByUser(w http.ResponseWriter, r *http.Request) {
	cards, err := h.cards.ListByUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cards)
}

func (h *Handler) ExpiringSoon(w http.ResponseWriter, r *http.Request) {
	days := defaultExpiringDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.badRequest(w, "days must be an integer", err)
			return
		}
		days = n
	}

	cards, err := h.cards.ExpiringSoon(r.Context(), days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cards)
}

func (h *Handler) Expired(w http.ResponseWriter, r *http.Request) {
	cards, err := h.cards.Expired(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cards)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cards.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeCard(w, r)
	if !ok {
		return
	}
	if in.UserID == nil {
		if user, ok := h.userFromToken(r); ok {
			in.UserID = &user
		}
	}

	card, err := h.cards.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/cards/%d", card.ID))
	h.writeJSON(w, http.StatusCreated, card)
}

func (h *Handler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	id, ok := h.cardID(w, r)
	if !ok {
		return
	}
	in, ok := h.decodeCard(w, r)
	if !ok {
		return
	}

	card, err := h.cards.Update(r.Context(), id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, card)
}

func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	id, ok := h.cardID(w, r)
	if !ok {
		return
	}
	if err := h.cards.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MarkUsed(w http.ResponseWriter, r *http.Request) {
	id, ok := h.cardID(w, r)
	if !ok {
		return
	}
	card, err := h.cards.MarkUsed(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, card)
}

func (h *Handler) cardID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(w, "card id must be a positive integer", err)
		return 0, false
	}
	return id, true
}

func (h *Handler) decodeCard(w http.ResponseWriter, r *http.Request) (models.CardInput, bool) {
	var in models.CardInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		h.badRequest(w, "invalid request body", err)
		return in, false
	}
	return in, true
}
