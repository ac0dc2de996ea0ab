package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/avvvet/expiry-services/internal/cardsvc/models"
	"github.com/avvvet/expiry-services/internal/cardsvc/ocr"
	"github.com/avvvet/expiry-services/internal/cardsvc/scanlog"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

// CardService is implemented by service.CardService.
type CardService interface {
	List(ctx context.Context) ([]*models.Card, error)
	Get(ctx context.Context, id int64) (*models.Card, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.Card, error)
	ListByCategory(ctx context.Context, category models.Category) ([]*models.Card, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Card, error)
	Create(ctx context.Context, in models.CardInput) (*models.Card, error)
	Update(ctx context.Context, id int64, in models.CardInput) (*models.Card, error)
	Delete(ctx context.Context, id int64) error
	MarkUsed(ctx context.Context, id int64) (*models.Card, error)
	ExpiringSoon(ctx context.Context, days int) ([]*models.Card, error)
	Expired(ctx context.Context) ([]*models.Card, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

// OcrProcessor is implemented by ocr.Client.
type OcrProcessor interface {
	Process(ctx context.Context, imageBase64 string) ocr.Result
}

// ScanRecorder is implemented by scanlog.ScanLog.
type ScanRecorder interface {
	Record(ctx context.Context, userID string, res ocr.Result) (*scanlog.Scan, error)
	Recent(ctx context.Context, limit int64) ([]scanlog.Scan, error)
}

type Handler struct {
	tokenAuth *jwtauth.JWTAuth
	cards     CardService
	ocr       OcrProcessor
	scans     ScanRecorder
}

// NewHandler wires the HTTP layer. scans may be nil when MongoDB is not configured.
func NewHandler(cards CardService, ocr OcrProcessor, scans ScanRecorder) *Handler {
	return &Handler{cards: cards, ocr: ocr, scans: scans}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)

	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("could not write response: %v", err)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("could not write response: %v", err)
	}
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string, err error) {
	rsp := Response{Message: msg, Code: http.StatusBadRequest}
	if err != nil {
		rsp.Error = err.Error()
	}
	h.CreateResponse(w, rsp)
}

// writeError maps service errors to status codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	rsp := Response{Error: err.Error()}

	switch {
	case errors.Is(err, models.ErrValidation):
		rsp.Code = http.StatusBadRequest
		rsp.Message = "invalid request"
	case errors.Is(err, models.ErrNotFound):
		rsp.Code = http.StatusNotFound
		rsp.Message = "card not found"
	case errors.Is(err, models.ErrInvalidTransition):
		rsp.Code = http.StatusConflict
		rsp.Message = "status change not allowed"
	default:
		log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
		rsp.Code = http.StatusInternalServerError
		rsp.Message = "internal server error"
		rsp.Error = "internal server error"
	}
	h.CreateResponse(w, rsp)
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "card service is running",
		Code:    http.StatusOK,
	})
}
