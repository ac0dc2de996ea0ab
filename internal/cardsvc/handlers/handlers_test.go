package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/avvvet/expiry-services/internal/cardsvc/models"
	"github.com/avvvet/expiry-services/internal/cardsvc/ocr"
	"github.com/avvvet/expiry-services/internal/cardsvc/scanlog"
	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCards struct {
	cards    map[int64]*models.Card
	lastIn   models.CardInput
	lastDays int
	err      error
}

func newFakeCards() *fakeCards {
	return &fakeCards{cards: map[int64]*models.Card{
		1: {ID: 1, Name: "Americano", Category: models.CategoryCoupon,
			ExpirationDate: models.NewDate(2026, 4, 1), Status: models.StatusActive},
	}}
}

func (f *fakeCards) all() []*models.Card {
	out := make([]*models.Card, 0, len(f.cards))
	for _, c := range f.cards {
		out = append(out, c)
	}
	return out
}

func (f *fakeCards) List(ctx context.Context) ([]*models.Card, error) { return f.all(), f.err }

func (f *fakeCards) Get(ctx context.Context, id int64) (*models.Card, error) {
	if c, ok := f.cards[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("card %d: %w", id, models.ErrNotFound)
}

func (f *fakeCards) ListByStatus(ctx context.Context, s models.Status) ([]*models.Card, error) {
	return f.all(), nil
}

func (f *fakeCards) ListByCategory(ctx context.Context, c models.Category) ([]*models.Card, error) {
	return f.all(), nil
}

func (f *fakeCards) ListByUser(ctx context.Context, userID string) ([]*models.Card, error) {
	return []*models.Card{}, nil
}

func (f *fakeCards) Create(ctx context.Context, in models.CardInput) (*models.Card, error) {
	f.lastIn = in
	if err := in.Validate(); err != nil {
		return nil, err
	}
	c := &models.Card{ID: 2, Name: in.Name, Category: in.Category,
		ExpirationDate: *in.ExpirationDate, Status: models.StatusActive, UserID: in.UserID}
	f.cards[c.ID] = c
	return c, nil
}

func (f *fakeCards) Update(ctx context.Context, id int64, in models.CardInput) (*models.Card, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	c, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Name = in.Name
	return c, nil
}

func (f *fakeCards) Delete(ctx context.Context, id int64) error {
	if _, err := f.Get(ctx, id); err != nil {
		return err
	}
	delete(f.cards, id)
	return nil
}

func (f *fakeCards) MarkUsed(ctx context.Context, id int64) (*models.Card, error) {
	c, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == models.StatusExpired {
		return nil, models.ErrInvalidTransition
	}
	c.Status = models.StatusUsed
	return c, nil
}

func (f *fakeCards) ExpiringSoon(ctx context.Context, days int) ([]*models.Card, error) {
	f.lastDays = days
	if days < 0 {
		return nil, fmt.Errorf("%w: days must not be negative", models.ErrValidation)
	}
	return f.all(), nil
}

func (f *fakeCards) Expired(ctx context.Context) ([]*models.Card, error) { return []*models.Card{}, nil }

func (f *fakeCards) Stats(ctx context.Context) (*models.Stats, error) {
	return &models.Stats{Total: 1, Active: 1}, f.err
}

type fakeOCR struct {
	got string
}

func (f *fakeOCR) Process(ctx context.Context, image string) ocr.Result {
	f.got = image
	return ocr.Result{Success: false, Message: ocr.MsgNotConfigured}
}

type fakeScans struct {
	recorded []ocr.Result
	users    []string
	limit    int64
}

func (f *fakeScans) Record(ctx context.Context, userID string, res ocr.Result) (*scanlog.Scan, error) {
	f.recorded = append(f.recorded, res)
	f.users = append(f.users, userID)
	return &scanlog.Scan{}, nil
}

func (f *fakeScans) Recent(ctx context.Context, limit int64) ([]scanlog.Scan, error) {
	f.limit = limit
	return []scanlog.Scan{{RequestID: "r-1", Message: ocr.MsgSuccess, Success: true}}, nil
}

func newRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(MonitorMiddleware)
	h.SetRoutes(r)
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var rsp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rsp))
	return rsp
}

func TestCardRoutes(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{name: "list", method: http.MethodGet, path: "/api/cards", wantStatus: http.StatusOK},
		{name: "get", method: http.MethodGet, path: "/api/cards/1", wantStatus: http.StatusOK},
		{name: "get missing", method: http.MethodGet, path: "/api/cards/99", wantStatus: http.StatusNotFound},
		{name: "get bad id", method: http.MethodGet, path: "/api/cards/abc", wantStatus: http.StatusBadRequest},
		{name: "by status", method: http.MethodGet, path: "/api/cards/status/active", wantStatus: http.StatusOK},
		{name: "by unknown status", method: http.MethodGet, path: "/api/cards/status/LOST", wantStatus: http.StatusBadRequest},
		{name: "by category", method: http.MethodGet, path: "/api/cards/category/COUPON", wantStatus: http.StatusOK},
		{name: "by unknown category", method: http.MethodGet, path: "/api/cards/category/CASH", wantStatus: http.StatusBadRequest},
		{name: "by user", method: http.MethodGet, path: "/api/cards/user/u-1", wantStatus: http.StatusOK},
		{name: "expiring soon", method: http.MethodGet, path: "/api/cards/expiring-soon", wantStatus: http.StatusOK},
		{name: "expiring soon bad days", method: http.MethodGet, path: "/api/cards/expiring-soon?days=x", wantStatus: http.StatusBadRequest},
		{name: "expiring soon negative days", method: http.MethodGet, path: "/api/cards/expiring-soon?days=-1", wantStatus: http.StatusBadRequest},
		{name: "expired", method: http.MethodGet, path: "/api/cards/expired", wantStatus: http.StatusOK},
		{name: "stats", method: http.MethodGet, path: "/api/cards/stats", wantStatus: http.StatusOK},
		{
			name: "create", method: http.MethodPost, path: "/api/cards",
			body:       `{"name":"CGV","category":"TICKET","expirationDate":"2026-01-01","status":"USED"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name: "create missing date", method: http.MethodPost, path: "/api/cards",
			body:       `{"name":"CGV","category":"TICKET"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "create bad date", method: http.MethodPost, path: "/api/cards",
			body:       `{"name":"CGV","category":"TICKET","expirationDate":"01/01/2026"}`,
			wantStatus: http.StatusBadRequest,
		},
		{name: "create malformed", method: http.MethodPost, path: "/api/cards", body: `{`, wantStatus: http.StatusBadRequest},
		{
			name: "update", method: http.MethodPut, path: "/api/cards/1",
			body:       `{"name":"Latte","category":"COUPON","expirationDate":"2026-05-01"}`,
			wantStatus: http.StatusOK,
		},
		{
			name: "update missing", method: http.MethodPut, path: "/api/cards/42",
			body:       `{"name":"Latte","category":"COUPON","expirationDate":"2026-05-01"}`,
			wantStatus: http.StatusNotFound,
		},
		{name: "use", method: http.MethodPut, path: "/api/cards/1/use", wantStatus: http.StatusOK},
		{name: "use missing", method: http.MethodPut, path: "/api/cards/7/use", wantStatus: http.StatusNotFound},
		{name: "delete", method: http.MethodDelete, path: "/api/cards/1", wantStatus: http.StatusNoContent},
		{name: "delete missing", method: http.MethodDelete, path: "/api/cards/5", wantStatus: http.StatusNotFound},
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(NewHandler(newFakeCards(), &fakeOCR{}, nil))
			rec := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantStatus >= http.StatusBadRequest {
				rsp := decodeEnvelope(t, rec)
				assert.Equal(t, tt.wantStatus, rsp.Code)
				assert.NotEmpty(t, rsp.Error)
			}
		})
	}
}

func TestCreateCard_Response(t *testing.T) {
	cards := newFakeCards()
	r := newRouter(NewHandler(cards, &fakeOCR{}, nil))

	rec := do(t, r, http.MethodPost, "/api/cards",
		`{"name":"CGV","category":"TICKET","expirationDate":"2026-01-01","barcode":"5555555555555"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/api/cards/2", rec.Header().Get("Location"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2026-01-01", body["expirationDate"])
	assert.Equal(t, "ACTIVE", body["status"])
	assert.Nil(t, body["usedAt"])
	require.NotNil(t, cards.lastIn.Barcode)
	assert.Equal(t, "5555555555555", *cards.lastIn.Barcode)
}

func TestCreateCard_OwnerFromToken(t *testing.T) {
	cards := newFakeCards()
	h := NewHandler(cards, &fakeOCR{}, nil)
	h.InitAuth("test-secret")
	r := newRouter(h)

	_, token, err := h.tokenAuth.Encode(map[string]interface{}{
		"user_id": "u-9",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	body := `{"name":"CGV","category":"TICKET","expirationDate":"2026-01-01"}`

	rec := do(t, r, http.MethodPost, "/api/cards", body, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, cards.lastIn.UserID)
	assert.Equal(t, "u-9", *cards.lastIn.UserID)

	rec = do(t, r, http.MethodPost, "/api/cards",
		`{"name":"CGV","category":"TICKET","expirationDate":"2026-01-01","userId":"explicit"}`,
		"Authorization", "Bearer "+token)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "explicit", *cards.lastIn.UserID)

	rec = do(t, r, http.MethodPost, "/api/cards", body, "Authorization", "Bearer not-a-token")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Nil(t, cards.lastIn.UserID)
}

func TestExpiringSoon_DefaultDays(t *testing.T) {
	cards := newFakeCards()
	r := newRouter(NewHandler(cards, &fakeOCR{}, nil))

	do(t, r, http.MethodGet, "/api/cards/expiring-soon", "")
	assert.Equal(t, 7, cards.lastDays)

	do(t, r, http.MethodGet, "/api/cards/expiring-soon?days=30", "")
	assert.Equal(t, 30, cards.lastDays)
}

func TestMarkUsed_Expired(t *testing.T) {
	cards := newFakeCards()
	cards.cards[1].Status = models.StatusExpired
	r := newRouter(NewHandler(cards, &fakeOCR{}, nil))

	rec := do(t, r, http.MethodPut, "/api/cards/1/use", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInternalErrorIsHidden(t *testing.T) {
	cards := newFakeCards()
	cards.err = errors.New("pq: password authentication failed")
	r := newRouter(NewHandler(cards, &fakeOCR{}, nil))

	rec := do(t, r, http.MethodGet, "/api/cards/stats", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestProcessImage(t *testing.T) {
	t.Run("always 200 and recorded", func(t *testing.T) {
		o := &fakeOCR{}
		scans := &fakeScans{}
		r := newRouter(NewHandler(newFakeCards(), o, scans))

		rec := do(t, r, http.MethodPost, "/api/ocr/process", `{"imageBase64":"data:image/jpeg;base64,AAAA"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "data:image/jpeg;base64,AAAA", o.got)

		var res ocr.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.False(t, res.Success)
		assert.Equal(t, ocr.MsgNotConfigured, res.Message)
		assert.Len(t, scans.recorded, 1)
		assert.Equal(t, []string{""}, scans.users)
	})

	t.Run("malformed body", func(t *testing.T) {
		r := newRouter(NewHandler(newFakeCards(), &fakeOCR{}, nil))
		rec := do(t, r, http.MethodPost, "/api/ocr/process", `not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRecentScans(t *testing.T) {
	t.Run("disabled without mongo", func(t *testing.T) {
		r := newRouter(NewHandler(newFakeCards(), &fakeOCR{}, nil))
		rec := do(t, r, http.MethodGet, "/api/ocr/scans", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("lists recent scans", func(t *testing.T) {
		scans := &fakeScans{}
		r := newRouter(NewHandler(newFakeCards(), &fakeOCR{}, scans))

		rec := do(t, r, http.MethodGet, "/api/ocr/scans?limit=5", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(5), scans.limit)

		var got []scanlog.Scan
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "r-1", got[0].RequestID)
	})

	t.Run("bad limit", func(t *testing.T) {
		r := newRouter(NewHandler(newFakeCards(), &fakeOCR{}, &fakeScans{}))
		rec := do(t, r, http.MethodGet, "/api/ocr/scans?limit=many", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	r := newRouter(NewHandler(newFakeCards(), &fakeOCR{}, nil))
	rec := do(t, r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
