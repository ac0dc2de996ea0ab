package config

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	// no file is not fatal
	LoadEnv("test")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("EXPIRY_TEST_VALUE=from-file\n"), 0o600))
	t.Setenv("EXPIRY_TEST_VALUE", "")
	os.Unsetenv("EXPIRY_TEST_VALUE")
	LoadEnv("test")
	assert.Equal(t, "from-file", os.Getenv("EXPIRY_TEST_VALUE"))
}

func TestCreateUniqueInstance(t *testing.T) {
	id := CreateUniqueInstance("test")
	_, err := uuid.FromString(id)
	assert.NoError(t, err)
	assert.Equal(t, id, GetInstanceId())
}

func TestCORS(t *testing.T) {
	r := chi.NewRouter()
	r.Use(CORS([]string{"https://cards.example.com"}).Handler)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://cards.example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "https://cards.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCustomLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	prev := log.StandardLogger().Out
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(prev) })

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(CustomLoggerMiddleware())
	r.Get("/teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot", nil))
	assert.Contains(t, buf.String(), "status=418")
	assert.Contains(t, buf.String(), "uri=/teapot")
}
