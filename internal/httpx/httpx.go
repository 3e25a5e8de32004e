// Package httpx contains the HTTP delivery layer (net/http handlers) for the
// Imaginarium API. It maps HTTP requests to the application services while
// enforcing authentication, size limits, security headers, streaming
// semantics, and error translation. Handlers are split across files
// (templink.go, images.go, users.go, health.go, errors.go).
package httpx

import (
	"context"
	"io"
	"net/http"

	"github.com/mbogdanowicz/imaginarium/internal/app"
	"github.com/mbogdanowicz/imaginarium/internal/domain"
)

// LinkService abstracts the subset of app.Service used by the HTTP layer.
// It is satisfied by *app.Service in production and mocked in tests.
type LinkService interface {
	CreateLink(ctx context.Context, requester app.Identity, imageID int64, ttlSeconds int) (*app.Link, error)
	ListLinks(ctx context.Context, requester app.Identity, imageID int64) ([]app.Link, error)
	Resolve(ctx context.Context, token string) (io.ReadCloser, *app.Image, error)
	LinkURL(token domain.Token) string
}

// ImageService abstracts app.ImageService for the HTTP layer.
type ImageService interface {
	Upload(ctx context.Context, requester app.Identity, contentType string, r io.Reader, size int64) (*app.Image, error)
	List(ctx context.Context, requester app.Identity) ([]app.Image, error)
	Detail(ctx context.Context, requester app.Identity, id int64) (*app.ImageDetail, error)
	Open(ctx context.Context, requester app.Identity, id int64) (io.ReadCloser, *app.Image, error)
	Delete(ctx context.Context, requester app.Identity, id int64) error
}

// AccountService abstracts app.AccountService for the HTTP layer.
type AccountService interface {
	Register(ctx context.Context, username, email, password string) (*app.User, error)
	Login(ctx context.Context, username, password string) (string, error)
	Verify(token string) (app.Identity, error)
	Get(ctx context.Context, requester app.Identity, id int64) (*app.User, error)
	List(ctx context.Context, requester app.Identity) ([]app.User, error)
}

// MetricsSink receives counter increments from the request path. Optional.
type MetricsSink interface {
	Inc(name string, delta int64)
}

// Handler wires HTTP endpoints to the application services.
// It is safe for concurrent use. Zero-value is not valid; construct via New.
type Handler struct {
	Links     LinkService
	Images    ImageService
	Accounts  AccountService
	MaxBody   int64                       // mirror image service MaxBytes (defense-in-depth)
	Readiness func(context.Context) error // optional readiness probe
	Metrics   MetricsSink                 // optional counters
}

// New returns a configured Handler.
func New(links LinkService, images ImageService, accounts AccountService, maxBody int64, readiness func(context.Context) error) *Handler {
	return &Handler{Links: links, Images: images, Accounts: accounts, MaxBody: maxBody, Readiness: readiness}
}

// Router constructs and returns an http.Handler with all routes mounted and
// the correlation-ID, identity, and security-header middlewares applied.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/user/{$}", h.handleRegister)
	mux.HandleFunc("GET /api/user/{$}", h.handleListUsers)
	mux.HandleFunc("GET /api/user/{pk}/{$}", h.handleUserDetail)
	mux.HandleFunc("POST /api/auth/login/{$}", h.handleLogin)
	mux.HandleFunc("POST /api/image/{$}", h.handleUploadImage)
	mux.HandleFunc("GET /api/image/{$}", h.handleListImages)
	mux.HandleFunc("GET /api/image/{pk}/{$}", h.handleImageDetail)
	mux.HandleFunc("GET /api/image/{pk}/file/{$}", h.handleImageFile)
	mux.HandleFunc("DELETE /api/image/{pk}/{$}", h.handleDeleteImage)
	mux.HandleFunc("POST /api/image/{pk}/templink/{$}", h.handleCreateTempLink)
	mux.HandleFunc("GET /api/image/{pk}/templink/{$}", h.handleListTempLinks)
	mux.HandleFunc("GET /api/templink/{token}/{$}", h.handleResolveTempLink)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /readyz", h.handleReady)
	return CorrelationIDMiddleware(h.withIdentity(h.secureHeaders(mux)))
}

// secureHeaders middleware adds standard security & cache control headers.
func (h *Handler) secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		if ct := w.Header().Get("Content-Type"); ct == "" {
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Pragma", "no-cache")
		}
		w.Header().Set("Content-Security-Policy", "default-src 'none'; img-src 'self'; frame-ancestors 'none'; base-uri 'none'")
		next.ServeHTTP(w, r)
	})
}

// count increments a metrics counter if a sink is configured.
func (h *Handler) count(name string) {
	if h.Metrics != nil {
		h.Metrics.Inc(name, 1)
	}
}
