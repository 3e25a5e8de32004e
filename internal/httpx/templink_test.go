package httpx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mbogdanowicz/imaginarium/internal/app"
	"github.com/mbogdanowicz/imaginarium/internal/domain"
	"github.com/mbogdanowicz/imaginarium/internal/httpx"
)

// mockLinks implements httpx.LinkService with function fields.
type mockLinks struct {
	createFn  func(ctx context.Context, requester app.Identity, imageID int64, ttl int) (*app.Link, error)
	listFn    func(ctx context.Context, requester app.Identity, imageID int64) ([]app.Link, error)
	resolveFn func(ctx context.Context, token string) (io.ReadCloser, *app.Image, error)
}

func (m mockLinks) CreateLink(ctx context.Context, requester app.Identity, imageID int64, ttl int) (*app.Link, error) {
	return m.createFn(ctx, requester, imageID, ttl)
}

func (m mockLinks) ListLinks(ctx context.Context, requester app.Identity, imageID int64) ([]app.Link, error) {
	return m.listFn(ctx, requester, imageID)
}

func (m mockLinks) Resolve(ctx context.Context, token string) (io.ReadCloser, *app.Image, error) {
	return m.resolveFn(ctx, token)
}

func (m mockLinks) LinkURL(token domain.Token) string {
	return "http://localhost:8080/api/templink/" + token.String() + "/"
}

// mockImages implements httpx.ImageService with function fields.
type mockImages struct {
	uploadFn func(ctx context.Context, requester app.Identity, contentType string, r io.Reader, size int64) (*app.Image, error)
	listFn   func(ctx context.Context, requester app.Identity) ([]app.Image, error)
	detailFn func(ctx context.Context, requester app.Identity, id int64) (*app.ImageDetail, error)
	openFn   func(ctx context.Context, requester app.Identity, id int64) (io.ReadCloser, *app.Image, error)
	deleteFn func(ctx context.Context, requester app.Identity, id int64) error
}

func (m mockImages) Upload(ctx context.Context, requester app.Identity, contentType string, r io.Reader, size int64) (*app.Image, error) {
	return m.uploadFn(ctx, requester, contentType, r, size)
}

func (m mockImages) List(ctx context.Context, requester app.Identity) ([]app.Image, error) {
	return m.listFn(ctx, requester)
}

func (m mockImages) Detail(ctx context.Context, requester app.Identity, id int64) (*app.ImageDetail, error) {
	return m.detailFn(ctx, requester, id)
}

func (m mockImages) Open(ctx context.Context, requester app.Identity, id int64) (io.ReadCloser, *app.Image, error) {
	return m.openFn(ctx, requester, id)
}

func (m mockImages) Delete(ctx context.Context, requester app.Identity, id int64) error {
	return m.deleteFn(ctx, requester, id)
}

// mockAccounts implements httpx.AccountService. verifyFn defaults to
// rejecting every token, leaving requests anonymous.
type mockAccounts struct {
	registerFn func(ctx context.Context, username, email, password string) (*app.User, error)
	loginFn    func(ctx context.Context, username, password string) (string, error)
	verifyFn   func(token string) (app.Identity, error)
	getFn      func(ctx context.Context, requester app.Identity, id int64) (*app.User, error)
	listFn     func(ctx context.Context, requester app.Identity) ([]app.User, error)
}

func (m mockAccounts) Register(ctx context.Context, username, email, password string) (*app.User, error) {
	return m.registerFn(ctx, username, email, password)
}

func (m mockAccounts) Login(ctx context.Context, username, password string) (string, error) {
	return m.loginFn(ctx, username, password)
}

func (m mockAccounts) Verify(token string) (app.Identity, error) {
	if m.verifyFn != nil {
		return m.verifyFn(token)
	}
	return app.Identity{}, app.ErrInvalidCredentials
}

func (m mockAccounts) Get(ctx context.Context, requester app.Identity, id int64) (*app.User, error) {
	return m.getFn(ctx, requester, id)
}

func (m mockAccounts) List(ctx context.Context, requester app.Identity) ([]app.User, error) {
	return m.listFn(ctx, requester)
}

// asUser returns a verifier that maps the literal token "valid" to userID.
func asUser(userID int64) func(string) (app.Identity, error) {
	return func(token string) (app.Identity, error) {
		if token == "valid" {
			return app.Identity{UserID: userID}, nil
		}
		return app.Identity{}, app.ErrInvalidCredentials
	}
}

func TestHandleCreateTempLinkSuccess(t *testing.T) {
	tok, _ := domain.NewToken()
	created := time.Unix(1700000000, 0).UTC()
	links := mockLinks{createFn: func(_ context.Context, requester app.Identity, imageID int64, ttl int) (*app.Link, error) {
		if requester.UserID != 7 {
			t.Fatalf("requester = %+v", requester)
		}
		if imageID != 42 || ttl != 600 {
			t.Fatalf("imageID=%d ttl=%d", imageID, ttl)
		}
		return &app.Link{ID: 5, Token: tok, ImageID: 42, OwnerID: 7, CreatedAt: created, ExpiresIn: 600}, nil
	}}
	h := httpx.New(links, mockImages{}, mockAccounts{verifyFn: asUser(7)}, 1<<20, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/image/42/templink/", strings.NewReader(`{"expires_in":600}`))
	req.Header.Set("Authorization", "Bearer valid")
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		PK        int64  `json:"pk"`
		Link      string `json:"link"`
		Image     int64  `json:"image"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.PK != 5 || resp.Image != 42 || resp.ExpiresIn != 600 {
		t.Fatalf("response %+v", resp)
	}
	want := "http://localhost:8080/api/templink/" + tok.String() + "/"
	if resp.Link != want {
		t.Fatalf("link %q want %q", resp.Link, want)
	}
}

func TestHandleCreateTempLinkInvalidTTL(t *testing.T) {
	links := mockLinks{createFn: func(_ context.Context, _ app.Identity, _ int64, _ int) (*app.Link, error) {
		return nil, domain.ErrTTLInvalid
	}}
	h := httpx.New(links, mockImages{}, mockAccounts{verifyFn: asUser(7)}, 1<<20, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/image/42/templink/", strings.NewReader(`{"expires_in":5}`))
	req.Header.Set("Authorization", "Bearer valid")
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("expires_in must be between 300 and 30000 seconds")) {
		t.Fatalf("body %s", w.Body.String())
	}
}

func TestHandleCreateTempLinkDenialIsUniform(t *testing.T) {
	links := mockLinks{createFn: func(_ context.Context, _ app.Identity, _ int64, _ int) (*app.Link, error) {
		return nil, app.ErrPermissionDenied
	}}
	h := httpx.New(links, mockImages{}, mockAccounts{}, 1<<20, nil)
	// anonymous, non-owner, and wrong-tier all surface the same response
	req := httptest.NewRequest(http.MethodPost, "/api/image/42/templink/", strings.NewReader(`{"expires_in":600}`))
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status=%d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(app.ErrPermissionDenied.Error())) {
		t.Fatalf("body %s", w.Body.String())
	}
}

func TestHandleListTempLinks(t *testing.T) {
	tok, _ := domain.NewToken()
	links := mockLinks{listFn: func(_ context.Context, requester app.Identity, imageID int64) ([]app.Link, error) {
		if requester.UserID != 7 || imageID != 42 {
			t.Fatalf("requester=%+v imageID=%d", requester, imageID)
		}
		return []app.Link{{ID: 1, Token: tok, ImageID: 42, ExpiresIn: 300}}, nil
	}}
	h := httpx.New(links, mockImages{}, mockAccounts{verifyFn: asUser(7)}, 1<<20, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/image/42/templink/", nil)
	req.Header.Set("Authorization", "Bearer valid")
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var resp []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("expected 1 link, got %v", resp)
	}
}

func TestHandleResolveTempLinkStreamsImage(t *testing.T) {
	tok, _ := domain.NewToken()
	links := mockLinks{resolveFn: func(_ context.Context, token string) (io.ReadCloser, *app.Image, error) {
		if token != tok.String() {
			t.Fatalf("token %q", token)
		}
		img := &app.Image{ID: 1, ContentType: "image/png", Size: 3}
		return io.NopCloser(strings.NewReader("png")), img, nil
	}}
	h := httpx.New(links, mockImages{}, mockAccounts{}, 1<<20, nil)
	// no Authorization header: the token is the capability
	req := httptest.NewRequest(http.MethodGet, "/api/templink/"+tok.String()+"/", nil)
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content-type %q", ct)
	}
	if cl := w.Header().Get("Content-Length"); cl != "3" {
		t.Fatalf("content-length %q", cl)
	}
	if w.Body.String() != "png" {
		t.Fatalf("body %q", w.Body.String())
	}
}

func TestHandleResolveTempLinkGoneAndNotFound(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"expired_now", app.ErrLinkGone, http.StatusGone},
		{"unknown_or_reclaimed", app.ErrNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		links := mockLinks{resolveFn: func(_ context.Context, _ string) (io.ReadCloser, *app.Image, error) {
			return nil, nil, tc.err
		}}
		h := httpx.New(links, mockImages{}, mockAccounts{}, 1<<20, nil)
		tok, _ := domain.NewToken()
		req := httptest.NewRequest(http.MethodGet, "/api/templink/"+tok.String()+"/", nil)
		w := httptest.NewRecorder()
		h.Router().ServeHTTP(w, req)
		if w.Code != tc.code {
			t.Fatalf("%s: status=%d want %d", tc.name, w.Code, tc.code)
		}
	}
}

func TestRouterSetsCorrelationAndSecurityHeaders(t *testing.T) {
	h := httpx.New(mockLinks{}, mockImages{}, mockAccounts{}, 1<<20, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if w.Header().Get(httpx.CorrelationIDHeader) == "" {
		t.Fatalf("missing correlation id header")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff header")
	}
}

func TestHandleReadyProbe(t *testing.T) {
	fail := func(context.Context) error { return context.DeadlineExceeded }
	h := httpx.New(mockLinks{}, mockImages{}, mockAccounts{}, 1<<20, fail)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
}
