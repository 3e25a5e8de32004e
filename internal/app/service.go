// Package app contains the application orchestration layer for Imaginarium.
// It wires domain validation with persistence ports without performing any
// I/O itself.
package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/mbogdanowicz/imaginarium/internal/domain"
)

// ErrNotFound indicates the resource does not exist or, for templink tokens,
// was already reclaimed. The two cases present identically to callers.
var ErrNotFound = errors.New("not found")

// ErrLinkGone indicates a temporary link was observed expired by this call,
// which reclaimed it as a side effect. Subsequent lookups yield ErrNotFound.
var ErrLinkGone = errors.New("temporary link expired")

// ErrPermissionDenied is the uniform denial for the templink gate and other
// owner-only operations. The failing sub-condition is logged, never exposed.
var ErrPermissionDenied = errors.New("only owners whose account tier allows temporary links may view or create them")

// ErrSizeExceeded indicates an upload is empty or exceeds the configured maximum.
var ErrSizeExceeded = errors.New("size exceeded")

// ErrUnsupportedType indicates an upload is not a JPEG or PNG image.
var ErrUnsupportedType = errors.New("unsupported image type")

// ErrInvalidCredentials indicates a failed username/password check.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrUsernameTaken indicates a registration conflict.
var ErrUsernameTaken = errors.New("username already taken")

// Service is the temporary-link lifecycle manager. It orchestrates token
// issuance, policy-gated creation and listing, the resolve path, and the
// sweep path against the injected stores and clock.
type Service struct {
	Links     LinkStore
	Images    ImageStore
	Accounts  AccountStore
	Clock     Clock
	PublicURL string // absolute base for resolvable link URLs
	MinTTL    int    // seconds
	MaxTTL    int    // seconds
	Logger    *slog.Logger
}

func (s *Service) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// CreateLink validates the TTL, applies the access policy, issues a unique
// token, and persists a new link with CreatedAt set from the injected clock.
func (s *Service) CreateLink(ctx context.Context, requester Identity, imageID int64, ttlSeconds int) (*Link, error) {
	if err := domain.ValidateTTL(ttlSeconds, s.MinTTL, s.MaxTTL); err != nil {
		return nil, err
	}
	img, err := s.Images.Get(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if err := s.canManageLinks(ctx, requester, img); err != nil {
		return nil, err
	}
	token, err := s.issueToken(ctx)
	if err != nil {
		return nil, err
	}
	link := &Link{
		Token:     token,
		ImageID:   img.ID,
		OwnerID:   img.OwnerID,
		CreatedAt: s.Clock.Now().UTC(),
		ExpiresIn: ttlSeconds,
	}
	id, err := s.Links.Insert(ctx, link)
	if err != nil {
		return nil, err
	}
	link.ID = id
	return link, nil
}

// ListLinks returns all links for an image. Listing uses the same gate as
// creation: a tier that cannot create links cannot view any.
func (s *Service) ListLinks(ctx context.Context, requester Identity, imageID int64) ([]Link, error) {
	img, err := s.Images.Get(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if err := s.canManageLinks(ctx, requester, img); err != nil {
		return nil, err
	}
	return s.Links.ListByImage(ctx, img.ID)
}

// Resolve looks up a link by token and either streams the referenced image,
// reports it gone (reclaiming it atomically), or reports not found. Active
// reads leave the link untouched; repeated reads before expiry are
// side-effect-free.
func (s *Service) Resolve(ctx context.Context, tokenStr string) (io.ReadCloser, *Image, error) {
	token, err := domain.ParseToken(tokenStr)
	if err != nil {
		// A malformed token cannot exist; present it as unknown.
		return nil, nil, ErrNotFound
	}
	link, err := s.Links.FindByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if domain.IsExpired(link.CreatedAt, link.ExpiresIn, s.Clock.Now()) {
		reclaimed, rErr := s.Links.Reclaim(ctx, token)
		switch {
		case rErr != nil:
			// A failed reclaim commit means "not yet reclaimed": serve this
			// read as still active and let the next resolve or sweep retry.
			s.log().Warn("templink reclaim failed", "error", rErr)
		case reclaimed:
			return nil, nil, ErrLinkGone
		default:
			// A concurrent resolve or sweep won the transition.
			return nil, nil, ErrNotFound
		}
	}
	rc, img, err := s.Images.Open(ctx, link.ImageID)
	if err != nil {
		return nil, nil, err
	}
	return rc, img, nil
}

// Sweep reclaims every expired link in one pass and returns the number this
// pass actually transitioned. Safe to run concurrently with itself and with
// resolve traffic: the per-token atomic reclaim means racing passes never
// double-count.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	now := s.Clock.Now()
	tokens, err := s.Links.ExpiredTokens(ctx, now)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, token := range tokens {
		reclaimed, err := s.Links.Reclaim(ctx, token)
		if err != nil {
			s.log().Warn("templink reclaim failed during sweep", "error", err)
			continue
		}
		if reclaimed {
			removed++
		}
	}
	return removed, nil
}

// LinkURL returns the fully-qualified resolvable URL embedding the token.
func (s *Service) LinkURL(token domain.Token) string {
	return strings.TrimSuffix(s.PublicURL, "/") + "/api/templink/" + token.String() + "/"
}

// issueToken generates candidate tokens until one is absent from both the
// link and blacklist stores. Collision probability is treated as negligible,
// not zero, so every candidate is re-checked. No retry bound is imposed.
func (s *Service) issueToken(ctx context.Context) (domain.Token, error) {
	for {
		token, err := domain.NewToken()
		if err != nil {
			return "", err
		}
		inUse, err := s.Links.TokenInUse(ctx, token)
		if err != nil {
			return "", err
		}
		if !inUse {
			return token, nil
		}
	}
}
