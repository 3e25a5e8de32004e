// Package store provides the concrete implementation of the application
// storage ports by composing lower-layer persistence ports (Index and
// BlobStorage). External packages should construct the store via New and
// interact only through the app interfaces.
package store

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/mbogdanowicz/imaginarium/internal/app"
	"github.com/mbogdanowicz/imaginarium/internal/domain"
)

// Store composes an Index and BlobStorage to satisfy app.LinkStore,
// app.ImageStore, and app.AccountStore. Link and account operations are pure
// index work; image operations coordinate the index with blob storage.
type Store struct {
	index Index
	blobs BlobStorage
}

// New returns a Store over the given index and blob storage.
func New(index Index, blobs BlobStorage) *Store {
	return &Store{index: index, blobs: blobs}
}

var (
	_ app.LinkStore    = (*Store)(nil)
	_ app.ImageStore   = (*Store)(nil)
	_ app.AccountStore = (*Store)(nil)
)

// --- app.LinkStore ---

// Insert persists a new link row.
func (s *Store) Insert(ctx context.Context, link *app.Link) (int64, error) {
	return s.index.InsertLink(ctx, link)
}

// FindByToken returns the active link for token, never consulting the
// blacklist.
func (s *Store) FindByToken(ctx context.Context, token domain.Token) (*app.Link, error) {
	return s.index.LinkByToken(ctx, token.String())
}

// ListByImage returns all active links for an image.
func (s *Store) ListByImage(ctx context.Context, imageID int64) ([]app.Link, error) {
	return s.index.LinksByImage(ctx, imageID)
}

// TokenInUse checks token against active links and the blacklist combined.
func (s *Store) TokenInUse(ctx context.Context, token domain.Token) (bool, error) {
	return s.index.TokenInUse(ctx, token.String())
}

// Reclaim performs the atomic delete-and-blacklist transition for token.
func (s *Store) Reclaim(ctx context.Context, token domain.Token) (bool, error) {
	return s.index.ReclaimLink(ctx, token.String())
}

// ExpiredTokens returns candidate tokens for the sweep path.
func (s *Store) ExpiredTokens(ctx context.Context, now time.Time) ([]domain.Token, error) {
	raw, err := s.index.ExpiredLinkTokens(ctx, now)
	if err != nil {
		return nil, err
	}
	tokens := make([]domain.Token, len(raw))
	for i, r := range raw {
		tokens[i] = domain.Token(r)
	}
	return tokens, nil
}

// --- app.ImageStore ---

// Save writes the blob first, then the metadata row. An index failure rolls
// the blob back best-effort so no orphan row can ever reference missing
// bytes; an orphan blob is reclaimed later by Reconcile.
func (s *Store) Save(ctx context.Context, img *app.Image, r io.Reader) error {
	if s == nil || s.index == nil || s.blobs == nil {
		return errors.New("store not properly initialized")
	}
	if err := s.blobs.Write(ctx, img.ObjectKey, r, img.Size, img.ContentType); err != nil {
		return err
	}
	id, err := s.index.InsertImage(ctx, img)
	if err != nil {
		_ = s.blobs.Delete(ctx, img.ObjectKey)
		return err
	}
	img.ID = id
	return nil
}

// Get returns image metadata.
func (s *Store) Get(ctx context.Context, id int64) (*app.Image, error) {
	return s.index.ImageByID(ctx, id)
}

// ListByOwner returns the owner's images.
func (s *Store) ListByOwner(ctx context.Context, ownerID int64) ([]app.Image, error) {
	return s.index.ImagesByOwner(ctx, ownerID)
}

// Open returns a reader over the stored bytes together with the metadata.
func (s *Store) Open(ctx context.Context, id int64) (io.ReadCloser, *app.Image, error) {
	img, err := s.index.ImageByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, img.ObjectKey)
	if err != nil {
		return nil, nil, err
	}
	return rc, img, nil
}

// Delete removes the metadata row, which cascades to the image's links, and
// best-effort deletes the blob.
func (s *Store) Delete(ctx context.Context, id int64) error {
	key, err := s.index.DeleteImage(ctx, id)
	if err != nil {
		return err
	}
	_ = s.blobs.Delete(ctx, key) // best-effort
	return nil
}

// Reconcile removes blobs with no corresponding image row. Idempotent and
// safe to run periodically alongside request traffic.
func (s *Store) Reconcile(ctx context.Context) error {
	if s == nil || s.index == nil || s.blobs == nil {
		return errors.New("store not properly initialized")
	}
	blobKeys, err := s.blobs.List(ctx)
	if err != nil {
		return err
	}
	keys, err := s.index.ListObjectKeys(ctx)
	if err != nil {
		return err
	}
	indexSet := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		indexSet[k] = struct{}{}
	}
	for _, bk := range blobKeys {
		if _, ok := indexSet[bk]; !ok {
			_ = s.blobs.Delete(ctx, bk)
		}
	}
	return nil
}

// --- app.AccountStore ---

// CreateUser persists a new user, defaulting the tier when unset.
func (s *Store) CreateUser(ctx context.Context, u *app.User) (int64, error) {
	return s.index.InsertUser(ctx, u)
}

// UserByID returns the user record.
func (s *Store) UserByID(ctx context.Context, id int64) (*app.User, error) {
	return s.index.UserByID(ctx, id)
}

// UserByUsername returns the user record.
func (s *Store) UserByUsername(ctx context.Context, username string) (*app.User, error) {
	return s.index.UserByUsername(ctx, username)
}

// ListUsers returns all users.
func (s *Store) ListUsers(ctx context.Context) ([]app.User, error) {
	return s.index.ListUsers(ctx)
}

// TierByID returns the tier record.
func (s *Store) TierByID(ctx context.Context, id int64) (*app.Tier, error) {
	return s.index.TierByID(ctx, id)
}
