// Package store defines internal persistence adapter ports used by the
// higher-level Store implementation. These ports isolate the concrete SQLite
// index and blob storage backends so they can be tested and evolved
// independently. Callers outside this package interact only with the app
// ports, not these internal details.
package store

import (
	"context"
	"io"
	"time"

	"github.com/mbogdanowicz/imaginarium/internal/app"
)

// Index abstracts the metadata operations (backed by SQLite). It holds
// account tiers, users, image metadata, active links, and the token
// blacklist. Tokens are primitive strings at this layer.
type Index interface {
	// Links.
	InsertLink(ctx context.Context, link *app.Link) (int64, error)
	LinkByToken(ctx context.Context, token string) (*app.Link, error)
	LinksByImage(ctx context.Context, imageID int64) ([]app.Link, error)
	// TokenInUse checks the shared uniqueness domain: active links plus the
	// blacklist.
	TokenInUse(ctx context.Context, token string) (bool, error)
	// ReclaimLink deletes the link row and inserts the blacklist entry as a
	// single transaction. Returns false when the row was already gone.
	ReclaimLink(ctx context.Context, token string) (bool, error)
	// ExpiredLinkTokens returns tokens whose created_at + expires_in is at or
	// before now.
	ExpiredLinkTokens(ctx context.Context, now time.Time) ([]string, error)

	// Images.
	InsertImage(ctx context.Context, img *app.Image) (int64, error)
	ImageByID(ctx context.Context, id int64) (*app.Image, error)
	ImagesByOwner(ctx context.Context, ownerID int64) ([]app.Image, error)
	// DeleteImage removes the row (cascading to its links) and returns the
	// object key for blob cleanup.
	DeleteImage(ctx context.Context, id int64) (objectKey string, err error)
	// ListObjectKeys returns the object keys of all stored images.
	ListObjectKeys(ctx context.Context) ([]string, error)

	// Accounts.
	InsertUser(ctx context.Context, u *app.User) (int64, error)
	UserByID(ctx context.Context, id int64) (*app.User, error)
	UserByUsername(ctx context.Context, username string) (*app.User, error)
	ListUsers(ctx context.Context) ([]app.User, error)
	TierByID(ctx context.Context, id int64) (*app.Tier, error)
}

// BlobStorage abstracts image byte persistence (filesystem or MinIO).
type BlobStorage interface {
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// List returns all object keys present in storage.
	List(ctx context.Context) ([]string, error)
}
