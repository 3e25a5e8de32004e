// Package app defines the application layer "ports" (interfaces) and simple
// data contracts that the core use-cases of Imaginarium depend upon. It
// follows a hexagonal (ports & adapters) design: this package declares what
// the core needs, while adapter packages (SQLite+blob storage, HTTP layer,
// janitor jobs) provide concrete implementations. No I/O, SQL, or network
// concerns belong here.
package app

import (
	"context"
	"io"
	"time"

	"github.com/mbogdanowicz/imaginarium/internal/domain"
)

// Identity is the authenticated requester of an operation. The zero value is
// anonymous.
type Identity struct {
	UserID int64
}

// Authenticated reports whether the identity belongs to a logged-in user.
func (i Identity) Authenticated() bool { return i.UserID != 0 }

// Clock abstracts time to enable deterministic testing of TTL / expiry logic.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time
}

// Tier describes an account tier and the capabilities it grants.
type Tier struct {
	ID                  int64
	Name                string
	ShowOriginal        bool
	CanGenerateTempLink bool
	Default             bool
	ThumbnailHeights    []int
}

// User is an account record. PasswordHash is a bcrypt digest and never leaves
// the application layer.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	TierID       int64
}

// Image is the metadata record for an uploaded image. The bytes live in blob
// storage under ObjectKey.
type Image struct {
	ID          int64
	OwnerID     int64
	ObjectKey   string
	ContentType string
	Size        int64
	CreatedAt   time.Time
}

// Link is one active temporary link. CreatedAt and ExpiresIn are immutable
// after creation; expiry is always derived from them, never stored.
type Link struct {
	ID        int64
	Token     domain.Token
	ImageID   int64
	OwnerID   int64
	CreatedAt time.Time
	ExpiresIn int // seconds
}

// LinkStore is the storage port for temporary links and the token blacklist.
// Implementations must guarantee that Reclaim is atomic per token: the link
// row is deleted and the blacklist entry inserted as one unit, and exactly
// one of any number of racing callers observes the transition.
type LinkStore interface {
	// Insert persists a new link and returns its assigned ID.
	Insert(ctx context.Context, link *Link) (int64, error)

	// FindByToken returns the active link for token, or ErrNotFound. It never
	// consults the blacklist; a reclaimed token is indistinguishable from one
	// that never existed.
	FindByToken(ctx context.Context, token domain.Token) (*Link, error)

	// ListByImage returns all active links for an image, oldest first.
	ListByImage(ctx context.Context, imageID int64) ([]Link, error)

	// TokenInUse reports whether token exists among active links or the
	// blacklist. Token issuance must re-check candidates here rather than
	// trust entropy alone.
	TokenInUse(ctx context.Context, token domain.Token) (bool, error)

	// Reclaim atomically deletes the link row and inserts a blacklist entry
	// for token. It returns true if this call performed the transition and
	// false if the row was already gone (a racing resolve or sweep won).
	// The blacklist insert is idempotent; a duplicate is never an error.
	Reclaim(ctx context.Context, token domain.Token) (bool, error)

	// ExpiredTokens returns tokens of links whose expiry instant is at or
	// before now. Candidates only: callers must still Reclaim each one and
	// tolerate losing the race.
	ExpiredTokens(ctx context.Context, now time.Time) ([]domain.Token, error)
}

// ImageStore is the storage port for image metadata and bytes. Metadata and
// blob are coordinated by the implementation; callers see one port.
type ImageStore interface {
	// Save persists the image bytes and metadata, assigning img.ID. 'r'
	// streams exactly img.Size bytes.
	Save(ctx context.Context, img *Image, r io.Reader) error

	// Get returns image metadata or ErrNotFound.
	Get(ctx context.Context, id int64) (*Image, error)

	// ListByOwner returns all images owned by ownerID, oldest first.
	ListByOwner(ctx context.Context, ownerID int64) ([]Image, error)

	// Open returns a reader over the stored bytes together with the metadata.
	Open(ctx context.Context, id int64) (io.ReadCloser, *Image, error)

	// Delete removes the metadata row (cascading to the image's links,
	// without blacklisting their tokens) and best-effort deletes the blob.
	Delete(ctx context.Context, id int64) error
}

// AccountStore is the storage port for users and account tiers.
type AccountStore interface {
	// CreateUser persists a new user and returns its assigned ID. A zero
	// TierID is replaced with the default tier.
	CreateUser(ctx context.Context, u *User) (int64, error)

	// UserByID returns the user or ErrNotFound.
	UserByID(ctx context.Context, id int64) (*User, error)

	// UserByUsername returns the user or ErrNotFound.
	UserByUsername(ctx context.Context, username string) (*User, error)

	// ListUsers returns all users, oldest first.
	ListUsers(ctx context.Context) ([]User, error)

	// TierByID returns the tier or ErrNotFound.
	TierByID(ctx context.Context, id int64) (*Tier, error)
}
