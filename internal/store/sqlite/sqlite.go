// Package sqlite provides a SQLite-backed implementation of the store.Index
// port for persisting account tiers, users, image metadata, temporary links,
// and the token blacklist.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/mbogdanowicz/imaginarium/internal/app"
	"github.com/mbogdanowicz/imaginarium/internal/domain"
	"github.com/mbogdanowicz/imaginarium/internal/store"

	// database/sql SQLite driver
	sqlite3 "github.com/mattn/go-sqlite3"
)

var _ store.Index = (*Index)(nil)

// Index implements store.Index using SQLite (via database/sql). It is safe
// for concurrent use; database/sql manages connection pooling and
// serialization. The reclaim transition relies on SQLite transactions, not
// application locks, so it survives process crashes mid-operation.
type Index struct{ db *sql.DB }

// New constructs an Index, initializing the required schema and seed tiers
// if absent. The connection must have foreign keys enabled (DSN _fk=1).
func New(db *sql.DB) (*Index, error) {
	ix := &Index{db: db}
	if err := ix.init(); err != nil {
		return nil, err
	}
	return ix, nil
}

func (i *Index) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS tiers (
id INTEGER PRIMARY KEY AUTOINCREMENT,
name TEXT NOT NULL UNIQUE,
show_original INTEGER NOT NULL DEFAULT 0,
can_generate_temp_link INTEGER NOT NULL DEFAULT 0,
is_default INTEGER NOT NULL DEFAULT 0,
thumbnail_heights TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS tiers_single_default ON tiers (is_default) WHERE is_default = 1;
CREATE TABLE IF NOT EXISTS users (
id INTEGER PRIMARY KEY AUTOINCREMENT,
username TEXT NOT NULL UNIQUE,
email TEXT NOT NULL,
password_hash TEXT NOT NULL,
tier_id INTEGER NOT NULL REFERENCES tiers(id)
);
CREATE TABLE IF NOT EXISTS images (
id INTEGER PRIMARY KEY AUTOINCREMENT,
owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
object_key TEXT NOT NULL,
content_type TEXT NOT NULL,
size INTEGER NOT NULL,
created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS links (
id INTEGER PRIMARY KEY AUTOINCREMENT,
token TEXT NOT NULL UNIQUE,
image_id INTEGER NOT NULL REFERENCES images(id) ON DELETE CASCADE,
owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
created_at INTEGER NOT NULL,
expires_in INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS links_expiry ON links ((created_at + expires_in));
CREATE TABLE IF NOT EXISTS templink_blacklist (
token TEXT PRIMARY KEY
);`
	if _, err := i.db.Exec(schema); err != nil {
		return err
	}
	return i.seedTiers()
}

// seedTiers inserts the built-in tiers on first run. Name uniqueness makes
// this idempotent across restarts.
func (i *Index) seedTiers() error {
	const q = `INSERT OR IGNORE INTO tiers (name, show_original, can_generate_temp_link, is_default, thumbnail_heights) VALUES
('Basic', 0, 0, 1, '200'),
('Premium', 1, 0, 0, '200,400'),
('Enterprise', 1, 1, 0, '200,400')`
	_, err := i.db.Exec(q)
	return err
}

// --- Links ---

// InsertLink stores a new link row and returns its ID.
func (i *Index) InsertLink(ctx context.Context, link *app.Link) (int64, error) {
	const q = `INSERT INTO links (token, image_id, owner_id, created_at, expires_in) VALUES (?,?,?,?,?)`
	res, err := i.db.ExecContext(ctx, q, link.Token.String(), link.ImageID, link.OwnerID, link.CreatedAt.Unix(), link.ExpiresIn)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LinkByToken returns the active link row for token. The blacklist is never
// consulted here; reclaimed and never-issued tokens are both ErrNotFound.
func (i *Index) LinkByToken(ctx context.Context, token string) (*app.Link, error) {
	const q = `SELECT id, token, image_id, owner_id, created_at, expires_in FROM links WHERE token=?`
	return scanLink(i.db.QueryRowContext(ctx, q, token))
}

// LinksByImage returns all active links for an image, oldest first.
func (i *Index) LinksByImage(ctx context.Context, imageID int64) ([]app.Link, error) {
	const q = `SELECT id, token, image_id, owner_id, created_at, expires_in FROM links WHERE image_id=? ORDER BY id`
	rows, err := i.db.QueryContext(ctx, q, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var links []app.Link
	for rows.Next() {
		var (
			l           app.Link
			tok         string
			createdUnix int64
		)
		if err = rows.Scan(&l.ID, &tok, &l.ImageID, &l.OwnerID, &createdUnix, &l.ExpiresIn); err != nil {
			return nil, err
		}
		l.Token = domain.Token(tok)
		l.CreatedAt = time.Unix(createdUnix, 0).UTC()
		links = append(links, l)
	}
	return links, rows.Err()
}

// TokenInUse reports membership in the combined uniqueness domain of active
// links and the blacklist.
func (i *Index) TokenInUse(ctx context.Context, token string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM links WHERE token=?) OR EXISTS(SELECT 1 FROM templink_blacklist WHERE token=?)`
	var inUse bool
	if err := i.db.QueryRowContext(ctx, q, token, token).Scan(&inUse); err != nil {
		return false, err
	}
	return inUse, nil
}

// ReclaimLink deletes the link row and inserts the blacklist entry as one
// transaction. Whichever racing caller deletes the row performs the
// transition exactly once; every other caller sees zero rows affected and
// returns false without error. The blacklist insert ignores duplicates so a
// replayed token can never surface a constraint failure.
func (i *Index) ReclaimLink(ctx context.Context, token string) (reclaimed bool, err error) {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM links WHERE token=?`, token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Already gone: nothing to transition, nothing to commit.
		err = tx.Rollback()
		return false, err
	}
	if _, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO templink_blacklist (token) VALUES (?)`, token); err != nil {
		return false, err
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ExpiredLinkTokens selects tokens whose expiry instant is at or before now.
// The predicate matches the links_expiry expression index, avoiding a full
// table scan as link volume grows.
func (i *Index) ExpiredLinkTokens(ctx context.Context, now time.Time) ([]string, error) {
	const q = `SELECT token FROM links WHERE (created_at + expires_in) <= ?`
	rows, err := i.db.QueryContext(ctx, q, now.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tokens []string
	for rows.Next() {
		var t string
		if err = rows.Scan(&t); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// --- Images ---

// InsertImage stores a new image row and returns its ID.
func (i *Index) InsertImage(ctx context.Context, img *app.Image) (int64, error) {
	const q = `INSERT INTO images (owner_id, object_key, content_type, size, created_at) VALUES (?,?,?,?,?)`
	res, err := i.db.ExecContext(ctx, q, img.OwnerID, img.ObjectKey, img.ContentType, img.Size, img.CreatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ImageByID returns image metadata or app.ErrNotFound.
func (i *Index) ImageByID(ctx context.Context, id int64) (*app.Image, error) {
	const q = `SELECT id, owner_id, object_key, content_type, size, created_at FROM images WHERE id=?`
	return scanImage(i.db.QueryRowContext(ctx, q, id))
}

// ImagesByOwner returns the owner's images, oldest first.
func (i *Index) ImagesByOwner(ctx context.Context, ownerID int64) ([]app.Image, error) {
	const q = `SELECT id, owner_id, object_key, content_type, size, created_at FROM images WHERE owner_id=? ORDER BY id`
	rows, err := i.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var imgs []app.Image
	for rows.Next() {
		var (
			img         app.Image
			createdUnix int64
		)
		if err = rows.Scan(&img.ID, &img.OwnerID, &img.ObjectKey, &img.ContentType, &img.Size, &createdUnix); err != nil {
			return nil, err
		}
		img.CreatedAt = time.Unix(createdUnix, 0).UTC()
		imgs = append(imgs, img)
	}
	return imgs, rows.Err()
}

// DeleteImage removes the row and returns the object key for blob cleanup.
// The image's links cascade away via foreign keys; their tokens are not
// blacklisted and simply cease to resolve.
func (i *Index) DeleteImage(ctx context.Context, id int64) (string, error) {
	const q = `DELETE FROM images WHERE id=? RETURNING object_key`
	var key string
	if err := i.db.QueryRowContext(ctx, q, id).Scan(&key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", app.ErrNotFound
		}
		return "", err
	}
	return key, nil
}

// ListObjectKeys returns the object keys of all stored images.
func (i *Index) ListObjectKeys(ctx context.Context) ([]string, error) {
	const q = `SELECT object_key FROM images`
	rows, err := i.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err = rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// --- Accounts ---

// InsertUser stores a new user, defaulting a zero TierID to the default tier.
func (i *Index) InsertUser(ctx context.Context, u *app.User) (int64, error) {
	const q = `INSERT INTO users (username, email, password_hash, tier_id)
VALUES (?,?,?, COALESCE(NULLIF(?,0), (SELECT id FROM tiers WHERE is_default=1)))`
	res, err := i.db.ExecContext(ctx, q, u.Username, u.Email, u.PasswordHash, u.TierID)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, app.ErrUsernameTaken
		}
		return 0, err
	}
	return res.LastInsertId()
}

// UserByID returns the user or app.ErrNotFound.
func (i *Index) UserByID(ctx context.Context, id int64) (*app.User, error) {
	const q = `SELECT id, username, email, password_hash, tier_id FROM users WHERE id=?`
	return scanUser(i.db.QueryRowContext(ctx, q, id))
}

// UserByUsername returns the user or app.ErrNotFound.
func (i *Index) UserByUsername(ctx context.Context, username string) (*app.User, error) {
	const q = `SELECT id, username, email, password_hash, tier_id FROM users WHERE username=?`
	return scanUser(i.db.QueryRowContext(ctx, q, username))
}

// ListUsers returns all users, oldest first.
func (i *Index) ListUsers(ctx context.Context) ([]app.User, error) {
	const q = `SELECT id, username, email, password_hash, tier_id FROM users ORDER BY id`
	rows, err := i.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []app.User
	for rows.Next() {
		var u app.User
		if err = rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.TierID); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// TierByID returns the tier or app.ErrNotFound.
func (i *Index) TierByID(ctx context.Context, id int64) (*app.Tier, error) {
	const q = `SELECT id, name, show_original, can_generate_temp_link, is_default, thumbnail_heights FROM tiers WHERE id=?`
	var (
		t       app.Tier
		heights string
	)
	err := i.db.QueryRowContext(ctx, q, id).Scan(&t.ID, &t.Name, &t.ShowOriginal, &t.CanGenerateTempLink, &t.Default, &heights)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, app.ErrNotFound
		}
		return nil, err
	}
	t.ThumbnailHeights = splitHeights(heights)
	return &t, nil
}

// --- helpers ---

type rowScanner interface{ Scan(dest ...any) error }

func scanLink(row rowScanner) (*app.Link, error) {
	var (
		l           app.Link
		tok         string
		createdUnix int64
	)
	if err := row.Scan(&l.ID, &tok, &l.ImageID, &l.OwnerID, &createdUnix, &l.ExpiresIn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, app.ErrNotFound
		}
		return nil, err
	}
	l.Token = domain.Token(tok)
	l.CreatedAt = time.Unix(createdUnix, 0).UTC()
	return &l, nil
}

func scanImage(row rowScanner) (*app.Image, error) {
	var (
		img         app.Image
		createdUnix int64
	)
	if err := row.Scan(&img.ID, &img.OwnerID, &img.ObjectKey, &img.ContentType, &img.Size, &createdUnix); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, app.ErrNotFound
		}
		return nil, err
	}
	img.CreatedAt = time.Unix(createdUnix, 0).UTC()
	return &img, nil
}

func scanUser(row rowScanner) (*app.User, error) {
	var u app.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.TierID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, app.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// splitHeights parses the comma-joined thumbnail heights column.
func splitHeights(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	heights := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		heights = append(heights, n)
	}
	return heights
}
