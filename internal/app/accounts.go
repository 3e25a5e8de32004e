package app

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AccountService handles registration, credential checks, and access-token
// issuance. Access tokens are HS256 JWTs carrying the user ID as subject.
type AccountService struct {
	Accounts  AccountStore
	Clock     Clock
	JWTSecret []byte
	TokenTTL  time.Duration
}

// Register creates a new user on the default tier with a bcrypt-hashed
// password.
func (s *AccountService) Register(ctx context.Context, username, email, password string) (*User, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &User{Username: username, Email: email, PasswordHash: string(hash)}
	id, err := s.Accounts.CreateUser(ctx, u)
	if err != nil {
		return nil, err
	}
	u.ID = id
	u.PasswordHash = ""
	return u, nil
}

// Login verifies credentials and returns a signed access token. Unknown
// usernames and wrong passwords are indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, username, password string) (string, error) {
	u, err := s.Accounts.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}
	now := s.Clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(u.ID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.TokenTTL)),
		Issuer:    "imaginarium",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.JWTSecret)
}

// Verify parses and validates an access token, returning the identity it
// carries. Any parse or signature failure yields ErrInvalidCredentials.
func (s *AccountService) Verify(tokenString string) (Identity, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredentials
		}
		return s.JWTSecret, nil
	}, jwt.WithTimeFunc(s.Clock.Now))
	if err != nil || !tok.Valid {
		return Identity{}, ErrInvalidCredentials
	}
	claims, ok := tok.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return Identity{}, ErrInvalidCredentials
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{UserID: id}, nil
}

// Get returns a user's private record. Users may only read themselves.
func (s *AccountService) Get(ctx context.Context, requester Identity, id int64) (*User, error) {
	if !requester.Authenticated() || requester.UserID != id {
		return nil, ErrPermissionDenied
	}
	u, err := s.Accounts.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = ""
	return u, nil
}

// List returns all users with public fields only. Requires authentication.
func (s *AccountService) List(ctx context.Context, requester Identity) ([]User, error) {
	if !requester.Authenticated() {
		return nil, ErrPermissionDenied
	}
	users, err := s.Accounts.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}
