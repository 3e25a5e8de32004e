package httpx

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/mbogdanowicz/imaginarium/internal/app"
)

// userResponse is the wire shape for a user record. Email and tier appear in
// both public and private views, matching the original API.
type userResponse struct {
	PK       int64  `json:"pk"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Tier     int64  `json:"account_tier,omitempty"`
}

func userJSON(u *app.User) userResponse {
	return userResponse{PK: u.ID, Username: u.Username, Email: u.Email, Tier: u.TierID}
}

// handleRegister implements POST /api/user/.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&body); err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := h.Accounts.Register(ctx, body.Username, body.Email, body.Password)
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(userJSON(u))
}

// handleLogin implements POST /api/auth/login/.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&body); err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, err := h.Accounts.Login(ctx, body.Username, body.Password)
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Token string `json:"token"`
	}{Token: token})
}

// handleListUsers implements GET /api/user/: public data of all users, for
// authenticated requesters.
func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := h.Accounts.List(ctx, identityFrom(ctx))
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	out := make([]userResponse, len(users))
	for i := range users {
		out[i] = userJSON(&users[i])
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// handleUserDetail implements GET /api/user/{pk}/: private data, the user
// themselves only.
func (h *Handler) handleUserDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.ParseInt(r.PathValue("pk"), 10, 64)
	if err != nil {
		h.writeError(ctx, w, http.StatusNotFound, "not found")
		return
	}
	u, err := h.Accounts.Get(ctx, identityFrom(ctx), id)
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(userJSON(u))
}
