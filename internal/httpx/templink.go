package httpx

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mbogdanowicz/imaginarium/internal/app"
	"github.com/mbogdanowicz/imaginarium/internal/metrics"
)

// templinkResponse is the wire shape for a temporary link.
type templinkResponse struct {
	PK        int64     `json:"pk"`
	Link      string    `json:"link"`
	Image     int64     `json:"image"`
	Created   time.Time `json:"created"`
	ExpiresIn int       `json:"expires_in"`
}

func (h *Handler) templinkJSON(l *app.Link) templinkResponse {
	return templinkResponse{
		PK:        l.ID,
		Link:      h.Links.LinkURL(l.Token),
		Image:     l.ImageID,
		Created:   l.CreatedAt,
		ExpiresIn: l.ExpiresIn,
	}
}

// handleCreateTempLink implements POST /api/image/{pk}/templink/.
func (h *Handler) handleCreateTempLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	imageID, err := strconv.ParseInt(r.PathValue("pk"), 10, 64)
	if err != nil {
		h.writeError(ctx, w, http.StatusNotFound, "not found")
		return
	}
	var body struct {
		ExpiresIn int `json:"expires_in"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1024)).Decode(&body); err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	link, err := h.Links.CreateLink(ctx, identityFrom(ctx), imageID, body.ExpiresIn)
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	h.count(metrics.CounterLinksCreated)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(h.templinkJSON(link))
}

// handleListTempLinks implements GET /api/image/{pk}/templink/. Listing uses
// the same gate as creation.
func (h *Handler) handleListTempLinks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	imageID, err := strconv.ParseInt(r.PathValue("pk"), 10, 64)
	if err != nil {
		h.writeError(ctx, w, http.StatusNotFound, "not found")
		return
	}
	links, err := h.Links.ListLinks(ctx, identityFrom(ctx), imageID)
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	out := make([]templinkResponse, len(links))
	for i := range links {
		out[i] = h.templinkJSON(&links[i])
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// handleResolveTempLink implements GET /api/templink/{token}/. No auth: the
// token is the capability. 200 streams the image, 410 reports a link this
// call observed expired (and reclaimed), 404 everything else.
func (h *Handler) handleResolveTempLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc, img, err := h.Links.Resolve(ctx, r.PathValue("token"))
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	defer rc.Close()
	h.count(metrics.CounterLinksResolved)
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(img.Size, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = io.CopyN(w, rc, img.Size)
}
