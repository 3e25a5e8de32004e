package httpx

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mbogdanowicz/imaginarium/internal/app"
	"github.com/mbogdanowicz/imaginarium/internal/metrics"
)

// imageResponse is the wire shape for an image list entry.
type imageResponse struct {
	PK      int64     `json:"pk"`
	URL     string    `json:"url"`
	Created time.Time `json:"created"`
}

func imageJSON(img *app.Image) imageResponse {
	return imageResponse{
		PK:      img.ID,
		URL:     fmt.Sprintf("/api/image/%d/", img.ID),
		Created: img.CreatedAt,
	}
}

// handleUploadImage implements POST /api/image/ (multipart form, field
// "image").
func (h *Handler) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.MaxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxBody+4096) // headroom for multipart framing
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "multipart field 'image' required")
		return
	}
	defer file.Close()
	img, err := h.Images.Upload(ctx, identityFrom(ctx), header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	h.count(metrics.CounterImagesUploaded)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(imageJSON(img))
}

// handleListImages implements GET /api/image/: the requester's own images.
func (h *Handler) handleListImages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	imgs, err := h.Images.List(ctx, identityFrom(ctx))
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	out := make([]imageResponse, len(imgs))
	for i := range imgs {
		out[i] = imageJSON(&imgs[i])
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// handleImageDetail implements GET /api/image/{pk}/. The representation is
// trimmed by the owner's account tier: the original file URL appears only
// when the tier exposes originals, thumbnail descriptors come from the tier,
// and the templink collection URL appears only for link-capable tiers.
func (h *Handler) handleImageDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.ParseInt(r.PathValue("pk"), 10, 64)
	if err != nil {
		h.writeError(ctx, w, http.StatusNotFound, "not found")
		return
	}
	detail, err := h.Images.Detail(ctx, identityFrom(ctx), id)
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	out := map[string]any{
		"pk":      detail.Image.ID,
		"created": detail.Image.CreatedAt,
	}
	if detail.ShowOriginal {
		out["image"] = fmt.Sprintf("/api/image/%d/file/", detail.Image.ID)
	}
	if len(detail.ThumbnailHeights) > 0 {
		out["thumbnail_heights"] = detail.ThumbnailHeights
	}
	if detail.CanTempLink {
		out["templink"] = fmt.Sprintf("/api/image/%d/templink/", detail.Image.ID)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// handleImageFile implements GET /api/image/{pk}/file/: streams the original
// to its owner when the tier allows originals.
func (h *Handler) handleImageFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.ParseInt(r.PathValue("pk"), 10, 64)
	if err != nil {
		h.writeError(ctx, w, http.StatusNotFound, "not found")
		return
	}
	rc, img, err := h.Images.Open(ctx, identityFrom(ctx), id)
	if err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(img.Size, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = io.CopyN(w, rc, img.Size)
}

// handleDeleteImage implements DELETE /api/image/{pk}/.
func (h *Handler) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.ParseInt(r.PathValue("pk"), 10, 64)
	if err != nil {
		h.writeError(ctx, w, http.StatusNotFound, "not found")
		return
	}
	if err := h.Images.Delete(ctx, identityFrom(ctx), id); err != nil {
		h.mapServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
