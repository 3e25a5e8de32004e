package app

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// allowedTypes maps acceptable upload content types to object key extensions.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// ImageDetail is the tier-trimmed representation of an image. Fields the
// owner's tier does not grant are zeroed before the HTTP layer renders them.
type ImageDetail struct {
	Image            *Image
	ShowOriginal     bool
	ThumbnailHeights []int
	CanTempLink      bool
}

// ImageService orchestrates image upload, listing, tier-trimmed detail, and
// deletion.
type ImageService struct {
	Images   ImageStore
	Accounts AccountStore
	Clock    Clock
	MaxBytes int64
}

// Upload stores a new image owned by the requester. Only JPEG and PNG are
// accepted; size must be positive and within the configured maximum.
func (s *ImageService) Upload(ctx context.Context, requester Identity, contentType string, r io.Reader, size int64) (*Image, error) {
	if !requester.Authenticated() {
		return nil, ErrPermissionDenied
	}
	ext, ok := allowedTypes[contentType]
	if !ok {
		return nil, ErrUnsupportedType
	}
	if size <= 0 || size > s.MaxBytes {
		return nil, ErrSizeExceeded
	}
	img := &Image{
		OwnerID:     requester.UserID,
		ObjectKey:   uuid.NewString() + ext,
		ContentType: contentType,
		Size:        size,
		CreatedAt:   s.Clock.Now().UTC(),
	}
	if err := s.Images.Save(ctx, img, r); err != nil {
		return nil, err
	}
	return img, nil
}

// List returns the requester's images. Anonymous requesters see nothing.
func (s *ImageService) List(ctx context.Context, requester Identity) ([]Image, error) {
	if !requester.Authenticated() {
		return nil, ErrPermissionDenied
	}
	return s.Images.ListByOwner(ctx, requester.UserID)
}

// Detail returns the image trimmed according to the owner's tier: the
// original file is exposed only when the tier allows it, thumbnail size
// descriptors come from the tier, and the templink collection is advertised
// only to link-capable tiers. Owner only.
func (s *ImageService) Detail(ctx context.Context, requester Identity, id int64) (*ImageDetail, error) {
	img, err := s.get(ctx, requester, id)
	if err != nil {
		return nil, err
	}
	user, err := s.Accounts.UserByID(ctx, requester.UserID)
	if err != nil {
		return nil, err
	}
	tier, err := s.Accounts.TierByID(ctx, user.TierID)
	if err != nil {
		return nil, err
	}
	return &ImageDetail{
		Image:            img,
		ShowOriginal:     tier.ShowOriginal,
		ThumbnailHeights: tier.ThumbnailHeights,
		CanTempLink:      tier.CanGenerateTempLink,
	}, nil
}

// Open streams the original file to its owner. Gated by the tier's
// show-original capability in addition to ownership.
func (s *ImageService) Open(ctx context.Context, requester Identity, id int64) (io.ReadCloser, *Image, error) {
	detail, err := s.Detail(ctx, requester, id)
	if err != nil {
		return nil, nil, err
	}
	if !detail.ShowOriginal {
		return nil, nil, ErrPermissionDenied
	}
	return s.Images.Open(ctx, id)
}

// Delete removes an image. Its links are cascaded away by the store without
// blacklisting their tokens; they simply cease to resolve. Owner only.
func (s *ImageService) Delete(ctx context.Context, requester Identity, id int64) error {
	if _, err := s.get(ctx, requester, id); err != nil {
		return err
	}
	return s.Images.Delete(ctx, id)
}

// get fetches the image and enforces ownership.
func (s *ImageService) get(ctx context.Context, requester Identity, id int64) (*Image, error) {
	if !requester.Authenticated() {
		return nil, ErrPermissionDenied
	}
	img, err := s.Images.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if img.OwnerID != requester.UserID {
		return nil, ErrPermissionDenied
	}
	return img, nil
}
