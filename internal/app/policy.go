package app

import "context"

// canManageLinks is the templink access policy: the requester must be
// authenticated, must own the image, and must belong to a tier with the
// temporary-link capability. All three must hold. Denials are uniform
// (ErrPermissionDenied) regardless of which condition failed; the sub-cause
// is logged for operators only.
func (s *Service) canManageLinks(ctx context.Context, requester Identity, img *Image) error {
	if !requester.Authenticated() {
		s.log().Info("templink access denied", "reason", "anonymous")
		return ErrPermissionDenied
	}
	if img.OwnerID != requester.UserID {
		s.log().Info("templink access denied", "reason", "not_owner", "user", requester.UserID, "image", img.ID)
		return ErrPermissionDenied
	}
	user, err := s.Accounts.UserByID(ctx, requester.UserID)
	if err != nil {
		return err
	}
	tier, err := s.Accounts.TierByID(ctx, user.TierID)
	if err != nil {
		return err
	}
	if !tier.CanGenerateTempLink {
		s.log().Info("templink access denied", "reason", "tier_forbids", "user", requester.UserID, "tier", tier.Name)
		return ErrPermissionDenied
	}
	return nil
}
