package nakama

import (
	"context"
	"fmt"

	"github.com/heroiclabs/nakama-common/runtime"

	"loteria/internal/ports"
)

// AvatarURLPrefix marks avatar urls that name a catalog card instead of an image.
const AvatarURLPrefix = "card:"

// NakamaAccountAdapter implements ports.AccountPort with Nakama's account API.
type NakamaAccountAdapter struct {
	nk runtime.NakamaModule
}

func NewNakamaAccountAdapter(nk runtime.NakamaModule) *NakamaAccountAdapter {
	return &NakamaAccountAdapter{nk: nk}
}

// UpdateProfile writes username, display name, language and card avatar.
// Empty fields are left as stored.
func (a *NakamaAccountAdapter) UpdateProfile(ctx context.Context, userID string, profile ports.Profile) error {
	avatar := ""
	if profile.AvatarCardID > 0 {
		avatar = fmt.Sprintf("%s%d", AvatarURLPrefix, profile.AvatarCardID)
	}
	if err := a.nk.AccountUpdateId(ctx, userID, profile.Username, nil, profile.DisplayName, "", "", profile.LangTag, avatar); err != nil {
		return fmt.Errorf("failed to update account %s: %w", userID, err)
	}
	return nil
}

var _ ports.AccountPort = (*NakamaAccountAdapter)(nil)
