package ports

import "context"

// Profile is the public face of an account in lobbies and on boards.
type Profile struct {
	Username    string
	DisplayName string
	// AvatarCardID picks the catalog card shown as the player's avatar.
	// Zero leaves the avatar unchanged.
	AvatarCardID int
	LangTag      string
}

// AccountPort updates account profiles.
type AccountPort interface {
	UpdateProfile(ctx context.Context, userID string, profile Profile) error
}
