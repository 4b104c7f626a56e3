package ports

import (
	"context"
	"encoding/json"
	"fmt"

	"loteria/internal/domain"
)

// Storage location of a user's preferences object.
const (
	PreferencesCollection = "user_preferences"
	PreferencesKey        = "settings"
)

// Preferences are per-user settings read at session start. The match core
// never writes them.
type Preferences struct {
	// CalledCardFeedbackEnabled toggles the announcement of each drawn card.
	CalledCardFeedbackEnabled bool                 `json:"calledCardFeedbackEnabled"`
	DisplayName               string               `json:"displayName,omitempty"`
	TargetWin                 *domain.WinCondition `json:"targetWin,omitempty"`
}

// DefaultPreferences is what a new account starts with.
func DefaultPreferences() Preferences {
	return Preferences{CalledCardFeedbackEnabled: true}
}

type rawPreferences struct {
	CalledCardFeedbackEnabled *bool           `json:"calledCardFeedbackEnabled"`
	DisplayName               string          `json:"displayName"`
	TargetWin                 json.RawMessage `json:"targetWin"`
}

// DecodePreferences parses a stored preferences object. Missing fields take
// their defaults and an unrecognised win condition is dropped rather than
// failing the whole document. Empty input yields the defaults.
func DecodePreferences(data []byte) (Preferences, error) {
	prefs := DefaultPreferences()
	if len(data) == 0 {
		return prefs, nil
	}

	var raw rawPreferences
	if err := json.Unmarshal(data, &raw); err != nil {
		return prefs, fmt.Errorf("decode preferences: %w", err)
	}
	if raw.CalledCardFeedbackEnabled != nil {
		prefs.CalledCardFeedbackEnabled = *raw.CalledCardFeedbackEnabled
	}
	prefs.DisplayName = raw.DisplayName
	if len(raw.TargetWin) > 0 {
		if wc, err := domain.ParseWinCondition(raw.TargetWin); err == nil {
			prefs.TargetWin = &wc
		}
	}
	return prefs, nil
}

// PreferencesReader loads a user's stored preferences.
type PreferencesReader interface {
	// LoadPreferences returns the defaults when nothing is stored.
	LoadPreferences(ctx context.Context, userID string) (Preferences, error)
}

// PreferencesWriter seeds preferences for new accounts.
type PreferencesWriter interface {
	// SeedPreferences writes prefs only if the user has none yet.
	// Returns written=false when preferences already existed.
	SeedPreferences(ctx context.Context, userID string, prefs Preferences) (bool, error)
}
