package onboarding

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"loteria/internal/domain"
	"loteria/internal/ports"
)

// DefaultLangTag is set on every onboarded account.
const DefaultLangTag = "es"

// Result captures non-fatal onboarding outcomes.
type Result struct {
	DisplayName  string
	AvatarCardID int
	// ProfileUpdateErr is set when the profile update failed but onboarding continued.
	ProfileUpdateErr error
	// PreferencesSeeded is false when the user already had stored preferences.
	PreferencesSeeded bool
}

// Service handles post-auth onboarding for new users.
type Service struct {
	accounts    ports.AccountPort
	preferences ports.PreferencesWriter
	rng         *rand.Rand
}

// NewService constructs an onboarding service with required ports.
// accounts/preferences must be non-nil; rng may be nil to use a time-seeded default.
func NewService(accounts ports.AccountPort, preferences ports.PreferencesWriter, rng *rand.Rand) *Service {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{
		accounts:    accounts,
		preferences: preferences,
		rng:         rng,
	}
}

// OnboardNewUser gives a newly created account a friendly name and seeds its
// default preferences once.
// Returns a Result with any non-fatal issues and an error if preferences cannot be stored.
func (s *Service) OnboardNewUser(ctx context.Context, userID string) (Result, error) {
	if s.accounts == nil || s.preferences == nil {
		return Result{}, fmt.Errorf("onboarding service not configured")
	}

	result := Result{DisplayName: s.generateFriendlyName(), AvatarCardID: s.pickAvatar()}
	profile := ports.Profile{
		Username:     result.DisplayName,
		DisplayName:  result.DisplayName,
		AvatarCardID: result.AvatarCardID,
		LangTag:      DefaultLangTag,
	}
	if err := s.accounts.UpdateProfile(ctx, userID, profile); err != nil {
		// Profile updates are best-effort; a taken username only costs the nickname.
		result.ProfileUpdateErr = err
	}

	prefs := ports.DefaultPreferences()
	prefs.DisplayName = result.DisplayName
	seeded, err := s.preferences.SeedPreferences(ctx, userID, prefs)
	if err != nil {
		return result, fmt.Errorf("failed to seed preferences: %w", err)
	}
	result.PreferencesSeeded = seeded

	return result, nil
}

// pickAvatar draws a random catalog card for the account avatar.
func (s *Service) pickAvatar() int {
	return domain.Catalog[s.rng.Intn(len(domain.Catalog))].ID
}

func (s *Service) generateFriendlyName() string {
	nouns := []string{"Gallo", "Catrin", "Sirena", "Venado", "Nopal", "Alacran", "Tecolote", "Garza", "Pajaro", "Rana"}
	adjectives := []string{"Valiente", "Alegre", "Veloz", "Sabio", "Bravo", "Tranquilo", "Fuerte", "Listo", "Audaz", "Feliz"}

	noun := nouns[s.rng.Intn(len(nouns))]
	adj := adjectives[s.rng.Intn(len(adjectives))]
	num := s.rng.Intn(9000) + 1000

	return fmt.Sprintf("%s%s%d", noun, adj, num)
}
