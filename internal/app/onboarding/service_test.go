package onboarding

import (
	"context"
	"errors"
	"math/rand"
	"regexp"
	"testing"

	"loteria/internal/domain"
	"loteria/internal/ports"
)

type fakeAccountPort struct {
	updateErr error
	profiles  []ports.Profile
}

func (f *fakeAccountPort) UpdateProfile(ctx context.Context, userID string, profile ports.Profile) error {
	f.profiles = append(f.profiles, profile)
	return f.updateErr
}

type fakePreferencesWriter struct {
	writeErr error
	seeded   bool
	calls    []seedCall
}

type seedCall struct {
	userID string
	prefs  ports.Preferences
}

func (f *fakePreferencesWriter) SeedPreferences(ctx context.Context, userID string, prefs ports.Preferences) (bool, error) {
	f.calls = append(f.calls, seedCall{userID: userID, prefs: prefs})
	if f.writeErr != nil {
		return false, f.writeErr
	}
	return f.seeded, nil
}

func TestOnboardNewUser_SeedsDefaults(t *testing.T) {
	accounts := &fakeAccountPort{}
	prefs := &fakePreferencesWriter{seeded: true}
	service := NewService(accounts, prefs, rand.New(rand.NewSource(1)))

	result, err := service.OnboardNewUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("OnboardNewUser returned error: %v", err)
	}
	if result.ProfileUpdateErr != nil {
		t.Fatalf("Expected no profile update error, got %v", result.ProfileUpdateErr)
	}
	if !result.PreferencesSeeded {
		t.Fatal("Expected preferences to be marked as seeded")
	}
	if !regexp.MustCompile(`^[A-Z][a-z]+[A-Z][a-z]+\d{4}$`).MatchString(result.DisplayName) {
		t.Fatalf("Unexpected display name %q", result.DisplayName)
	}

	if len(prefs.calls) != 1 {
		t.Fatalf("Expected 1 seed call, got %d", len(prefs.calls))
	}
	call := prefs.calls[0]
	if call.userID != "user-1" || !call.prefs.CalledCardFeedbackEnabled || call.prefs.DisplayName != result.DisplayName {
		t.Fatalf("Unexpected seed call %+v", call)
	}
	if len(accounts.profiles) != 1 {
		t.Fatalf("Expected 1 profile update, got %d", len(accounts.profiles))
	}
	profile := accounts.profiles[0]
	if profile.DisplayName != result.DisplayName || profile.Username != result.DisplayName || profile.LangTag != DefaultLangTag {
		t.Fatalf("Unexpected profile %+v", profile)
	}
	if _, ok := domain.CardByID(profile.AvatarCardID); !ok || profile.AvatarCardID != result.AvatarCardID {
		t.Fatalf("Avatar %d is not a catalog card", profile.AvatarCardID)
	}
}

func TestOnboardNewUser_AccountUpdateFailureStillSeeds(t *testing.T) {
	prefs := &fakePreferencesWriter{seeded: true}
	service := NewService(&fakeAccountPort{updateErr: errors.New("update failed")}, prefs, rand.New(rand.NewSource(1)))

	result, err := service.OnboardNewUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("OnboardNewUser returned error: %v", err)
	}
	if result.ProfileUpdateErr == nil {
		t.Fatal("Expected profile update error to be captured")
	}
	if len(prefs.calls) != 1 {
		t.Fatalf("Expected 1 seed call, got %d", len(prefs.calls))
	}
}

func TestOnboardNewUser_SeedFailureReturnsError(t *testing.T) {
	service := NewService(&fakeAccountPort{}, &fakePreferencesWriter{writeErr: errors.New("storage failed")}, rand.New(rand.NewSource(1)))

	if _, err := service.OnboardNewUser(context.Background(), "user-1"); err == nil {
		t.Fatal("Expected error when seeding preferences fails")
	}
}

func TestOnboardNewUser_PreferencesAlreadyPresent(t *testing.T) {
	service := NewService(&fakeAccountPort{}, &fakePreferencesWriter{seeded: false}, rand.New(rand.NewSource(1)))

	result, err := service.OnboardNewUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("OnboardNewUser returned error: %v", err)
	}
	if result.PreferencesSeeded {
		t.Fatal("Expected preferences to be reported as already present")
	}
}

func TestOnboardNewUser_NotConfigured(t *testing.T) {
	if _, err := NewService(nil, nil, nil).OnboardNewUser(context.Background(), "user-1"); err == nil {
		t.Fatal("Expected error for unconfigured service")
	}
}
