package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"

	"loteria/internal/ports"
)

// PreferencesStorage is the subset of runtime.NakamaModule the adapter uses.
type PreferencesStorage interface {
	StorageRead(ctx context.Context, reads []*runtime.StorageRead) ([]*api.StorageObject, error)
	StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error)
}

// NakamaPreferencesAdapter stores user preferences in Nakama storage.
type NakamaPreferencesAdapter struct {
	storage PreferencesStorage
}

// NewNakamaPreferencesAdapter creates a new preferences adapter.
func NewNakamaPreferencesAdapter(storage PreferencesStorage) *NakamaPreferencesAdapter {
	return &NakamaPreferencesAdapter{storage: storage}
}

// SeedPreferences writes prefs only when the user has no preferences object.
// The owner may read and overwrite it afterwards.
func (a *NakamaPreferencesAdapter) SeedPreferences(ctx context.Context, userID string, prefs ports.Preferences) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("userID is required")
	}
	value, err := json.Marshal(prefs)
	if err != nil {
		return false, fmt.Errorf("failed to marshal preferences: %w", err)
	}

	_, err = a.storage.StorageWrite(ctx, []*runtime.StorageWrite{
		{
			Collection:      ports.PreferencesCollection,
			Key:             ports.PreferencesKey,
			UserID:          userID,
			Value:           string(value),
			Version:         "*",
			PermissionRead:  runtime.STORAGE_PERMISSION_OWNER_READ,
			PermissionWrite: runtime.STORAGE_PERMISSION_OWNER_WRITE,
		},
	})
	if err != nil {
		if errors.Is(err, runtime.ErrStorageRejectedVersion) {
			return false, nil
		}
		return false, fmt.Errorf("failed to seed preferences: %w", err)
	}
	return true, nil
}

// LoadPreferences reads the stored preferences, or the defaults when none
// exist.
func (a *NakamaPreferencesAdapter) LoadPreferences(ctx context.Context, userID string) (ports.Preferences, error) {
	objects, err := a.storage.StorageRead(ctx, []*runtime.StorageRead{
		{Collection: ports.PreferencesCollection, Key: ports.PreferencesKey, UserID: userID},
	})
	if err != nil {
		return ports.DefaultPreferences(), fmt.Errorf("failed to read preferences: %w", err)
	}
	if len(objects) == 0 {
		return ports.DefaultPreferences(), nil
	}
	return ports.DecodePreferences([]byte(objects[0].GetValue()))
}

var (
	_ ports.PreferencesReader = (*NakamaPreferencesAdapter)(nil)
	_ ports.PreferencesWriter = (*NakamaPreferencesAdapter)(nil)
)
