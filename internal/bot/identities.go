package bot

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// IDPrefix marks participant ids that belong to simulated opponents.
const IDPrefix = "bot-"

// Identity is one simulated opponent profile.
type Identity struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarIndex int    `json:"avatar_index"`
}

// Name returns the display name, falling back to the username.
func (i Identity) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Username
}

var defaultIdentities = []Identity{
	{Username: "lupe", DisplayName: "Doña Lupe", AvatarIndex: 0},
	{Username: "chuy", DisplayName: "Don Chuy", AvatarIndex: 1},
	{Username: "rosa", DisplayName: "Tía Rosa", AvatarIndex: 2},
	{Username: "profe", DisplayName: "El Profe", AvatarIndex: 3},
	{Username: "nena", DisplayName: "La Nena", AvatarIndex: 4},
	{Username: "compadre", DisplayName: "El Compadre", AvatarIndex: 5},
}

// Roster is the fixed pool of names dealt to simulated opponents.
type Roster struct {
	identities []Identity
}

// DefaultRoster returns the built-in pool.
func DefaultRoster() *Roster {
	return &Roster{identities: append([]Identity(nil), defaultIdentities...)}
}

// LoadRoster reads a roster from a JSON file holding an array of identities.
// An empty path returns the built-in pool.
func LoadRoster(path string) (*Roster, error) {
	if path == "" {
		return DefaultRoster(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bot identities: %w", err)
	}
	return ParseRoster(data)
}

// ParseRoster decodes a JSON array of identities. Entries without any name are skipped.
func ParseRoster(data []byte) (*Roster, error) {
	var raw []Identity
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bot identities: %w", err)
	}
	r := &Roster{}
	for _, identity := range raw {
		if identity.Name() == "" {
			continue
		}
		r.identities = append(r.identities, identity)
	}
	if len(r.identities) == 0 {
		return nil, fmt.Errorf("bot identities: no usable entries")
	}
	return r, nil
}

// Len returns the pool size.
func (r *Roster) Len() int {
	return len(r.identities)
}

// Identity returns an identity by index (mod pool size).
func (r *Roster) Identity(index int) Identity {
	if r == nil || len(r.identities) == 0 {
		return Identity{DisplayName: fmt.Sprintf("Jugador %d", index+1)}
	}
	if index < 0 {
		index = -index
	}
	return r.identities[index%len(r.identities)]
}

// Names returns n display names cycling through the pool.
func (r *Roster) Names(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = r.Identity(i).Name()
	}
	return names
}

// NewID returns a fresh simulated-opponent id.
func NewID() string {
	return IDPrefix + uuid.NewString()
}

// IsBot reports whether the given participant id belongs to a simulated opponent.
func IsBot(id string) bool {
	return strings.HasPrefix(id, IDPrefix)
}
