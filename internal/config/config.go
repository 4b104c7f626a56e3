// Package config loads the game configuration shared by the CLI and the
// Nakama runtime module.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"loteria/internal/app"
	"loteria/internal/domain"
)

// EnvPrefix namespaces every configuration key read from an environment map.
const EnvPrefix = "loteria_"

var ErrInvalidConfig = errors.New("invalid game config")

// NakamaConfig locates the Nakama server used for online play.
type NakamaConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	ServerKey string `json:"server_key"`
	UseSSL    bool   `json:"use_ssl"`
	// RelayModule selects matches created through the server-side relay
	// module instead of plain relayed matches.
	RelayModule bool `json:"relay_module"`
}

// GameConfig holds every tunable of a match.
type GameConfig struct {
	MaxPlayers         int                  `json:"max_players"`
	MinPlayers         int                  `json:"min_players"`
	DrawIntervalMs     int                  `json:"draw_interval_ms"`
	ReactionDelayMs    int                  `json:"reaction_delay_ms"`
	SimulatedOpponents int                  `json:"simulated_opponents"`
	TargetWin          *domain.WinCondition `json:"target_win,omitempty"`
	BotIdentitiesPath  string               `json:"bot_identities_path"`
	Nakama             NakamaConfig         `json:"nakama"`
}

// Default returns the built-in configuration.
func Default() *GameConfig {
	return &GameConfig{
		MaxPlayers:         app.DefaultMaxPlayers,
		MinPlayers:         app.MinPlayersToStartGame,
		DrawIntervalMs:     app.DefaultDrawIntervalMs,
		ReactionDelayMs:    int(app.DefaultReactionDelay / time.Millisecond),
		SimulatedOpponents: app.DefaultSimulatedOpponents,
		Nakama: NakamaConfig{
			Host:      "127.0.0.1",
			Port:      7350,
			ServerKey: "defaultkey",
		},
	}
}

// Load reads a JSON config file over the defaults. An empty path yields the
// defaults.
func Load(path string) (*GameConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read game config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from a map of lower-case keys such as
// "loteria_max_players". Nakama passes its runtime env in this shape.
func (c *GameConfig) ApplyEnv(env map[string]string) error {
	ints := map[string]*int{
		"max_players":         &c.MaxPlayers,
		"min_players":         &c.MinPlayers,
		"draw_interval_ms":    &c.DrawIntervalMs,
		"reaction_delay_ms":   &c.ReactionDelayMs,
		"simulated_opponents": &c.SimulatedOpponents,
		"nakama_port":         &c.Nakama.Port,
	}
	strs := map[string]*string{
		"bot_identities_path": &c.BotIdentitiesPath,
		"nakama_host":         &c.Nakama.Host,
		"nakama_server_key":   &c.Nakama.ServerKey,
	}
	bools := map[string]*bool{
		"nakama_use_ssl":      &c.Nakama.UseSSL,
		"nakama_relay_module": &c.Nakama.RelayModule,
	}

	for key, dst := range ints {
		if v, ok := env[EnvPrefix+key]; ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%w: %s%s: %v", ErrInvalidConfig, EnvPrefix, key, err)
			}
			*dst = n
		}
	}
	for key, dst := range strs {
		if v, ok := env[EnvPrefix+key]; ok {
			*dst = v
		}
	}
	for key, dst := range bools {
		if v, ok := env[EnvPrefix+key]; ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%w: %s%s: %v", ErrInvalidConfig, EnvPrefix, key, err)
			}
			*dst = b
		}
	}
	if v, ok := env[EnvPrefix+"target_win"]; ok && v != "" {
		raw := []byte(v)
		if !strings.HasPrefix(strings.TrimSpace(v), "{") {
			raw, _ = json.Marshal(strings.TrimSpace(v))
		}
		wc, err := domain.ParseWinCondition(raw)
		if err != nil {
			return fmt.Errorf("%w: %starget_win: %v", ErrInvalidConfig, EnvPrefix, err)
		}
		c.TargetWin = &wc
	}
	return nil
}

// EnvMap turns os.Environ style entries into the map ApplyEnv reads. Only
// keys carrying the prefix, in any case, are kept.
func EnvMap(environ []string) map[string]string {
	out := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(key)
		if strings.HasPrefix(key, EnvPrefix) {
			out[key] = value
		}
	}
	return out
}

// Validate checks ranges and the draw timing.
func (c *GameConfig) Validate() error {
	if c.MaxPlayers < app.MinPlayersToStartGame || c.MaxPlayers > app.DefaultMaxPlayers {
		return fmt.Errorf("%w: max_players %d outside [%d, %d]", ErrInvalidConfig, c.MaxPlayers, app.MinPlayersToStartGame, app.DefaultMaxPlayers)
	}
	if c.MinPlayers < app.MinPlayersToStartGame || c.MinPlayers > c.MaxPlayers {
		return fmt.Errorf("%w: min_players %d outside [%d, %d]", ErrInvalidConfig, c.MinPlayers, app.MinPlayersToStartGame, c.MaxPlayers)
	}
	if c.SimulatedOpponents < 1 || c.SimulatedOpponents > c.MaxPlayers-1 {
		return fmt.Errorf("%w: simulated_opponents %d outside [1, %d]", ErrInvalidConfig, c.SimulatedOpponents, c.MaxPlayers-1)
	}
	reaction := time.Duration(c.ReactionDelayMs) * time.Millisecond
	if err := app.ValidateTiming(c.DrawInterval(), reaction); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Nakama.Port <= 0 || c.Nakama.Port > 65535 {
		return fmt.Errorf("%w: nakama port %d", ErrInvalidConfig, c.Nakama.Port)
	}
	return nil
}

func (c *GameConfig) DrawInterval() time.Duration {
	return time.Duration(c.DrawIntervalMs) * time.Millisecond
}

// ReactionDelay is the value handed to the service options. A zero
// reaction_delay_ms maps to app.ImmediateReaction.
func (c *GameConfig) ReactionDelay() time.Duration {
	if c.ReactionDelayMs == 0 {
		return app.ImmediateReaction
	}
	return time.Duration(c.ReactionDelayMs) * time.Millisecond
}

// EngineConfig projects the match settings used by app.Engine.
func (c *GameConfig) EngineConfig() app.EngineConfig {
	cfg := app.DefaultEngineConfig()
	cfg.MaxPlayers = c.MaxPlayers
	cfg.DrawIntervalMs = c.DrawIntervalMs
	if c.TargetWin != nil {
		cfg.TargetWin = c.TargetWin.Normalize()
	}
	return cfg
}

// HTTPURL is the base URL of the Nakama REST API.
func (n NakamaConfig) HTTPURL() string {
	scheme := "http"
	if n.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, n.Host, n.Port)
}

// WebsocketURL is the realtime socket endpoint.
func (n NakamaConfig) WebsocketURL() string {
	scheme := "ws"
	if n.UseSSL {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/ws", scheme, n.Host, n.Port)
}
