package app

import "time"

// MinPlayersToStartGame defines the minimum number of connected participants required to start a networked match.
// Keep this centralized so tests or local runs can adjust the rule without touching multiple call sites.
const MinPlayersToStartGame = 2

const (
	// DefaultMaxPlayers caps lobby size; full snapshots are broadcast on every change.
	DefaultMaxPlayers = 6
	// DefaultDrawIntervalMs is the time between two card draws.
	DefaultDrawIntervalMs = 3000
	// DefaultReactionDelay models how long simulated opponents take to mark a drawn card.
	DefaultReactionDelay = 500 * time.Millisecond
	// ImmediateReaction tells the services to mark on the draw itself, since
	// a zero delay in their options selects DefaultReactionDelay.
	ImmediateReaction time.Duration = -1
	// DefaultSimulatedOpponents is the number of bots dealt into an offline match.
	DefaultSimulatedOpponents = 3
)
