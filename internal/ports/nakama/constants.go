package nakama

import "loteria/internal/app/relay"

const (
	// RpcCreateMatch creates a relay match hosted by the caller.
	RpcCreateMatch = "create_match"
	// RpcFindMatch returns an open relay match, creating one when none exists.
	RpcFindMatch = "find_match"

	// MatchNameRelay is the match handler name registered with Nakama.
	MatchNameRelay = "loteria_relay"
	// MatchLabelGame tags relay match labels for MatchList queries.
	MatchLabelGame = "loteria"

	// ParamHostUserID is the MatchCreate param naming the host.
	ParamHostUserID = "host_user_id"
	// ParamMaxPlayers optionally lowers the seat count of a match.
	ParamMaxPlayers = "max_players"
)

// Op codes carried by the relay match. Intent and event payloads are opaque to
// the server.
const (
	OpCodeIntent   int64 = relay.OpIntent
	OpCodeEvent    int64 = relay.OpEvent
	OpCodePresence int64 = 3
)
