package nakama

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/heroiclabs/nakama-common/runtime"

	"loteria/internal/app"
	"loteria/internal/config"
)

const (
	relayTickRate = 10
	// emptyMatchTicks terminates a match nobody joined within 30 seconds.
	emptyMatchTicks = 30 * relayTickRate
)

// MatchLabel is the JSON label MatchList queries filter on.
type MatchLabel struct {
	Open    int    `json:"open"`
	Game    string `json:"game"`
	Players int    `json:"players"`
}

// MatchState is the relay match state. The server never sees game state; it
// only knows who hosts and who is present.
type MatchState struct {
	HostUserID string                      `json:"host_user_id"`
	MaxPlayers int                         `json:"max_players"`
	Presences  map[string]runtime.Presence `json:"-"` // user id -> presence
	Order      []string                    `json:"order"`
	EmptyTicks int                         `json:"empty_ticks"`
}

func (ms *MatchState) OpenSeats() int {
	if open := ms.MaxPlayers - len(ms.Presences); open > 0 {
		return open
	}
	return 0
}

func (ms *MatchState) host() (runtime.Presence, bool) {
	p, ok := ms.Presences[ms.HostUserID]
	return p, ok
}

// others lists presences in join order, skipping the given user.
func (ms *MatchState) others(userID string) []runtime.Presence {
	out := make([]runtime.Presence, 0, len(ms.Order))
	for _, id := range ms.Order {
		if id == userID {
			continue
		}
		if p, ok := ms.Presences[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (ms *MatchState) label() MatchLabel {
	return MatchLabel{Open: ms.OpenSeats(), Game: MatchLabelGame, Players: len(ms.Presences)}
}

// NewMatch is the factory function registered with Nakama.
func NewMatch(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) (runtime.Match, error) {
	return &matchHandler{}, nil
}

type matchHandler struct{}

var _ runtime.Match = (*matchHandler)(nil)

// MatchInit is called when the match is created.
func (mh *matchHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	cfg := config.Default()
	if env, ok := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string); ok {
		if err := cfg.ApplyEnv(env); err != nil {
			logger.Warn("MatchInit: Ignoring runtime env: %v", err)
			cfg = config.Default()
		}
	}

	state := &MatchState{
		MaxPlayers: cfg.MaxPlayers,
		Presences:  make(map[string]runtime.Presence),
	}
	if host, ok := params[ParamHostUserID].(string); ok {
		state.HostUserID = host
	}
	if n, ok := paramInt(params[ParamMaxPlayers]); ok && n >= app.MinPlayersToStartGame && n < state.MaxPlayers {
		state.MaxPlayers = n
	}

	label, err := json.Marshal(state.label())
	if err != nil {
		logger.Error("MatchInit: Failed to marshal label: %v", err)
		return nil, 0, ""
	}
	logger.Debug("MatchInit: Relay match for host %q with %d seats.", state.HostUserID, state.MaxPlayers)
	return state, relayTickRate, string(label)
}

// paramInt accepts the numeric shapes MatchCreate params arrive in.
func paramInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func (mh *matchHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, false, "state not found"
	}
	if _, rejoin := matchState.Presences[presence.GetUserId()]; rejoin {
		return state, true, ""
	}
	if matchState.OpenSeats() <= 0 {
		return state, false, "Match full"
	}
	return state, true, ""
}

func (mh *matchHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchJoin: state not found")
		return state
	}

	prior := excluding(matchState.others(""), presences)
	for _, p := range presences {
		id := p.GetUserId()
		if _, ok := matchState.Presences[id]; !ok {
			matchState.Order = append(matchState.Order, id)
		}
		matchState.Presences[id] = p
		if matchState.HostUserID == "" {
			matchState.HostUserID = id
			logger.Debug("MatchJoin: Host set to first joiner %s.", id)
		}
	}
	matchState.EmptyTicks = 0

	// Existing members learn about the joiners; joiners learn about everyone
	// already present.
	mh.sendNotice(dispatcher, logger, PresenceNotice{Joins: noticePresences(presences)}, prior)
	if len(prior) > 0 {
		mh.sendNotice(dispatcher, logger, PresenceNotice{Joins: noticePresences(prior)}, presences)
	}

	mh.updateLabel(matchState, dispatcher, logger)
	return matchState
}

// MatchLeave is called when one or more players leave the match.
func (mh *matchHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchLeave: state not found")
		return state
	}

	for _, p := range presences {
		id := p.GetUserId()
		delete(matchState.Presences, id)
		for i, o := range matchState.Order {
			if o == id {
				matchState.Order = append(matchState.Order[:i], matchState.Order[i+1:]...)
				break
			}
		}
		if id == matchState.HostUserID {
			// Peers keep their last snapshot; there is no host migration.
			logger.Info("MatchLeave: Host %s left.", id)
		}
	}

	if len(matchState.Presences) == 0 {
		logger.Info("MatchLeave: Terminating empty match.")
		return nil
	}

	mh.sendNotice(dispatcher, logger, PresenceNotice{Leaves: noticePresences(presences)}, matchState.others(""))
	mh.updateLabel(matchState, dispatcher, logger)
	return matchState
}

// MatchLoop forwards intents to the host and host events to everyone else.
// Payloads are relayed untouched.
func (mh *matchHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state
	}

	if len(matchState.Presences) == 0 {
		matchState.EmptyTicks++
		if matchState.EmptyTicks >= emptyMatchTicks {
			logger.Info("MatchLoop: Terminating match nobody joined.")
			return nil
		}
		return matchState
	}

	for _, msg := range messages {
		sender := msg.GetUserId()
		switch msg.GetOpCode() {
		case OpCodeIntent:
			host, ok := matchState.host()
			if !ok || sender == matchState.HostUserID {
				logger.Debug("MatchLoop: Dropped intent from %s (host present=%t).", sender, ok)
				continue
			}
			mh.forward(dispatcher, logger, msg, []runtime.Presence{host})
		case OpCodeEvent:
			if sender != matchState.HostUserID {
				logger.Warn("MatchLoop: Dropped event from non-host %s.", sender)
				continue
			}
			if recipients := matchState.others(sender); len(recipients) > 0 {
				mh.forward(dispatcher, logger, msg, recipients)
			}
		default:
			logger.Warn("MatchLoop: Unknown opcode received: %d", msg.GetOpCode())
		}
	}
	return matchState
}

func (mh *matchHandler) forward(dispatcher runtime.MatchDispatcher, logger runtime.Logger, msg runtime.MatchData, to []runtime.Presence) {
	if err := dispatcher.BroadcastMessage(msg.GetOpCode(), msg.GetData(), to, msg, msg.GetReliable()); err != nil {
		logger.Error("MatchLoop: Failed to relay op %d from %s: %v", msg.GetOpCode(), msg.GetUserId(), err)
	}
}

func (mh *matchHandler) sendNotice(dispatcher runtime.MatchDispatcher, logger runtime.Logger, notice PresenceNotice, to []runtime.Presence) {
	if len(to) == 0 {
		return
	}
	data, err := json.Marshal(notice)
	if err != nil {
		logger.Error("PresenceNotice: Failed to marshal: %v", err)
		return
	}
	if err := dispatcher.BroadcastMessage(OpCodePresence, data, to, nil, true); err != nil {
		logger.Error("PresenceNotice: Failed to send: %v", err)
	}
}

// excluding returns the presences in ps whose user is not in drop.
func excluding(ps, drop []runtime.Presence) []runtime.Presence {
	out := make([]runtime.Presence, 0, len(ps))
	for _, p := range ps {
		skip := false
		for _, d := range drop {
			if d.GetUserId() == p.GetUserId() {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, p)
		}
	}
	return out
}

func (mh *matchHandler) updateLabel(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	label, err := json.Marshal(state.label())
	if err != nil {
		logger.Error("UpdateLabel: Failed to marshal: %v", err)
		return
	}
	if err := dispatcher.MatchLabelUpdate(string(label)); err != nil {
		logger.Error("UpdateLabel: Failed to update: %v", err)
	}
}

func (mh *matchHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, graceSeconds int) interface{} {
	logger.Debug("MatchTerminate: Match terminated with %d grace seconds", graceSeconds)
	return state
}

// MatchSignal answers with the current label.
func (mh *matchHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, ""
	}
	label, _ := json.Marshal(matchState.label())
	return matchState, string(label)
}
