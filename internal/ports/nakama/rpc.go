package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/heroiclabs/nakama-common/runtime"
)

// gRPC status codes used by runtime errors.
const (
	codeInvalidArgument = 3
	codeInternal        = 13
	codeUnauthenticated = 16
)

var (
	errUnauthenticated = runtime.NewError("user session required", codeUnauthenticated)
	errBadPayload      = runtime.NewError("invalid request payload", codeInvalidArgument)
	errMatchCreate     = runtime.NewError("failed to create match", codeInternal)
	errMatchList       = runtime.NewError("failed to list matches", codeInternal)
)

// MatchResponse is the payload returned by the match RPCs.
type MatchResponse struct {
	MatchID string `json:"match_id"`
	IsNew   bool   `json:"is_new"`
}

// CreateMatchRequest is the optional create_match payload.
type CreateMatchRequest struct {
	MaxPlayers int `json:"max_players,omitempty"`
}

// RegisterRPCs registers Nakama RPC endpoints.
func RegisterRPCs(initializer runtime.Initializer) error {
	if err := initializer.RegisterRpc(RpcCreateMatch, RpcCreateMatchHandler); err != nil {
		return err
	}
	return initializer.RegisterRpc(RpcFindMatch, RpcFindMatchHandler)
}

// RpcCreateMatchHandler creates a relay match hosted by the calling user.
func RpcCreateMatchHandler(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if userID == "" {
		return "", errUnauthenticated
	}

	var req CreateMatchRequest
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			logger.Warn("RpcCreateMatch [User:%s]: Bad payload: %v", userID, err)
			return "", errBadPayload
		}
	}

	params := map[string]interface{}{ParamHostUserID: userID}
	if req.MaxPlayers > 0 {
		params[ParamMaxPlayers] = req.MaxPlayers
	}
	matchID, err := nk.MatchCreate(ctx, MatchNameRelay, params)
	if err != nil {
		logger.Error("RpcCreateMatch [User:%s]: Failed to create match: %v", userID, err)
		return "", errMatchCreate
	}

	logger.Info("RpcCreateMatch [User:%s]: Created match %s", userID, matchID)
	return marshalMatchResponse(MatchResponse{MatchID: matchID, IsNew: true})
}

// RpcFindMatchHandler returns a relay match with an open seat. When none
// exists it creates one hosted by the caller.
func RpcFindMatchHandler(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if userID == "" {
		return "", errUnauthenticated
	}

	query := fmt.Sprintf("+label.game:%s +label.open:>=1", MatchLabelGame)
	limit := 10
	minSize := 1
	maxSize := 5

	matches, err := nk.MatchList(ctx, limit, true, "", &minSize, &maxSize, query)
	if err != nil {
		logger.Error("RpcFindMatch [User:%s]: Failed to list matches: %v", userID, err)
		return "", errMatchList
	}
	if len(matches) > 0 {
		matchID := matches[0].GetMatchId()
		logger.Info("RpcFindMatch [User:%s]: Found existing match %s", userID, matchID)
		return marshalMatchResponse(MatchResponse{MatchID: matchID})
	}

	matchID, err := nk.MatchCreate(ctx, MatchNameRelay, map[string]interface{}{ParamHostUserID: userID})
	if err != nil {
		logger.Error("RpcFindMatch [User:%s]: Failed to create match: %v", userID, err)
		return "", errMatchCreate
	}
	logger.Info("RpcFindMatch [User:%s]: Created new match %s", userID, matchID)
	return marshalMatchResponse(MatchResponse{MatchID: matchID, IsNew: true})
}

func marshalMatchResponse(resp MatchResponse) (string, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return "", errMatchCreate
	}
	return string(b), nil
}
