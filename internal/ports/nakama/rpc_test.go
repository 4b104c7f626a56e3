package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
)

// fakeNakama overrides the module calls the RPCs make. Anything else panics
// through the nil embedded interface.
type fakeNakama struct {
	runtime.NakamaModule

	listed    []*api.Match
	listErr   error
	lastQuery string

	created     []map[string]interface{}
	createErr   error
	nextMatchID string
}

func (f *fakeNakama) MatchList(ctx context.Context, limit int, authoritative bool, label string, minSize, maxSize *int, query string) ([]*api.Match, error) {
	f.lastQuery = query
	return f.listed, f.listErr
}

func (f *fakeNakama) MatchCreate(ctx context.Context, module string, params map[string]interface{}) (string, error) {
	if module != MatchNameRelay {
		return "", errors.New("unexpected module " + module)
	}
	f.created = append(f.created, params)
	return f.nextMatchID, f.createErr
}

func userCtx(userID string) context.Context {
	return context.WithValue(context.Background(), runtime.RUNTIME_CTX_USER_ID, userID)
}

func decodeResponse(t *testing.T, raw string) MatchResponse {
	t.Helper()
	var resp MatchResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("response %q: %v", raw, err)
	}
	return resp
}

func TestRpcCreateMatch(t *testing.T) {
	nk := &fakeNakama{nextMatchID: "m1.node"}
	out, err := RpcCreateMatchHandler(userCtx("u1"), noopLogger{}, nil, nk, `{"max_players":4}`)
	if err != nil {
		t.Fatalf("RpcCreateMatch: %v", err)
	}
	if resp := decodeResponse(t, out); resp.MatchID != "m1.node" || !resp.IsNew {
		t.Fatalf("response = %+v", resp)
	}
	if len(nk.created) != 1 || nk.created[0][ParamHostUserID] != "u1" || nk.created[0][ParamMaxPlayers] != 4 {
		t.Fatalf("create params = %+v", nk.created)
	}
}

func TestRpcCreateMatch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		ctx     context.Context
		payload string
		nk      *fakeNakama
		want    error
	}{
		{"NoUser", context.Background(), "", &fakeNakama{}, errUnauthenticated},
		{"BadPayload", userCtx("u1"), "{", &fakeNakama{}, errBadPayload},
		{"CreateFails", userCtx("u1"), "", &fakeNakama{createErr: errors.New("boom")}, errMatchCreate},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := RpcCreateMatchHandler(test.ctx, noopLogger{}, nil, test.nk, test.payload); err != test.want {
				t.Fatalf("err = %v, want %v", err, test.want)
			}
		})
	}
}

func TestRpcFindMatch(t *testing.T) {
	nk := &fakeNakama{listed: []*api.Match{{MatchId: "open.node"}}}
	out, err := RpcFindMatchHandler(userCtx("u2"), noopLogger{}, nil, nk, "")
	if err != nil {
		t.Fatalf("RpcFindMatch: %v", err)
	}
	if resp := decodeResponse(t, out); resp.MatchID != "open.node" || resp.IsNew {
		t.Fatalf("response = %+v", resp)
	}
	if nk.lastQuery != "+label.game:loteria +label.open:>=1" {
		t.Errorf("query = %q", nk.lastQuery)
	}
	if len(nk.created) != 0 {
		t.Errorf("should not create when a match is open")
	}

	nk = &fakeNakama{nextMatchID: "new.node"}
	out, err = RpcFindMatchHandler(userCtx("u2"), noopLogger{}, nil, nk, "")
	if err != nil {
		t.Fatalf("RpcFindMatch: %v", err)
	}
	if resp := decodeResponse(t, out); resp.MatchID != "new.node" || !resp.IsNew {
		t.Fatalf("response = %+v", resp)
	}
	if nk.created[0][ParamHostUserID] != "u2" {
		t.Errorf("created match host = %v", nk.created[0][ParamHostUserID])
	}

	nk = &fakeNakama{listErr: errors.New("db down")}
	if _, err := RpcFindMatchHandler(userCtx("u2"), noopLogger{}, nil, nk, ""); err != errMatchList {
		t.Errorf("err = %v, want errMatchList", err)
	}
}
