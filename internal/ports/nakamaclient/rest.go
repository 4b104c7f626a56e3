package nakamaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/heroiclabs/nakama-common/api"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"loteria/internal/ports"
	"loteria/internal/ports/nakama"
)

var (
	marshalOptions   = protojson.MarshalOptions{UseProtoNames: true}
	unmarshalOptions = protojson.UnmarshalOptions{DiscardUnknown: true}
)

func (c *Client) authenticateDevice(ctx context.Context, deviceID, usernameHint string) (ports.Session, error) {
	q := url.Values{}
	q.Set("create", "true")
	if usernameHint != "" {
		q.Set("username", usernameHint)
	}

	out := &api.Session{}
	err := c.do(ctx, http.MethodPost, "/v2/account/authenticate/device?"+q.Encode(), &api.AccountDevice{Id: deviceID}, out, func(req *http.Request) {
		req.SetBasicAuth(c.serverKey, "")
	})
	if err != nil {
		return ports.Session{}, fmt.Errorf("nakama: authenticate device: %w", err)
	}

	claims, err := nakama.ParseSessionToken(out.GetToken())
	if err != nil {
		return ports.Session{}, err
	}
	session := ports.Session{
		Token:    out.GetToken(),
		UserID:   claims.UserID,
		Username: claims.Username,
		Created:  out.GetCreated(),
	}
	if claims.ExpiresAt > 0 {
		session.ExpiresAt = time.Unix(claims.ExpiresAt, 0)
	}
	return session, nil
}

// RPC calls a server runtime function with the session token and returns
// its payload.
func (c *Client) RPC(ctx context.Context, id, payload string) (string, error) {
	token, err := c.token()
	if err != nil {
		return "", err
	}
	// The gateway expects the payload as a JSON string.
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("nakama: encode rpc payload: %w", err)
	}

	out := &api.Rpc{}
	if err := c.doRaw(ctx, http.MethodPost, "/v2/rpc/"+url.PathEscape(id), body, out, bearer(token)); err != nil {
		return "", fmt.Errorf("nakama: rpc %s: %w", id, err)
	}
	return out.GetPayload(), nil
}

func (c *Client) createModuleMatch(ctx context.Context) (string, error) {
	payload, err := c.RPC(ctx, nakama.RpcCreateMatch, "")
	if err != nil {
		return "", err
	}
	var resp nakama.MatchResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil || resp.MatchID == "" {
		return "", fmt.Errorf("%w: create_match payload %q", ErrUnexpectedReply, payload)
	}
	return resp.MatchID, nil
}

// LoadPreferences reads the user's preferences object from storage. A
// missing object yields the defaults.
func (c *Client) LoadPreferences(ctx context.Context, userID string) (ports.Preferences, error) {
	token, err := c.token()
	if err != nil {
		return ports.DefaultPreferences(), err
	}
	req := &api.ReadStorageObjectsRequest{ObjectIds: []*api.ReadStorageObjectId{
		{Collection: ports.PreferencesCollection, Key: ports.PreferencesKey, UserId: userID},
	}}
	out := &api.StorageObjects{}
	if err := c.do(ctx, http.MethodPost, "/v2/storage", req, out, bearer(token)); err != nil {
		return ports.DefaultPreferences(), fmt.Errorf("nakama: read preferences: %w", err)
	}
	if len(out.GetObjects()) == 0 {
		return ports.DefaultPreferences(), nil
	}
	return ports.DecodePreferences([]byte(out.GetObjects()[0].GetValue()))
}

func (c *Client) token() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Token == "" {
		return "", ErrNotAuthenticated
	}
	if c.session.Expired(c.now()) {
		return "", ErrSessionExpired
	}
	return c.session.Token, nil
}

func bearer(token string) func(*http.Request) {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out proto.Message, auth func(*http.Request)) error {
	body, err := marshalOptions.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.doRaw(ctx, method, path, body, out, auth)
}

func (c *Client) doRaw(ctx context.Context, method, path string, body []byte, out proto.Message, auth func(*http.Request)) error {
	req, err := http.NewRequestWithContext(ctx, method, c.httpURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &apiErr)
		return fmt.Errorf("%w: %s: %s", ErrServer, resp.Status, apiErr.Message)
	}
	if err := unmarshalOptions.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
