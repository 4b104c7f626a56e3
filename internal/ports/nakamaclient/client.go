// Package nakamaclient is the match transport over a Nakama server: device
// authentication and storage over the REST API, match traffic over the
// protobuf realtime socket.
package nakamaclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/heroiclabs/nakama-common/rtapi"
	"github.com/heroiclabs/nakama-common/runtime"
	"google.golang.org/protobuf/proto"

	"loteria/internal/config"
	"loteria/internal/logging"
	"loteria/internal/ports"
	"loteria/internal/ports/nakama"
)

var (
	ErrNotAuthenticated = errors.New("nakama: not authenticated")
	ErrSessionExpired   = errors.New("nakama: session expired")
	ErrClosed           = errors.New("nakama: client closed")
	ErrServer           = errors.New("nakama: server error")
	ErrUnexpectedReply  = errors.New("nakama: unexpected reply")
)

const defaultRequestTimeout = 10 * time.Second

// Options configures a Client.
type Options struct {
	Server         config.NakamaConfig
	HTTPClient     *http.Client
	Dialer         *websocket.Dialer
	Logger         runtime.Logger
	RequestTimeout time.Duration
	Now            func() time.Time
}

// Client implements ports.Transport and ports.PreferencesReader.
type Client struct {
	httpURL     string
	wsURL       string
	serverKey   string
	relayModule bool
	http        *http.Client
	dialer      *websocket.Dialer
	logger      runtime.Logger
	timeout     time.Duration
	now         func() time.Time

	mu       sync.Mutex
	session  ports.Session
	conn     *websocket.Conn
	handlers ports.TransportHandlers
	pending  map[string]chan *rtapi.Envelope
	members  map[string]map[string]ports.Presence // match id -> user id -> presence
	closed   bool
	done     chan struct{}

	writeMu sync.Mutex
}

var (
	_ ports.Transport         = (*Client)(nil)
	_ ports.PreferencesReader = (*Client)(nil)
)

func New(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		httpURL:     opts.Server.HTTPURL(),
		wsURL:       opts.Server.WebsocketURL(),
		serverKey:   opts.Server.ServerKey,
		relayModule: opts.Server.RelayModule,
		http:        opts.HTTPClient,
		dialer:      opts.Dialer,
		logger:      opts.Logger,
		timeout:     opts.RequestTimeout,
		now:         opts.Now,
		pending:     make(map[string]chan *rtapi.Envelope),
		members:     make(map[string]map[string]ports.Presence),
	}
}

// Authenticate logs in with the device id, creating the account on first
// use, and opens the realtime socket.
func (c *Client) Authenticate(ctx context.Context, deviceID, usernameHint string) (ports.Session, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ports.Session{}, ErrClosed
	}
	c.mu.Unlock()

	session, err := c.authenticateDevice(ctx, deviceID, usernameHint)
	if err != nil {
		return ports.Session{}, err
	}
	if err := c.connect(ctx, session.Token); err != nil {
		return ports.Session{}, err
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	c.logger.Info("Nakama: authenticated %s (created=%t)", session.UserID, session.Created)
	return session, nil
}

// Session returns the current session.
func (c *Client) Session() ports.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) connect(ctx context.Context, token string) error {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return fmt.Errorf("nakama: socket url: %w", err)
	}
	q := u.Query()
	q.Set("lang", "en")
	q.Set("status", "true")
	q.Set("format", "protobuf")
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("nakama: dial socket (%s): %w", resp.Status, err)
		}
		return fmt.Errorf("nakama: dial socket: %w", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.done = done
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	go c.readLoop(conn, done)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			c.socketClosed(conn, err)
			return
		}
		if kind != websocket.BinaryMessage {
			c.logger.Debug("Nakama: ignored text frame")
			continue
		}
		env := &rtapi.Envelope{}
		if err := proto.Unmarshal(data, env); err != nil {
			c.logger.Warn("Nakama: undecodable envelope: %v", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) socketClosed(conn *websocket.Conn, err error) {
	c.mu.Lock()
	current := c.conn == conn
	closed := c.closed
	if current {
		c.conn = nil
		for cid, ch := range c.pending {
			close(ch)
			delete(c.pending, cid)
		}
	}
	onDisconnect := c.handlers.OnDisconnect
	c.mu.Unlock()

	if !current || closed {
		return
	}
	c.logger.Warn("Nakama: socket closed: %v", err)
	if onDisconnect != nil {
		onDisconnect(err)
	}
}

func (c *Client) dispatch(env *rtapi.Envelope) {
	if env.GetCid() != "" {
		c.mu.Lock()
		ch, ok := c.pending[env.GetCid()]
		delete(c.pending, env.GetCid())
		c.mu.Unlock()
		if ok {
			ch <- env
			return
		}
	}

	switch msg := env.GetMessage().(type) {
	case *rtapi.Envelope_MatchData:
		c.onMatchData(msg.MatchData)
	case *rtapi.Envelope_MatchPresenceEvent:
		ev := msg.MatchPresenceEvent
		c.onPresence(ev.GetMatchId(), fromUserPresences(ev.GetJoins()), fromUserPresences(ev.GetLeaves()))
	case *rtapi.Envelope_Error:
		c.logger.Warn("Nakama: server error %d: %s", msg.Error.GetCode(), msg.Error.GetMessage())
	default:
		c.logger.Debug("Nakama: ignored envelope %T", msg)
	}
}

func (c *Client) onMatchData(data *rtapi.MatchData) {
	if c.relayModule && data.GetOpCode() == nakama.OpCodePresence {
		joins, leaves, err := nakama.DecodePresenceNotice(data.GetData())
		if err != nil {
			c.logger.Warn("Nakama: %v", err)
			return
		}
		c.onPresence(data.GetMatchId(), joins, leaves)
		return
	}

	c.mu.Lock()
	fn := c.handlers.OnMatchMessage
	c.mu.Unlock()
	if fn == nil {
		return
	}
	fn(ports.MatchMessage{
		MatchID: data.GetMatchId(),
		OpCode:  data.GetOpCode(),
		Data:    data.GetData(),
		Sender:  fromUserPresence(data.GetPresence()),
	})
}

func (c *Client) onPresence(matchID string, joins, leaves []ports.Presence) {
	c.mu.Lock()
	if m, ok := c.members[matchID]; ok {
		for _, p := range joins {
			m[p.UserID] = p
		}
		for _, p := range leaves {
			delete(m, p.UserID)
		}
	}
	fn := c.handlers.OnPresenceChange
	c.mu.Unlock()
	if fn != nil {
		fn(matchID, joins, leaves)
	}
}

// request sends an envelope and waits for the reply with the same cid.
func (c *Client) request(ctx context.Context, env *rtapi.Envelope) (*rtapi.Envelope, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	env.Cid = uuid.NewString()
	reply := make(chan *rtapi.Envelope, 1)
	c.mu.Lock()
	c.pending[env.Cid] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, env.Cid)
		c.mu.Unlock()
	}()

	if err := c.write(env); err != nil {
		return nil, err
	}

	select {
	case res, ok := <-reply:
		if !ok {
			return nil, fmt.Errorf("nakama: socket closed awaiting reply: %w", ErrClosed)
		}
		if e := res.GetError(); e != nil {
			return nil, fmt.Errorf("%w %d: %s", ErrServer, e.GetCode(), e.GetMessage())
		}
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) write(env *rtapi.Envelope) error {
	data, err := proto.Marshal(env)
	if err != nil {
		return fmt.Errorf("nakama: encode envelope: %w", err)
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(c.now().Add(c.timeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("nakama: write envelope: %w", err)
	}
	return nil
}

func (c *Client) ready() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.session.Token == "" {
		return ErrNotAuthenticated
	}
	if c.session.Expired(c.now()) {
		return ErrSessionExpired
	}
	if c.conn == nil {
		return ErrClosed
	}
	return nil
}

// CreateMatch creates a match through the relay module when it is enabled
// and a plain relayed match otherwise.
func (c *Client) CreateMatch(ctx context.Context) (ports.Match, error) {
	if c.relayModule {
		matchID, err := c.createModuleMatch(ctx)
		if err != nil {
			return ports.Match{}, err
		}
		return c.JoinMatch(ctx, matchID)
	}

	res, err := c.request(ctx, &rtapi.Envelope{Message: &rtapi.Envelope_MatchCreate{MatchCreate: &rtapi.MatchCreate{}}})
	if err != nil {
		return ports.Match{}, fmt.Errorf("nakama: create match: %w", err)
	}
	return c.trackMatch(res)
}

func (c *Client) JoinMatch(ctx context.Context, matchID string) (ports.Match, error) {
	res, err := c.request(ctx, &rtapi.Envelope{Message: &rtapi.Envelope_MatchJoin{MatchJoin: &rtapi.MatchJoin{
		Id: &rtapi.MatchJoin_MatchId{MatchId: matchID},
	}}})
	if err != nil {
		return ports.Match{}, fmt.Errorf("nakama: join match %s: %w", matchID, err)
	}
	return c.trackMatch(res)
}

func (c *Client) trackMatch(res *rtapi.Envelope) (ports.Match, error) {
	m := res.GetMatch()
	if m == nil {
		return ports.Match{}, fmt.Errorf("%w: %T", ErrUnexpectedReply, res.GetMessage())
	}
	match := ports.Match{
		ID:        m.GetMatchId(),
		Self:      fromUserPresence(m.GetSelf()),
		Presences: fromUserPresences(m.GetPresences()),
	}

	c.mu.Lock()
	members := make(map[string]ports.Presence, len(match.Presences)+1)
	for _, p := range match.Presences {
		members[p.UserID] = p
	}
	members[match.Self.UserID] = match.Self
	c.members[match.ID] = members
	c.mu.Unlock()
	return match, nil
}

func (c *Client) LeaveMatch(ctx context.Context, matchID string) error {
	c.mu.Lock()
	delete(c.members, matchID)
	c.mu.Unlock()
	if _, err := c.request(ctx, &rtapi.Envelope{Message: &rtapi.Envelope_MatchLeave{MatchLeave: &rtapi.MatchLeave{MatchId: matchID}}}); err != nil {
		return fmt.Errorf("nakama: leave match %s: %w", matchID, err)
	}
	return nil
}

// SendToMatch sends match data. Recipients are resolved against the known
// presences; unknown user ids are skipped.
func (c *Client) SendToMatch(ctx context.Context, matchID string, opCode int64, data []byte, to ...string) error {
	if err := c.ready(); err != nil {
		return err
	}
	send := &rtapi.MatchDataSend{MatchId: matchID, OpCode: opCode, Data: data, Reliable: true}
	if len(to) > 0 {
		c.mu.Lock()
		members := c.members[matchID]
		for _, id := range to {
			if p, ok := members[id]; ok {
				send.Presences = append(send.Presences, toUserPresence(p))
			}
		}
		c.mu.Unlock()
		if len(send.Presences) == 0 && !c.relayModule {
			c.logger.Debug("Nakama: no known recipients for op %d in %s", opCode, matchID)
			return nil
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.write(&rtapi.Envelope{Message: &rtapi.Envelope_MatchDataSend{MatchDataSend: send}})
}

func (c *Client) SetHandlers(h ports.TransportHandlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

// Close shuts the socket down. Further calls are no-ops.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn, done := c.conn, c.done
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), c.now().Add(time.Second))
	c.writeMu.Unlock()
	err := conn.Close()
	<-done
	return err
}

func fromUserPresence(p *rtapi.UserPresence) ports.Presence {
	if p == nil {
		return ports.Presence{}
	}
	return ports.Presence{UserID: p.GetUserId(), SessionID: p.GetSessionId(), Username: p.GetUsername()}
}

func fromUserPresences(ps []*rtapi.UserPresence) []ports.Presence {
	if len(ps) == 0 {
		return nil
	}
	out := make([]ports.Presence, len(ps))
	for i, p := range ps {
		out[i] = fromUserPresence(p)
	}
	return out
}

func toUserPresence(p ports.Presence) *rtapi.UserPresence {
	return &rtapi.UserPresence{UserId: p.UserID, SessionId: p.SessionID, Username: p.Username}
}
