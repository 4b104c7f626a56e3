// Package loopback is an in-process match transport. Every client created
// from one Hub shares its accounts and matches, which makes it the transport
// for tests and for local hot-seat play.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"loteria/internal/ports"
)

var (
	ErrMatchNotFound    = errors.New("match not found")
	ErrNotInMatch       = errors.New("not a member of the match")
	ErrNotAuthenticated = errors.New("client is not authenticated")
	ErrClosed           = errors.New("client is closed")
)

// SessionTTL is the lifetime stamped on loopback sessions.
const SessionTTL = time.Hour

// Hub routes messages between its clients.
type Hub struct {
	mu      sync.Mutex
	users   map[string]string // device id -> user id
	matches map[string]*match
}

type match struct {
	members map[string]*Client // user id -> client
	order   []string
}

func NewHub() *Hub {
	return &Hub{
		users:   make(map[string]string),
		matches: make(map[string]*match),
	}
}

// NewClient returns an unauthenticated client attached to the hub.
func (h *Hub) NewClient() *Client {
	return &Client{hub: h, joined: make(map[string]bool)}
}

// Members lists the user ids in a match in join order.
func (h *Hub) Members(matchID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.matches[matchID]
	if !ok {
		return nil
	}
	return append([]string(nil), m.order...)
}

func (h *Hub) userFor(deviceID string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id, ok := h.users[deviceID]; ok {
		return id, false
	}
	id := uuid.NewString()
	h.users[deviceID] = id
	return id, true
}

func (h *Hub) create(c *Client) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := uuid.NewString() + ".loopback"
	uid := c.userID()
	h.matches[id] = &match{members: map[string]*Client{uid: c}, order: []string{uid}}
	return id
}

// join adds c and returns the prior members.
func (h *Hub) join(matchID string, c *Client) ([]*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.matches[matchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	uid := c.userID()
	others := m.others(uid)
	if _, ok := m.members[uid]; !ok {
		m.order = append(m.order, uid)
	}
	m.members[uid] = c
	return others, nil
}

// leave removes c and returns the remaining members. Empty matches are
// discarded.
func (h *Hub) leave(matchID string, c *Client) ([]*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.matches[matchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	uid := c.userID()
	if m.members[uid] != c {
		return nil, fmt.Errorf("%w: %s", ErrNotInMatch, matchID)
	}
	delete(m.members, uid)
	for i, id := range m.order {
		if id == uid {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if len(m.members) == 0 {
		delete(h.matches, matchID)
	}
	return m.others(uid), nil
}

func (h *Hub) recipients(matchID string, c *Client, to []string) ([]*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.matches[matchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	uid := c.userID()
	if m.members[uid] != c {
		return nil, fmt.Errorf("%w: %s", ErrNotInMatch, matchID)
	}
	if len(to) == 0 {
		return m.others(uid), nil
	}
	var out []*Client
	for _, id := range to {
		if member, ok := m.members[id]; ok && id != uid {
			out = append(out, member)
		}
	}
	return out, nil
}

func (m *match) others(uid string) []*Client {
	out := make([]*Client, 0, len(m.order))
	for _, id := range m.order {
		if id != uid {
			out = append(out, m.members[id])
		}
	}
	return out
}

func presences(clients []*Client) []ports.Presence {
	out := make([]ports.Presence, len(clients))
	for i, c := range clients {
		out[i] = c.presence()
	}
	return out
}

var _ ports.Transport = (*Client)(nil)

// Client is one session on a Hub. Delivery is synchronous: handlers run on the
// sender's goroutine after the hub lock is released.
type Client struct {
	hub *Hub

	mu       sync.Mutex
	session  ports.Session
	sid      string
	handlers ports.TransportHandlers
	joined   map[string]bool
	closed   bool
}

func (c *Client) Authenticate(_ context.Context, deviceID, usernameHint string) (ports.Session, error) {
	if deviceID == "" {
		return ports.Session{}, errors.New("loopback: device id is required")
	}
	uid, created := c.hub.userFor(deviceID)
	username := usernameHint
	if username == "" {
		username = "user-" + uid[:8]
	}
	session := ports.Session{
		Token:     uuid.NewString(),
		UserID:    uid,
		Username:  username,
		Created:   created,
		ExpiresAt: time.Now().Add(SessionTTL),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ports.Session{}, ErrClosed
	}
	c.session = session
	c.sid = uuid.NewString()
	return session, nil
}

func (c *Client) CreateMatch(context.Context) (ports.Match, error) {
	if err := c.ready(); err != nil {
		return ports.Match{}, err
	}
	id := c.hub.create(c)
	c.mu.Lock()
	c.joined[id] = true
	c.mu.Unlock()
	return ports.Match{ID: id, Self: c.presence()}, nil
}

func (c *Client) JoinMatch(_ context.Context, matchID string) (ports.Match, error) {
	if err := c.ready(); err != nil {
		return ports.Match{}, err
	}
	others, err := c.hub.join(matchID, c)
	if err != nil {
		return ports.Match{}, err
	}
	c.mu.Lock()
	c.joined[matchID] = true
	c.mu.Unlock()

	self := []ports.Presence{c.presence()}
	for _, o := range others {
		o.presenceChanged(matchID, self, nil)
	}
	return ports.Match{ID: matchID, Self: c.presence(), Presences: presences(others)}, nil
}

func (c *Client) LeaveMatch(_ context.Context, matchID string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.leave(matchID)
}

func (c *Client) leave(matchID string) error {
	remaining, err := c.hub.leave(matchID, c)
	if err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.joined, matchID)
	c.mu.Unlock()

	self := []ports.Presence{c.presence()}
	for _, o := range remaining {
		o.presenceChanged(matchID, nil, self)
	}
	return nil
}

func (c *Client) SendToMatch(_ context.Context, matchID string, opCode int64, data []byte, to ...string) error {
	if err := c.ready(); err != nil {
		return err
	}
	targets, err := c.hub.recipients(matchID, c, to)
	if err != nil {
		return err
	}
	sender := c.presence()
	for _, t := range targets {
		t.deliver(ports.MatchMessage{
			MatchID: matchID,
			OpCode:  opCode,
			Data:    append([]byte(nil), data...),
			Sender:  sender,
		})
	}
	return nil
}

func (c *Client) SetHandlers(h ports.TransportHandlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

// Close leaves every joined match. Further calls are no-ops.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ids := make([]string, 0, len(c.joined))
	for id := range c.joined {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := c.leave(id); err != nil && !errors.Is(err, ErrMatchNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Disconnect simulates a dropped socket: the client leaves its matches and
// its disconnect handler fires with err.
func (c *Client) Disconnect(err error) {
	c.mu.Lock()
	onDisconnect := c.handlers.OnDisconnect
	c.mu.Unlock()
	_ = c.Close()
	if onDisconnect != nil {
		onDisconnect(err)
	}
}

func (c *Client) ready() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.session.UserID == "" {
		return ErrNotAuthenticated
	}
	return nil
}

func (c *Client) userID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.UserID
}

func (c *Client) presence() ports.Presence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ports.Presence{UserID: c.session.UserID, SessionID: c.sid, Username: c.session.Username}
}

func (c *Client) deliver(msg ports.MatchMessage) {
	c.mu.Lock()
	fn, closed := c.handlers.OnMatchMessage, c.closed
	c.mu.Unlock()
	if fn != nil && !closed {
		fn(msg)
	}
}

func (c *Client) presenceChanged(matchID string, joins, leaves []ports.Presence) {
	c.mu.Lock()
	fn, closed := c.handlers.OnPresenceChange, c.closed
	c.mu.Unlock()
	if fn != nil && !closed {
		fn(matchID, joins, leaves)
	}
}
