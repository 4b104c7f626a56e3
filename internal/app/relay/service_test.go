package relay

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"loteria/internal/app"
	"loteria/internal/domain"
	"loteria/internal/ports"
	"loteria/internal/ports/loopback"
)

type eventLog struct {
	mu     sync.Mutex
	events []app.Event
}

func (l *eventLog) record(ev app.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) count(kind app.EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Kind() == kind {
			n++
		}
	}
	return n
}

func (l *eventLog) last(kind app.EventKind) app.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Kind() == kind {
			return l.events[i]
		}
	}
	return nil
}

var allKinds = []app.EventKind{
	app.EventPlayerJoined, app.EventPlayerLeft, app.EventMatchStarted, app.EventStateSnapshot,
	app.EventCardDrawn, app.EventMarkAccepted, app.EventClaimAccepted, app.EventClaimRejected, app.EventError,
}

type fakePreferences struct {
	prefs ports.Preferences
	err   error
}

func (f fakePreferences) LoadPreferences(context.Context, string) (ports.Preferences, error) {
	return f.prefs, f.err
}

type client struct {
	svc       *Service
	transport *loopback.Client
	log       *eventLog
}

func newClient(t *testing.T, hub *loopback.Hub, device string, opts Options) *client {
	t.Helper()
	engine := app.NewEngine(app.DefaultEngineConfig(), rand.New(rand.NewSource(int64(len(device)))))
	// The ticker never fires on its own; tests draw explicitly.
	opts.DrawInterval = time.Hour
	opts.ReactionDelay = -1
	transport := hub.NewClient()
	svc := NewService(engine, transport, opts)
	log := &eventLog{}
	for _, kind := range allKinds {
		svc.On(kind, log.record)
	}
	if err := svc.Connect(context.Background(), app.Identity{DeviceID: device, Name: device}); err != nil {
		t.Fatalf("Connect(%s): %v", device, err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return &client{svc: svc, transport: transport, log: log}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// hostWithPeer returns a hosted match joined by one peer that has already
// learned the host.
func hostWithPeer(t *testing.T) (*client, *client, string) {
	t.Helper()
	return hostWithPeerOn(t, loopback.NewHub())
}

func hostWithPeerOn(t *testing.T, hub *loopback.Hub) (*client, *client, string) {
	t.Helper()
	ctx := context.Background()
	host := newClient(t, hub, "ana", Options{})
	matchID, err := host.svc.CreateOrJoinMatch(ctx, app.MatchRequest{})
	if err != nil {
		t.Fatalf("host CreateOrJoinMatch: %v", err)
	}
	peer := newClient(t, hub, "beto", Options{})
	if _, err := peer.svc.CreateOrJoinMatch(ctx, app.MatchRequest{MatchID: matchID}); err != nil {
		t.Fatalf("peer CreateOrJoinMatch: %v", err)
	}
	// Flush the join work queued on the host loop.
	hostDo(t, host, func(*app.Authority) {})
	waitFor(t, "peer to learn the host", func() bool {
		st := peer.svc.State()
		return peer.svc.HostID() == host.svc.LocalPlayerID() && st != nil && len(st.Players) == 2
	})
	return host, peer, matchID
}

// hostDo runs fn on the host's authority loop.
func hostDo(t *testing.T, host *client, fn func(*app.Authority)) {
	t.Helper()
	a := host.svc.currentAuthority()
	if a == nil {
		t.Fatalf("host has no authority")
	}
	if err := a.Do(context.Background(), func() { fn(a) }); err != nil {
		t.Fatalf("Do: %v", err)
	}
}

// drawRow makes the first row of a player's board drawn without marking it.
func drawRow(t *testing.T, host *client, playerID string) []int {
	t.Helper()
	var row []int
	hostDo(t, host, func(a *app.Authority) {
		a.Update(func(st *domain.GameState) *domain.GameState {
			next := st.Clone()
			p, _ := next.Player(playerID)
			for c := 0; c < domain.BoardSize; c++ {
				id := p.Board[c].CardID
				row = append(row, id)
				if !next.IsDrawn(id) {
					next.DrawnCards = append(next.DrawnCards, id)
				}
			}
			return next
		})
	})
	return row
}

func startMatch(t *testing.T, host, peer *client) {
	t.Helper()
	if err := peer.svc.SendIntent(context.Background(), app.StartIntent{}); err != nil {
		t.Fatalf("SendIntent(start): %v", err)
	}
	waitFor(t, "match start on peer", func() bool { return peer.log.count(app.EventMatchStarted) == 1 })
}

func TestHostAloneCannotStart(t *testing.T) {
	hub := loopback.NewHub()
	ctx := context.Background()
	host := newClient(t, hub, "ana", Options{})
	if _, err := host.svc.CreateOrJoinMatch(ctx, app.MatchRequest{}); err != nil {
		t.Fatalf("CreateOrJoinMatch: %v", err)
	}
	if !host.svc.IsHost() {
		t.Fatalf("creator should host")
	}

	if err := host.svc.SendIntent(ctx, app.StartIntent{}); err != nil {
		t.Fatalf("SendIntent: %v", err)
	}
	ev, ok := host.log.last(app.EventError).(app.ErrorEvent)
	if !ok {
		t.Fatalf("expected an error event")
	}
	if ev.Code != app.ErrCodeNotEnoughPlayers {
		t.Errorf("error code = %q, want %q", ev.Code, app.ErrCodeNotEnoughPlayers)
	}
	if st := host.svc.State(); st.Status != domain.StatusWaiting {
		t.Errorf("status = %s, want waiting", st.Status)
	}
	if host.log.count(app.EventMatchStarted) != 0 {
		t.Errorf("match should not start")
	}
}

func TestPeerJoinPublishesRoster(t *testing.T) {
	host, peer, _ := hostWithPeer(t)

	waitFor(t, "host to seat the peer", func() bool {
		return host.svc.State().PlayerIndex(peer.svc.LocalPlayerID()) == 1
	})
	if host.log.count(app.EventPlayerJoined) != 1 {
		t.Errorf("host PlayerJoined events = %d, want 1", host.log.count(app.EventPlayerJoined))
	}
	st := peer.svc.State()
	if st.HostID != host.svc.LocalPlayerID() || st.Players[0].ID != host.svc.LocalPlayerID() {
		t.Errorf("peer snapshot host = %s, players %+v", st.HostID, st.Players)
	}
	if peer.svc.IsHost() {
		t.Errorf("joiner should not host")
	}
	if p, _ := st.Player(peer.svc.LocalPlayerID()); p.Name != "beto" || !p.IsHuman || !p.IsConnected {
		t.Errorf("peer seat = %+v", p)
	}
}

func TestJoinBeforePresenceAnnouncesOnce(t *testing.T) {
	host := newClient(t, loopback.NewHub(), "ana", Options{})
	matchID, err := host.svc.CreateOrJoinMatch(context.Background(), app.MatchRequest{})
	if err != nil {
		t.Fatalf("CreateOrJoinMatch: %v", err)
	}
	carla := ports.Presence{UserID: "carla-id", SessionID: "s-carla", Username: "carla"}

	join, err := NewMessage(MsgJoin, JoinPayload{Name: "Carla"}, carla.UserID, time.Now())
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	data, _ := Encode(join)
	host.svc.handleMatchMessage(ports.MatchMessage{MatchID: matchID, OpCode: OpIntent, Data: data, Sender: carla})
	hostDo(t, host, func(*app.Authority) {})
	host.svc.handlePresenceChange(matchID, []ports.Presence{carla}, nil)
	hostDo(t, host, func(*app.Authority) {})

	if n := host.log.count(app.EventPlayerJoined); n != 1 {
		t.Fatalf("PlayerJoined events = %d, want 1", n)
	}
	st := host.svc.State()
	if p, ok := st.Player(carla.UserID); !ok || p.Name != "Carla" || len(st.Players) != 2 {
		t.Fatalf("roster = %+v", st.Players)
	}
}

func TestPeerStartsAndFollowsDraws(t *testing.T) {
	host, peer, _ := hostWithPeer(t)
	startMatch(t, host, peer)

	if host.log.count(app.EventMatchStarted) != 1 {
		t.Errorf("host MatchStarted = %d, want 1", host.log.count(app.EventMatchStarted))
	}
	if st := peer.svc.State(); st.Status != domain.StatusPlaying {
		t.Fatalf("peer status = %s", st.Status)
	}

	hostDo(t, host, func(a *app.Authority) { a.Tick() })
	drawn, ok := peer.log.last(app.EventCardDrawn).(app.CardDrawnEvent)
	if !ok {
		t.Fatalf("peer missed the draw")
	}
	if want := host.svc.State().CurrentCard; want == nil || drawn.Card.ID != want.ID {
		t.Errorf("peer drew %v, host current %v", drawn.Card, want)
	}
	if want := len(domain.Catalog) - 1; drawn.Remaining != want {
		t.Errorf("remaining = %d, want %d", drawn.Remaining, want)
	}
	if got := len(peer.svc.State().DrawnCards); got != 1 {
		t.Errorf("peer snapshot drawn = %d, want 1", got)
	}
}

func TestSecondStartRejectedForRequesterOnly(t *testing.T) {
	host, peer, _ := hostWithPeer(t)
	startMatch(t, host, peer)

	if err := peer.svc.SendIntent(context.Background(), app.StartIntent{}); err != nil {
		t.Fatalf("SendIntent: %v", err)
	}
	waitFor(t, "error on peer", func() bool { return peer.log.count(app.EventError) == 1 })
	if ev := peer.log.last(app.EventError).(app.ErrorEvent); ev.Code != app.ErrCodeBadRequest {
		t.Errorf("code = %q, want %q", ev.Code, app.ErrCodeBadRequest)
	}
	if host.log.count(app.EventError) != 0 {
		t.Errorf("host should not see the peer's error")
	}
}

func TestPeerMarksAndWins(t *testing.T) {
	host, peer, _ := hostWithPeer(t)
	startMatch(t, host, peer)
	ctx := context.Background()
	peerID := peer.svc.LocalPlayerID()

	row := drawRow(t, host, peerID)
	for _, id := range row {
		if err := peer.svc.SendIntent(ctx, app.MarkIntent{PlayerID: peerID, CardID: id}); err != nil {
			t.Fatalf("SendIntent(mark): %v", err)
		}
	}
	waitFor(t, "marks on host", func() bool { return host.log.count(app.EventMarkAccepted) == len(row) })

	if err := peer.svc.SendIntent(ctx, app.ClaimIntent{PlayerID: peerID}); err != nil {
		t.Fatalf("SendIntent(claim): %v", err)
	}
	waitFor(t, "win on peer", func() bool { return peer.log.count(app.EventClaimAccepted) == 1 })

	ev := peer.log.last(app.EventClaimAccepted).(app.ClaimAcceptedEvent)
	if ev.PlayerID != peerID || ev.Winner.ID != peerID {
		t.Errorf("winner = %s/%s, want %s", ev.PlayerID, ev.Winner.ID, peerID)
	}
	if !ev.Condition.Equal(domain.Line(domain.LineHorizontal)) {
		t.Errorf("matched = %v, want horizontal line", ev.Condition)
	}
	if host.log.count(app.EventClaimAccepted) != 1 {
		t.Errorf("host ClaimAccepted = %d, want 1", host.log.count(app.EventClaimAccepted))
	}
	waitFor(t, "finished snapshot on peer", func() bool {
		st := peer.svc.State()
		return st.Status == domain.StatusFinished && st.Winner != nil && st.Winner.ID == peerID
	})

	// A second claim after the win is rejected.
	if err := peer.svc.SendIntent(ctx, app.ClaimIntent{PlayerID: peerID}); err != nil {
		t.Fatalf("SendIntent(claim): %v", err)
	}
	waitFor(t, "rejection on peer", func() bool { return peer.log.count(app.EventClaimRejected) == 1 })
	if peer.log.count(app.EventClaimAccepted) != 1 {
		t.Errorf("win broadcast more than once")
	}
}

func TestHostIgnoresForeignAndMalformedIntents(t *testing.T) {
	host, peer, matchID := hostWithPeer(t)
	startMatch(t, host, peer)
	ctx := context.Background()
	hostID, peerID := host.svc.LocalPlayerID(), peer.svc.LocalPlayerID()

	hostRow := drawRow(t, host, hostID)
	peerRow := drawRow(t, host, peerID)

	forged, err := NewMessage(MsgMark, MarkPayload{PlayerID: hostID, CardID: hostRow[0]}, peerID, time.Now())
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	data, _ := Encode(forged)
	if err := peer.transport.SendToMatch(ctx, matchID, OpIntent, data, hostID); err != nil {
		t.Fatalf("SendToMatch: %v", err)
	}
	if err := peer.transport.SendToMatch(ctx, matchID, OpIntent, []byte("{not json"), hostID); err != nil {
		t.Fatalf("SendToMatch: %v", err)
	}
	if err := peer.svc.SendIntent(ctx, app.MarkIntent{PlayerID: peerID, CardID: peerRow[0]}); err != nil {
		t.Fatalf("SendIntent: %v", err)
	}
	waitFor(t, "legitimate mark", func() bool { return host.log.count(app.EventMarkAccepted) == 1 })

	st := host.svc.State()
	hostPlayer, _ := st.Player(hostID)
	if hostPlayer.Board[0].Marked {
		t.Errorf("peer marked the host's board")
	}
	if ev := host.log.last(app.EventMarkAccepted).(app.MarkAcceptedEvent); ev.PlayerID != peerID {
		t.Errorf("accepted mark for %s, want %s", ev.PlayerID, peerID)
	}
}

func TestPeerIgnoresNonHostEvents(t *testing.T) {
	hub := loopback.NewHub()
	_, peer, matchID := hostWithPeerOn(t, hub)
	ctx := context.Background()

	// A third member forging host traffic.
	intruder := newClient(t, hub, "caro", Options{})
	if _, err := intruder.svc.CreateOrJoinMatch(ctx, app.MatchRequest{MatchID: matchID}); err != nil {
		t.Fatalf("intruder join: %v", err)
	}
	before := peer.svc.State()

	fake := before.Clone()
	fake.Status = domain.StatusFinished
	msg, _ := NewMessage(MsgStateSnapshot, SnapshotPayload{State: fake}, intruder.svc.LocalPlayerID(), time.Now())
	data, _ := Encode(msg)
	if err := intruder.transport.SendToMatch(ctx, matchID, OpEvent, data, peer.svc.LocalPlayerID()); err != nil {
		t.Fatalf("SendToMatch: %v", err)
	}

	if got := peer.svc.State(); got.Status == domain.StatusFinished {
		t.Errorf("peer applied a snapshot from a non-host member")
	}
}

func TestPresenceLeaveMarksPlayerDisconnected(t *testing.T) {
	host, peer, _ := hostWithPeer(t)
	peerID := peer.svc.LocalPlayerID()

	peer.transport.Disconnect(errors.New("wifi lost"))

	waitFor(t, "peer marked disconnected", func() bool {
		p, ok := host.svc.State().Player(peerID)
		return ok && !p.IsConnected
	})
	if host.log.count(app.EventPlayerLeft) != 1 {
		t.Errorf("host PlayerLeft = %d, want 1", host.log.count(app.EventPlayerLeft))
	}

	ev, ok := peer.log.last(app.EventError).(app.ErrorEvent)
	if !ok || ev.Code != ErrCodeDisconnected {
		t.Errorf("peer error = %+v, want %s", ev, ErrCodeDisconnected)
	}
	if peer.svc.IsConnected() {
		t.Errorf("peer should report disconnected")
	}
	if err := peer.svc.SendIntent(context.Background(), app.StartIntent{}); !errors.Is(err, app.ErrNotConnected) {
		t.Errorf("SendIntent err = %v, want ErrNotConnected", err)
	}
}

func TestHostCloseLeavesPeerWithLastSnapshot(t *testing.T) {
	host, peer, _ := hostWithPeer(t)
	last := peer.svc.State()

	if err := host.svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if peer.log.count(app.EventPlayerLeft) != 1 {
		t.Errorf("peer PlayerLeft = %d, want 1", peer.log.count(app.EventPlayerLeft))
	}
	if got := peer.svc.State(); got != last {
		t.Errorf("peer snapshot changed after host left")
	}
	if err := host.svc.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestServiceErrors(t *testing.T) {
	hub := loopback.NewHub()
	ctx := context.Background()

	engine := app.NewEngine(app.DefaultEngineConfig(), nil)
	idle := NewService(engine, hub.NewClient(), Options{DrawInterval: time.Hour})
	if err := idle.SendIntent(ctx, app.StartIntent{}); !errors.Is(err, app.ErrNotConnected) {
		t.Errorf("SendIntent before Connect err = %v", err)
	}
	if _, err := idle.CreateOrJoinMatch(ctx, app.MatchRequest{}); !errors.Is(err, app.ErrNotConnected) {
		t.Errorf("CreateOrJoinMatch before Connect err = %v", err)
	}

	bad := NewService(engine, hub.NewClient(), Options{DrawInterval: time.Second, ReactionDelay: 2 * time.Second})
	if err := bad.Connect(ctx, app.Identity{DeviceID: "x"}); !errors.Is(err, app.ErrInvalidTiming) {
		t.Errorf("Connect with bad timing err = %v", err)
	}

	c := newClient(t, hub, "dora", Options{})
	if err := c.svc.SendIntent(ctx, app.StartIntent{}); !errors.Is(err, app.ErrNoMatch) {
		t.Errorf("SendIntent without match err = %v", err)
	}
	if _, err := c.svc.CreateOrJoinMatch(ctx, app.MatchRequest{MatchID: "missing"}); !errors.Is(err, loopback.ErrMatchNotFound) {
		t.Errorf("join missing match err = %v", err)
	}
	if c.svc.MatchID() != "" {
		t.Errorf("failed join left match id %q", c.svc.MatchID())
	}
	if _, err := c.svc.CreateOrJoinMatch(ctx, app.MatchRequest{}); err != nil {
		t.Fatalf("CreateOrJoinMatch: %v", err)
	}
	if _, err := c.svc.CreateOrJoinMatch(ctx, app.MatchRequest{}); !errors.Is(err, app.ErrAlreadyInMatch) {
		t.Errorf("second CreateOrJoinMatch err = %v", err)
	}
}

func TestPreferencesSeedHostedMatch(t *testing.T) {
	hub := loopback.NewHub()
	square := domain.Square(domain.SquareCorners)
	prefs := ports.DefaultPreferences()
	prefs.DisplayName = "La Jefa"
	prefs.TargetWin = &square

	host := newClient(t, hub, "ana", Options{Preferences: fakePreferences{prefs: prefs}})
	if _, err := host.svc.CreateOrJoinMatch(context.Background(), app.MatchRequest{}); err != nil {
		t.Fatalf("CreateOrJoinMatch: %v", err)
	}
	st := host.svc.State()
	if !st.TargetWin.Equal(square) {
		t.Errorf("target = %v, want %v", st.TargetWin, square)
	}
	if st.Players[0].Name != "La Jefa" {
		t.Errorf("host name = %q", st.Players[0].Name)
	}

	fallback := newClient(t, hub, "beto", Options{Preferences: fakePreferences{err: errors.New("storage down")}})
	if got := fallback.svc.Preferences(); !got.CalledCardFeedbackEnabled {
		t.Errorf("expected default preferences on load failure, got %+v", got)
	}
}
