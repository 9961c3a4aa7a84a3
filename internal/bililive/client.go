// Package bililive implements the upstream session over the bilibili
// open-live platform: signed REST calls to start and keep an app session
// alive, and the danmaku websocket delivering the room's events.
package bililive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sakurairo/danmaku-relay/internal/event"
	"github.com/sakurairo/danmaku-relay/internal/session"
)

// DefaultAPIBase is the open platform endpoint.
const DefaultAPIBase = "https://live-open.biliapi.com"

const (
	// wsHeartbeatInterval paces the websocket heartbeat; the server drops
	// the connection after roughly a minute of silence.
	wsHeartbeatInterval = 30 * time.Second

	// appHeartbeatInterval paces the REST app heartbeat that keeps the
	// open-live app session valid.
	appHeartbeatInterval = 20 * time.Second

	authReplyTimeout = 10 * time.Second
)

// Commands carried by op-5 packets that map to normalized event kinds.
const (
	cmdDanmaku   = "LIVE_OPEN_PLATFORM_DM"
	cmdGift      = "LIVE_OPEN_PLATFORM_SEND_GIFT"
	cmdGuard     = "LIVE_OPEN_PLATFORM_GUARD"
	cmdSuperChat = "LIVE_OPEN_PLATFORM_SUPER_CHAT"
	cmdLike      = "LIVE_OPEN_PLATFORM_LIKE"
)

func kindForCmd(cmd string) (string, bool) {
	switch cmd {
	case cmdDanmaku:
		return event.TypeDanmaku, true
	case cmdGift:
		return event.TypeGift, true
	case cmdGuard:
		return event.TypeGuard, true
	case cmdSuperChat:
		return event.TypeSuperChat, true
	case cmdLike:
		return event.TypeLike, true
	}
	return "", false
}

// Dialer opens open-live sessions. It implements session.Dialer.
type Dialer struct {
	apiBase    string
	httpClient *http.Client
	wsDialer   *websocket.Dialer
	logger     *slog.Logger
	nonce      func() string
	now        func() time.Time
}

// DialerOption configures a Dialer.
type DialerOption func(*Dialer)

// WithAPIBase overrides the open platform endpoint (for testing).
func WithAPIBase(base string) DialerOption {
	return func(d *Dialer) { d.apiBase = base }
}

// WithHTTPClient sets the client used for the signed REST calls.
func WithHTTPClient(client *http.Client) DialerOption {
	return func(d *Dialer) { d.httpClient = client }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DialerOption {
	return func(d *Dialer) { d.logger = logger }
}

// NewDialer creates a Dialer against the production open platform.
func NewDialer(opts ...DialerOption) *Dialer {
	d := &Dialer{
		apiBase:    DefaultAPIBase,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		wsDialer:   websocket.DefaultDialer,
		logger:     slog.Default(),
		nonce:      func() string { return uuid.NewString() },
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// apiResponse is the common envelope of every open platform response.
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type startData struct {
	GameInfo struct {
		GameID string `json:"game_id"`
	} `json:"game_info"`
	WebsocketInfo struct {
		AuthBody string   `json:"auth_body"`
		WSSLink  []string `json:"wss_link"`
	} `json:"websocket_info"`
	AnchorInfo struct {
		RoomID int64  `json:"room_id"`
		UName  string `json:"uname"`
	} `json:"anchor_info"`
}

// Dial starts an app session and connects the danmaku websocket. The
// returned session keeps both heartbeats running until Close.
func (d *Dialer) Dial(ctx context.Context, creds session.Credentials) (session.Session, error) {
	var start startData
	err := d.call(ctx, creds, "/v2/app/start", map[string]any{
		"code":   creds.RoomOwnerAuthCode,
		"app_id": creds.AppID,
	}, &start)
	if err != nil {
		return nil, fmt.Errorf("app start: %w", err)
	}
	if len(start.WebsocketInfo.WSSLink) == 0 {
		return nil, fmt.Errorf("app start: no websocket link in response")
	}

	d.logger.Info("open-live app session started",
		"game_id", start.GameInfo.GameID,
		"room_id", start.AnchorInfo.RoomID,
		"anchor", start.AnchorInfo.UName,
	)

	conn, _, err := d.wsDialer.DialContext(ctx, start.WebsocketInfo.WSSLink[0], nil)
	if err != nil {
		d.endApp(creds, start.GameInfo.GameID)
		return nil, fmt.Errorf("dial websocket: %w", err)
	}

	s := &liveSession{
		dialer:   d,
		creds:    creds,
		gameID:   start.GameInfo.GameID,
		roomID:   start.AnchorInfo.RoomID,
		conn:     conn,
		events:   make(chan session.RawEvent, 64),
		stopCh:   make(chan struct{}),
		readDone: make(chan struct{}),
		logger:   d.logger,
	}

	if err := s.authenticate(start.WebsocketInfo.AuthBody); err != nil {
		conn.Close()
		d.endApp(creds, start.GameInfo.GameID)
		return nil, fmt.Errorf("websocket auth: %w", err)
	}

	s.wg.Add(2)
	go s.heartbeatLoop()
	go s.appHeartbeatLoop()
	go s.readLoop()

	return s, nil
}

// call issues a signed POST and decodes the enveloped response into out.
func (d *Dialer) call(ctx context.Context, creds session.Credentials, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiBase+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header = signHeaders(creds.AccessKeyID, creds.AccessKeySecret, payload, d.nonce(), d.now().Unix())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: http %d", path, resp.StatusCode)
	}

	var env apiResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	if env.Code != 0 {
		return fmt.Errorf("%s: code %d: %s", path, env.Code, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s: decode data: %w", path, err)
		}
	}
	return nil
}

// endApp is best-effort: it runs during teardown paths where the caller's
// context may already be gone.
func (d *Dialer) endApp(creds session.Credentials, gameID string) {
	if gameID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := d.call(ctx, creds, "/v2/app/end", map[string]any{
		"app_id":  creds.AppID,
		"game_id": gameID,
	}, nil)
	if err != nil {
		d.logger.Warn("app end", "error", err)
	}
}

// liveSession is one live websocket connection. It implements
// session.Session.
type liveSession struct {
	dialer *Dialer
	creds  session.Credentials
	gameID string
	roomID int64
	conn   *websocket.Conn
	logger *slog.Logger

	events chan session.RawEvent
	stopCh chan struct{}
	wg     sync.WaitGroup // heartbeat loops

	writeMu sync.Mutex

	mu        sync.Mutex
	err       error
	closeOnce sync.Once
	readDone  chan struct{}
}

func (s *liveSession) Events() <-chan session.RawEvent { return s.events }

func (s *liveSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// authenticate sends the auth packet and waits for the server's reply.
func (s *liveSession) authenticate(authBody string) error {
	if err := s.writePacket(packet{Op: opAuth, Body: []byte(authBody)}); err != nil {
		return err
	}

	s.conn.SetReadDeadline(time.Now().Add(authReplyTimeout))
	defer s.conn.SetReadDeadline(time.Time{})

	_, frame, err := s.conn.ReadMessage()
	if err != nil {
		return err
	}
	pkts, err := decodePackets(frame)
	if err != nil {
		return err
	}
	for _, p := range pkts {
		if p.Op == opAuthReply {
			s.logger.Debug("websocket authenticated", "room_id", s.roomID)
			return nil
		}
	}
	return fmt.Errorf("expected auth reply, got %d packet(s)", len(pkts))
}

func (s *liveSession) writePacket(p packet) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, encodePacket(p))
}

// readLoop owns the receive side: it decodes every frame, acknowledges
// heartbeat replies, and turns op-5 packets into raw events. It closes the
// events channel on exit.
func (s *liveSession) readLoop() {
	defer func() {
		close(s.events)
		close(s.readDone)
	}()

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
				// Expected: Close tore the connection down.
			default:
				s.setErr(fmt.Errorf("read websocket: %w", err))
			}
			return
		}

		pkts, err := decodePackets(frame)
		if err != nil {
			s.logger.Warn("undecodable frame skipped", "error", err)
			continue
		}

		for _, p := range pkts {
			switch p.Op {
			case opHeartbeatReply:
				s.logger.Debug("heartbeat acknowledged", "room_id", s.roomID)
			case opMessage:
				s.dispatch(p.Body)
			case opAuthReply:
				// Already consumed during authenticate; ignore stragglers.
			default:
				s.logger.Debug("unhandled op", "op", p.Op)
			}
		}
	}
}

// dispatch routes one command payload into the events channel. Commands
// outside the five relayed kinds are ignored.
func (s *liveSession) dispatch(body []byte) {
	var env struct {
		Cmd  string          `json:"cmd"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		s.logger.Warn("undecodable command skipped", "error", err)
		return
	}

	kind, ok := kindForCmd(env.Cmd)
	if !ok {
		s.logger.Debug("command ignored", "cmd", env.Cmd)
		return
	}

	select {
	case s.events <- session.RawEvent{Kind: kind, Payload: env.Data}:
	case <-s.stopCh:
	}
}

func (s *liveSession) heartbeatLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(wsHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.writePacket(packet{Op: opHeartbeat}); err != nil {
				s.logger.Warn("websocket heartbeat", "error", err)
				return
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *liveSession) appHeartbeatLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(appHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := s.dialer.call(ctx, s.creds, "/v2/app/heartbeat", map[string]any{
				"game_id": s.gameID,
			}, nil)
			cancel()
			if err != nil {
				s.logger.Warn("app heartbeat", "error", err)
			}
		case <-s.stopCh:
			return
		}
	}
}

// Close stops both heartbeat loops, closes the websocket, ends the app
// session, and waits for the read loop to drain, bounded by ctx. Safe to
// call more than once.
func (s *liveSession) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.stopCh)

		s.writeMu.Lock()
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		s.conn.Close()

		s.wg.Wait()
		s.dialer.endApp(s.creds, s.gameID)
	})

	// The read loop exits once the connection is closed; after that the
	// session can emit nothing further.
	select {
	case <-s.readDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *liveSession) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
