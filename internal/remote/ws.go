package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Kalinx99/TelScan/internal/config"
	"github.com/Kalinx99/TelScan/internal/domain"
	"github.com/Kalinx99/TelScan/internal/logging"
	"github.com/Kalinx99/TelScan/internal/version"
)

// ErrSessionClosed is returned for calls made after the connection died.
var ErrSessionClosed = errors.New("remote: session closed")

const (
	handshakeTimeout = 15 * time.Second
	maxPayload       = 4 * 1024 * 1024
	eventBuffer      = 64
)

// WSDialer dials the gateway daemon over WebSocket and drives the
// interactive authorization flow when the stored session is fresh.
type WSDialer struct {
	cfg    config.GatewayConfig
	prompt CodePrompt
	log    *logging.Logger
}

// NewWSDialer creates a dialer for the configured gateway daemon.
func NewWSDialer(cfg config.GatewayConfig, prompt CodePrompt, log *logging.Logger) *WSDialer {
	return &WSDialer{cfg: cfg, prompt: prompt, log: log.Sub("remote")}
}

type connectParams struct {
	MinProtocol int    `json:"minProtocol"`
	MaxProtocol int    `json:"maxProtocol"`
	Token       string `json:"token,omitempty"`
	APIID       int    `json:"apiId,omitempty"`
	APIHash     string `json:"apiHash,omitempty"`
	Client      string `json:"client"`
	Version     string `json:"version"`
}

type authStatus struct {
	Authorized bool `json:"authorized"`
}

// Dial connects, authenticates against the daemon, and completes Telegram
// authorization if the stored session is not yet signed in. The sign-in
// path blocks on the code prompt.
func (d *WSDialer) Dial(ctx context.Context) (Session, error) {
	u := url.URL{Scheme: "ws", Host: d.cfg.Addr, Path: "/ws"}
	d.log.Info().Str("addr", d.cfg.Addr).Msg("dialing gateway")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dialing gateway %s: %w", d.cfg.Addr, err)
	}
	conn.SetReadLimit(maxPayload)

	s := &wsSession{
		conn:    conn,
		log:     d.log,
		pending: make(map[string]chan Frame),
		events:  make(chan domain.MessageEvent, eventBuffer),
		done:    make(chan struct{}),
	}

	if err := s.handshake(ctx, d.cfg); err != nil {
		conn.Close()
		return nil, err
	}

	if err := d.authorize(ctx, s); err != nil {
		conn.Close()
		return nil, err
	}

	go s.readLoop()
	return s, nil
}

// authorize checks the session's sign-in state and walks the code /
// two-factor flow when needed. Runs before the read loop starts, so the
// call helpers read responses synchronously.
func (d *WSDialer) authorize(ctx context.Context, s *wsSession) error {
	var status authStatus
	if err := s.callSync(ctx, "auth.status", nil, &status); err != nil {
		return fmt.Errorf("checking authorization: %w", err)
	}
	if status.Authorized {
		return nil
	}

	if d.prompt == nil {
		return errors.New("session not authorized and no code prompt available")
	}

	d.log.Info().Str("phone", d.cfg.Phone).Msg("session not authorized, requesting login code")
	if err := s.callSync(ctx, "auth.sendCode", map[string]any{"phone": d.cfg.Phone}, nil); err != nil {
		return fmt.Errorf("requesting login code: %w", err)
	}

	code, err := d.prompt("login code sent to " + d.cfg.Phone)
	if err != nil {
		return fmt.Errorf("reading login code: %w", err)
	}

	err = s.callSync(ctx, "auth.signIn", map[string]any{"phone": d.cfg.Phone, "code": code}, nil)
	if err != nil {
		re, ok := AsError(err)
		if !ok || re.Code != "SESSION_PASSWORD_NEEDED" {
			return fmt.Errorf("signing in: %w", err)
		}
		password, perr := d.prompt("two-factor password")
		if perr != nil {
			return fmt.Errorf("reading two-factor password: %w", perr)
		}
		if err := s.callSync(ctx, "auth.checkPassword", map[string]any{"password": password}, nil); err != nil {
			return fmt.Errorf("checking two-factor password: %w", err)
		}
	}

	d.log.Info().Msg("authorization complete")
	return nil
}

// wsSession implements Session over a gateway WebSocket connection.
type wsSession struct {
	conn *websocket.Conn
	log  *logging.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan Frame

	events chan domain.MessageEvent

	closeOnce sync.Once
	done      chan struct{}
}

func (s *wsSession) Events() <-chan domain.MessageEvent { return s.events }
func (s *wsSession) Done() <-chan struct{}              { return s.done }

// handshake sends the connect request and waits for the hello response.
func (s *wsSession) handshake(ctx context.Context, cfg config.GatewayConfig) error {
	s.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer s.conn.SetReadDeadline(time.Time{})

	params := connectParams{
		MinProtocol: ProtocolVersion,
		MaxProtocol: ProtocolVersion,
		Token:       cfg.Token,
		APIID:       cfg.APIID,
		APIHash:     cfg.APIHash,
		Client:      "telscan",
		Version:     version.Version,
	}
	return s.callSync(ctx, "connect", params, nil)
}

// callSync performs one request/response round-trip reading directly from
// the socket. Only valid before the read loop starts.
func (s *wsSession) callSync(ctx context.Context, method string, params, out any) error {
	req, err := NewRequest(uuid.New().String(), method, params)
	if err != nil {
		return err
	}
	if err := s.writeFrame(req); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var f Frame
		if err := s.readFrame(&f); err != nil {
			return err
		}
		// Skip unsolicited events arriving before the response.
		if f.Type != FrameTypeResponse || f.ID != req.ID {
			continue
		}
		return decodeResponse(f, out)
	}
}

// Call performs one typed request/response round-trip through the read
// loop's pending map.
func (s *wsSession) Call(ctx context.Context, method string, params, out any) error {
	req, err := NewRequest(uuid.New().String(), method, params)
	if err != nil {
		return err
	}

	ch := make(chan Frame, 1)
	s.pendingMu.Lock()
	s.pending[req.ID] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, req.ID)
		s.pendingMu.Unlock()
	}()

	if err := s.writeFrame(req); err != nil {
		return err
	}

	select {
	case f := <-ch:
		return decodeResponse(f, out)
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func decodeResponse(f Frame, out any) error {
	if f.OK == nil || !*f.OK {
		shape := ErrorShape{Code: "UNKNOWN", Message: "malformed error response"}
		if f.Error != nil {
			shape = *f.Error
		}
		return classify(shape.Code, shape.Message, shape.RetryAfter)
	}
	if out == nil || len(f.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(f.Payload, out)
}

func (s *wsSession) writeFrame(f Frame) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(f)
}

func (s *wsSession) readFrame(f *Frame) error {
	_, msg, err := s.conn.ReadMessage()
	if err != nil {
		return err
	}
	return json.Unmarshal(msg, f)
}

// readLoop dispatches responses to pending calls and message events to
// the events channel until the connection dies.
func (s *wsSession) readLoop() {
	defer func() {
		s.closeOnce.Do(func() { close(s.done) })
		close(s.events)
		s.conn.Close()
	}()

	for {
		var f Frame
		if err := s.readFrame(&f); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Info().Msg("gateway closed connection")
			} else {
				s.log.Warn().Err(err).Msg("gateway read error")
			}
			return
		}

		switch f.Type {
		case FrameTypeResponse:
			s.pendingMu.Lock()
			ch, ok := s.pending[f.ID]
			s.pendingMu.Unlock()
			if ok {
				ch <- f
			}
		case FrameTypeEvent:
			if f.Event != "message.new" {
				s.log.Debug().Str("event", f.Event).Msg("ignoring gateway event")
				continue
			}
			var ev domain.MessageEvent
			if err := json.Unmarshal(f.Payload, &ev); err != nil {
				s.log.Warn().Err(err).Msg("malformed message event")
				continue
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		}
	}
}

func (s *wsSession) Resolve(ctx context.Context, ref string) (Entity, error) {
	var ent Entity
	err := s.Call(ctx, "peers.resolve", map[string]any{"ref": ref}, &ent)
	return ent, err
}

func (s *wsSession) Join(ctx context.Context, ref string) (Entity, error) {
	var ent Entity
	err := s.Call(ctx, "channels.join", map[string]any{"ref": ref}, &ent)
	return ent, err
}

func (s *wsSession) History(ctx context.Context, peerID, offsetID int64, limit int) ([]HistoryMessage, error) {
	var payload struct {
		Messages []HistoryMessage `json:"messages"`
	}
	err := s.Call(ctx, "messages.history", map[string]any{
		"peer":     peerID,
		"offsetId": offsetID,
		"limit":    limit,
	}, &payload)
	return payload.Messages, err
}

func (s *wsSession) ProfilePhoto(ctx context.Context, peerID int64) ([]byte, error) {
	var payload struct {
		Data []byte `json:"data"`
	}
	err := s.Call(ctx, "peers.photo", map[string]any{"peer": peerID}, &payload)
	return payload.Data, err
}

// Close sends a close frame and tears the connection down. Marking done
// first unblocks any in-flight calls and the event dispatch.
func (s *wsSession) Close(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })
	s.writeMu.Lock()
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down"))
	s.writeMu.Unlock()
	return s.conn.Close()
}
