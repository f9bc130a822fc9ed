package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/crystalrace/crystal-server-go/internal/config"
	"github.com/crystalrace/crystal-server-go/internal/match"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Client message types.
const (
	MsgCreateMatch  = "create_match"
	MsgWatch        = "watch"
	MsgUnwatch      = "unwatch"
	MsgSubmit       = "submit"
	MsgSnapshot     = "snapshot"
	MsgLegalActions = "legal_actions"
	MsgListMatches  = "list_matches"
)

// Server message types.
const (
	MsgMatchCreated = "match_created"
	MsgWatching     = "watching"
	MsgResult       = "result"
	MsgUpdate       = "update"
	MsgMatches      = "matches"
	MsgError        = "error"
)

// WSMessage is the envelope for every websocket frame. Replies echo the
// request id of the message they answer.
type WSMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	MatchID   string          `json:"match_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type errorData struct {
	Error string `json:"error"`
}

// WebSocketServer serves match traffic over websockets.
type WebSocketServer struct {
	mgr      *match.Manager
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewWebSocketServer creates a websocket front end for mgr. An empty
// origin list accepts every origin.
func NewWebSocketServer(cfg config.WebSocketConfig, mgr *match.Manager, logger *zap.Logger) *WebSocketServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}
	return &WebSocketServer{
		mgr:    mgr,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Handler routes /ws to the websocket endpoint and /healthz to a liveness
// probe.
func (s *WebSocketServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":         "ok",
			"active_matches": s.mgr.ActiveCount(),
			"clients":        s.ClientCount(),
		})
	})
	return mux
}

// ClientCount returns the number of connected clients.
func (s *WebSocketServer) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// CloseAll disconnects every client.
func (s *WebSocketServer) CloseAll() {
	s.mu.Lock()
	clients := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		_ = c.conn.Close()
	}
}

// StartWebSocketServer serves srv until it is shut down. A clean shutdown
// is not an error.
func StartWebSocketServer(srv *http.Server, logger *zap.Logger) error {
	logger.Info("starting WebSocket server", zap.String("address", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// NewHTTPServer wraps the websocket handler in an http.Server.
func NewHTTPServer(cfg config.WebSocketConfig, ws *WebSocketServer) *http.Server {
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

type wsClient struct {
	server *WebSocketServer
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *zap.Logger

	mu      sync.Mutex
	watches map[string]*subscription
}

type subscription struct {
	cancel func()
}

func (s *WebSocketServer) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{
		server:  s,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		logger:  s.logger.With(zap.String("remote", r.RemoteAddr)),
		watches: make(map[string]*subscription),
	}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	c.logger.Debug("websocket client connected")

	go c.writePump()
	go c.readPump()
}

func (c *wsClient) readPump() {
	defer func() {
		c.unwatchAll()
		c.server.mu.Lock()
		delete(c.server.clients, c)
		c.server.mu.Unlock()
		close(c.done)
		_ = c.conn.Close()
		c.logger.Debug("websocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(WSMessage{}, MsgError, errorData{Error: "malformed message: " + err.Error()})
			continue
		}
		c.handle(msg)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue hands a frame to the writer. Frames for a client whose buffer is
// full are dropped.
func (c *wsClient) enqueue(frame []byte) {
	select {
	case <-c.done:
	case c.send <- frame:
	default:
		c.logger.Warn("websocket send buffer full, dropping message")
	}
}

func (c *wsClient) reply(req WSMessage, typ string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.logger.Error("failed to encode websocket reply", zap.String("type", typ), zap.Error(err))
		return
	}
	frame, err := json.Marshal(WSMessage{Type: typ, RequestID: req.RequestID, MatchID: req.MatchID, Data: raw})
	if err != nil {
		return
	}
	c.enqueue(frame)
}

func (c *wsClient) fail(req WSMessage, err error) {
	c.reply(req, MsgError, errorData{Error: err.Error()})
}

func (c *wsClient) handle(msg WSMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic handling websocket message",
				zap.String("type", msg.Type),
				zap.Any("panic", r),
			)
			c.fail(msg, errors.New("internal server error"))
		}
	}()

	ctx := context.Background()
	mgr := c.server.mgr

	switch msg.Type {
	case MsgCreateMatch:
		var req CreateMatchRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.fail(msg, err)
			return
		}
		mt, creds, err := mgr.CreateMatch(ctx, req.specs())
		if err != nil {
			c.fail(msg, err)
			return
		}
		msg.MatchID = mt.ID
		if err := c.watch(mt.ID); err != nil {
			c.fail(msg, err)
			return
		}
		snap, err := mgr.Snapshot(ctx, mt.ID)
		if err != nil {
			c.fail(msg, err)
			return
		}
		c.reply(msg, MsgMatchCreated, CreateMatchResponse{
			MatchID:     mt.ID,
			Credentials: credentialViews(creds),
			Snapshot:    NewSnapshotView(snap),
		})

	case MsgWatch:
		if err := c.watch(msg.MatchID); err != nil {
			c.fail(msg, err)
			return
		}
		snap, err := mgr.Snapshot(ctx, msg.MatchID)
		if err != nil {
			c.fail(msg, err)
			return
		}
		c.reply(msg, MsgWatching, NewSnapshotView(snap))

	case MsgUnwatch:
		c.unwatch(msg.MatchID)
		c.reply(msg, MsgUnwatch, struct{}{})

	case MsgSubmit:
		var req SubmitRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.fail(msg, err)
			return
		}
		if req.MatchID == "" {
			req.MatchID = msg.MatchID
		}
		msg.MatchID = req.MatchID
		action, err := ParseAction(req.Action)
		if err != nil {
			c.fail(msg, err)
			return
		}
		res, err := mgr.Submit(ctx, req.MatchID, req.PlayerID, req.Secret, action)
		if err != nil {
			c.fail(msg, err)
			return
		}
		c.reply(msg, MsgResult, NewResultView(res))

	case MsgSnapshot:
		snap, err := mgr.Snapshot(ctx, msg.MatchID)
		if err != nil {
			c.fail(msg, err)
			return
		}
		c.reply(msg, MsgSnapshot, NewSnapshotView(snap))

	case MsgLegalActions:
		var req MatchRequest
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				c.fail(msg, err)
				return
			}
		}
		actions, err := mgr.LegalActions(msg.MatchID, req.PlayerID)
		if err != nil {
			c.fail(msg, err)
			return
		}
		c.reply(msg, MsgLegalActions, LegalActionsResponse{
			MatchID:  msg.MatchID,
			PlayerID: req.PlayerID,
			Actions:  actionViews(actions),
		})

	case MsgListMatches:
		summaries := mgr.List()
		views := make([]SummaryView, 0, len(summaries))
		for _, s := range summaries {
			views = append(views, summaryView(s))
		}
		c.reply(msg, MsgMatches, views)

	default:
		c.fail(msg, fmt.Errorf("unknown message type %q", msg.Type))
	}
}

// watch forwards the updates of matchID to the client until the match ends,
// the client unwatches or disconnects.
func (c *wsClient) watch(matchID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.watches[matchID]; ok {
		return nil
	}
	updates, cancel, err := c.server.mgr.Subscribe(matchID)
	if err != nil {
		return err
	}
	sub := &subscription{cancel: cancel}
	c.watches[matchID] = sub

	go func() {
		for u := range updates {
			c.reply(WSMessage{MatchID: matchID}, MsgUpdate, NewUpdateView(u))
		}
		c.mu.Lock()
		if c.watches[matchID] == sub {
			delete(c.watches, matchID)
		}
		c.mu.Unlock()
	}()
	return nil
}

func (c *wsClient) unwatch(matchID string) {
	c.mu.Lock()
	sub, ok := c.watches[matchID]
	delete(c.watches, matchID)
	c.mu.Unlock()
	if ok {
		sub.cancel()
	}
}

func (c *wsClient) unwatchAll() {
	c.mu.Lock()
	cancels := make([]func(), 0, len(c.watches))
	for id, sub := range c.watches {
		cancels = append(cancels, sub.cancel)
		delete(c.watches, id)
	}
	c.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}
