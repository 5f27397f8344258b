package smartconnect

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SmartStream endpoints and protocol constants.
const (
	streamURI         = "wss://smartapisocket.angelone.in/smart-stream"
	heartbeatInterval = 10 * time.Second

	subscribeAction   = 1
	unsubscribeAction = 0

	ModeLTP       = 1
	ModeQuote     = 2
	ModeSnapQuote = 3

	ExchangeNSECM = 1
	ExchangeNSEFO = 2
	ExchangeBSECM = 3
)

// TickFrame is one decoded binary frame from the stream. Prices are paise.
type TickFrame struct {
	Mode              int
	ExchangeType      int
	Token             string
	SequenceNumber    int64
	ExchangeTimestamp int64 // epoch millis
	LastTradedPrice   int64
	LastTradedQty     int64 // quote mode and above
	VolumeToday       int64 // quote mode and above
}

// TokenListEntry groups tokens by exchange type for subscribe requests.
type TokenListEntry struct {
	ExchangeType int      `json:"exchangeType"`
	Tokens       []string `json:"tokens"`
}

// StreamConfig carries the four credentials the socket handshake requires
// plus reconnect policy.
type StreamConfig struct {
	AuthToken  string // JWT from Login
	APIKey     string
	ClientCode string
	FeedToken  string

	CorrelationID string
	MaxRetries    int           // default 3
	RetryDelay    time.Duration // default 5s
}

// Stream is a SmartStream websocket session. Subscriptions survive
// reconnects; decoded ticks are delivered through OnTick.
type Stream struct {
	cfg StreamConfig

	mu   sync.Mutex
	conn *websocket.Conn
	subs map[int][]TokenListEntry // mode -> entries
	done chan struct{}

	// OnTick receives every decoded data frame. Called from the read loop;
	// implementations must not block.
	OnTick func(TickFrame)
	// OnDisconnect fires after retries are exhausted.
	OnDisconnect func(err error)
}

// NewStream validates the handshake credentials and builds a session.
func NewStream(cfg StreamConfig) (*Stream, error) {
	if cfg.AuthToken == "" || cfg.APIKey == "" || cfg.ClientCode == "" || cfg.FeedToken == "" {
		return nil, errors.New("smartconnect: stream requires auth token, api key, client code and feed token")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	return &Stream{cfg: cfg, subs: make(map[int][]TokenListEntry), done: make(chan struct{})}, nil
}

// Connect dials the stream and starts the read and heartbeat loops. The
// loops stop when ctx is cancelled or Close is called.
func (s *Stream) Connect(ctx context.Context) error {
	header := http.Header{}
	header.Add("Authorization", s.cfg.AuthToken)
	header.Add("x-api-key", s.cfg.APIKey)
	header.Add("x-client-code", s.cfg.ClientCode)
	header.Add("x-feed-token", s.cfg.FeedToken)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, streamURI, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("smartconnect: stream dial: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("smartconnect: stream dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	conn.SetPongHandler(func(string) error { return nil })

	go s.readLoop(ctx)
	go s.heartbeatLoop(ctx)
	return nil
}

// Close tears down the connection and stops the loops.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	if s.conn != nil {
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = s.conn.Close()
	}
}

type streamRequest struct {
	CorrelationID string       `json:"correlationID"`
	Action        int          `json:"action"`
	Params        streamParams `json:"params"`
}

type streamParams struct {
	Mode      int              `json:"mode"`
	TokenList []TokenListEntry `json:"tokenList"`
}

// Subscribe registers tokens for a mode and sends the request. The
// subscription is remembered and replayed after a reconnect.
func (s *Stream) Subscribe(mode int, tokenList []TokenListEntry) error {
	s.mu.Lock()
	s.subs[mode] = append(s.subs[mode], tokenList...)
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return errors.New("smartconnect: stream not connected")
	}
	return conn.WriteJSON(streamRequest{
		CorrelationID: s.cfg.CorrelationID,
		Action:        subscribeAction,
		Params:        streamParams{Mode: mode, TokenList: tokenList},
	})
}

// Unsubscribe removes tokens from a mode.
func (s *Stream) Unsubscribe(mode int, tokenList []TokenListEntry) error {
	s.mu.Lock()
	delete(s.subs, mode)
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return errors.New("smartconnect: stream not connected")
	}
	return conn.WriteJSON(streamRequest{
		CorrelationID: s.cfg.CorrelationID,
		Action:        unsubscribeAction,
		Params:        streamParams{Mode: mode, TokenList: tokenList},
	})
}

func (s *Stream) resubscribe() error {
	s.mu.Lock()
	conn := s.conn
	subs := make(map[int][]TokenListEntry, len(s.subs))
	for m, tl := range s.subs {
		subs[m] = tl
	}
	s.mu.Unlock()

	if conn == nil {
		return errors.New("smartconnect: stream not connected")
	}
	for mode, tl := range subs {
		req := streamRequest{
			CorrelationID: s.cfg.CorrelationID,
			Action:        subscribeAction,
			Params:        streamParams{Mode: mode, TokenList: tl},
		}
		if err := conn.WriteJSON(req); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stream) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		default:
		}

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		mt, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			default:
			}
			s.reconnect(ctx, err)
			return
		}

		if mt != websocket.BinaryMessage {
			continue // text frames are pong echoes
		}
		frame, err := decodeTickFrame(msg)
		if err != nil {
			log.Printf("[smartstream] drop frame: %v", err)
			continue
		}
		if s.OnTick != nil {
			s.OnTick(frame)
		}
	}
}

func (s *Stream) reconnect(ctx context.Context, cause error) {
	log.Printf("[smartstream] connection lost: %v", cause)
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-time.After(s.cfg.RetryDelay):
		}
		if err := s.Connect(ctx); err != nil {
			log.Printf("[smartstream] reconnect %d/%d failed: %v", attempt, s.cfg.MaxRetries, err)
			continue
		}
		if err := s.resubscribe(); err != nil {
			log.Printf("[smartstream] resubscribe failed: %v", err)
			continue
		}
		log.Printf("[smartstream] reconnected on attempt %d", attempt)
		return
	}
	if s.OnDisconnect != nil {
		s.OnDisconnect(cause)
	}
}

func (s *Stream) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				return // read loop notices the broken pipe and reconnects
			}
		}
	}
}

// decodeTickFrame parses the little-endian SmartStream binary layout.
// Offsets: mode 0, exchange 1, token 2:27 (NUL padded), sequence 27:35,
// exchange timestamp 35:43, LTP 43:51; quote mode adds qty 51:59 and
// day volume 67:75.
func decodeTickFrame(b []byte) (TickFrame, error) {
	if len(b) < 51 {
		return TickFrame{}, fmt.Errorf("frame too short: %d bytes", len(b))
	}
	f := TickFrame{
		Mode:              int(b[0]),
		ExchangeType:      int(b[1]),
		Token:             tokenString(b[2:27]),
		SequenceNumber:    int64(binary.LittleEndian.Uint64(b[27:35])),
		ExchangeTimestamp: int64(binary.LittleEndian.Uint64(b[35:43])),
		LastTradedPrice:   int64(binary.LittleEndian.Uint64(b[43:51])),
	}
	if f.Mode >= ModeQuote && len(b) >= 75 {
		f.LastTradedQty = int64(binary.LittleEndian.Uint64(b[51:59]))
		f.VolumeToday = int64(binary.LittleEndian.Uint64(b[67:75]))
	}
	return f, nil
}

func tokenString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
