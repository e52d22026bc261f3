// Package wsconn wraps a single gorilla/websocket connection as a Session,
// adapting the teacher's Client write-pump/read-pump/ping-ticker idiom
// (pkg/websocket/client.go) to the spec's session state machine: each
// session owns its writer exclusively, a one-shot closeNotify channel is
// held by the session and handed to the reader task — no pointer cycle
// between reader and writer (Design Note, spec §9 "Cyclic ownership").
package wsconn

import (
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kelpline/msgcore/internal/types"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

// State is the per-session state machine of spec §4.9: Connecting ->
// Authenticated -> Live -> Closing -> Closed.
type State int32

const (
	Connecting State = iota
	Authenticated
	Live
	Closing
	Closed
)

// InboundHandler processes one frame read from the client, forwarding it to
// ingest exactly as if it had arrived via HTTP (spec §4.9 "Inbound frames").
type InboundHandler func(session *Session, msg *types.Msg)

// Session is a live client connection, keyed by (user_id, platform) with a
// client-chosen pointer_id tiebreaker (spec §3).
type Session struct {
	Key       types.SessionKey
	PointerID string

	conn *websocket.Conn
	log  *zap.Logger

	send        chan []byte
	closeNotify chan struct{} // one-shot; closed exactly once by Close
	closeOnce   sync.Once
	closeCode   int

	stateMu sync.Mutex
	state   State

	heartbeat time.Duration
	onInbound InboundHandler
}

// New wraps conn as a Session. heartbeat is the ping interval (spec §4.9,
// default 30s); onInbound is called for every successfully parsed frame.
func New(conn *websocket.Conn, key types.SessionKey, pointerID string, heartbeat time.Duration, onInbound InboundHandler, log *zap.Logger) *Session {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Session{
		Key:         key,
		PointerID:   pointerID,
		conn:        conn,
		log:         log,
		send:        make(chan []byte, sendBuffer),
		closeNotify: make(chan struct{}),
		heartbeat:   heartbeat,
		onInbound:   onInbound,
		state:       Connecting,
	}
}

func (s *Session) SetState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Send enqueues a frame for delivery; it never blocks the caller — a full
// send buffer indicates a saturated session and the frame is dropped
// (spec §5 "a slow client will block its own task but does not propagate").
func (s *Session) Send(frame []byte) bool {
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Run drives both pumps until the connection closes. It blocks; call it in
// its own goroutine per accepted connection.
func (s *Session) Run() {
	done := make(chan struct{})
	go func() {
		s.writePump()
		close(done)
	}()
	s.readPump()
	<-done
}

func (s *Session) readPump() {
	defer s.Close(types.CloseNormal)

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(2 * s.heartbeat))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(2 * s.heartbeat))
		return nil
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		msg, parseErr := decodeFrame(msgType, data)
		if parseErr != nil {
			s.log.Warn("wsconn: dropping unparseable frame",
				zap.String("session", s.Key.String()), zap.Error(parseErr))
			continue
		}
		if s.onInbound != nil {
			s.onInbound(s, msg)
		}
	}
}

// decodeFrame accepts the two encodings of spec §4.9: UTF-8 JSON (text
// frames) and length-delimited binary (binary frames: a 4-byte big-endian
// length prefix is tolerated but not required since gorilla already frames
// messages; the binary payload itself is JSON).
func decodeFrame(wsType int, data []byte) (*types.Msg, error) {
	payload := data
	if wsType == websocket.BinaryMessage && len(data) > 4 {
		if n := binary.BigEndian.Uint32(data[:4]); int(n) == len(data)-4 {
			payload = data[4:]
		}
	}
	var msg types.Msg
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	defer s.conn.Close()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				// A ping write failure ends this task and triggers
				// unregister (spec §4.9 "Heartbeat").
				return
			}
		case <-s.closeNotify:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(s.closeCode, ""))
			return
		}
	}
}

// Close terminates the session with the given close code (1000 normal,
// 4001 kicked, 4002 unauthorised per spec §4.9/§6). Idempotent; closeCode is
// written once, before closeNotify fires, so writePump reads it race-free
// (single writer via closeOnce, single reader after the channel closes).
func (s *Session) Close(code int) {
	s.closeOnce.Do(func() {
		s.closeCode = code
		s.SetState(Closing)
		close(s.closeNotify)
		s.SetState(Closed)
	})
}
