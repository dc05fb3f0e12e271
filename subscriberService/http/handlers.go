// Package http provides the WebSocket endpoint for the subscriber service.
package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/treebus/treebus/internals/broker"
	"github.com/treebus/treebus/internals/config"
	"github.com/treebus/treebus/internals/message"
	"github.com/treebus/treebus/internals/models"
	"github.com/treebus/treebus/subscriberService"
)

// Client operation names.
const (
	MsgTypeSubscribe   = "subscribe"
	MsgTypeUnsubscribe = "unsubscribe"
	MsgTypePublish     = "publish"
	MsgTypeCall        = "call"
	MsgTypePing        = "ping"
)

// Server frame names.
const (
	MsgTypeMessage  = "message"
	MsgTypeAck      = "ack"
	MsgTypeResponse = "response"
	MsgTypePong     = "pong"
	MsgTypeError    = "error"
)

// WebSocketHandler upgrades bridge connections and runs their sessions.
type WebSocketHandler struct {
	svc      *subscriberService.SubscriberServiceImpl
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewWebSocketHandler creates the handler over the subscriber service.
func NewWebSocketHandler(svc *subscriberService.SubscriberServiceImpl) *WebSocketHandler {
	return &WebSocketHandler{
		svc: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: svc.Logger(),
	}
}

// session binds one WebSocket connection to one broker subscriber. The
// writer goroutine is the only writer to the connection; the pump
// goroutine drains the subscriber queue into the send channel.
type session struct {
	id   string
	conn *websocket.Conn
	su   *broker.Subscriber
	cfg  *config.Config
	log  *zap.Logger

	send     chan models.ServerMsg
	stop     chan struct{}
	pumpDone chan struct{}

	closeOnce sync.Once
}

// ClientID identifies the session.
func (s *session) ClientID() string { return s.id }

// Close stops the pump, frees the broker subscriber and closes the
// connection. Safe to call more than once.
func (s *session) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.conn.Close()
		<-s.pumpDone
		s.su.Free()
		s.log.Info("session closed", zap.String("client_id", s.id))
	})
}

// trySend queues a frame for the writer unless the session is stopping.
func (s *session) trySend(msg models.ServerMsg) {
	select {
	case s.send <- msg:
	case <-s.stop:
	}
}

// writer is the single connection writer.
func (s *session) writer() {
	for {
		select {
		case <-s.stop:
			return
		case msg := <-s.send:
			if s.cfg.WriteTimeout > 0 {
				s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			}
			if err := s.conn.WriteJSON(msg); err != nil {
				s.log.Warn("write failed",
					zap.String("client_id", s.id), zap.Error(err))
				return
			}
		}
	}
}

// pump polls the subscriber queue and forwards deliveries. The poll
// timeout bounds how long shutdown waits for the pump.
func (s *session) pump() {
	defer close(s.pumpDone)
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		m := s.su.Get(s.cfg.PullTimeout)
		if m == nil {
			continue
		}
		frame := models.ServerMsg{
			Type:   MsgTypeMessage,
			Topic:  m.Topic(),
			RTopic: m.RTopic(),
			Value:  models.FromMessage(m),
			Ts:     time.Now(),
		}
		m.Unref()
		s.trySend(frame)
	}
}

// HandleWebSocket upgrades the request and serves the session until the
// client disconnects.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cfg := h.svc.Config()
	sess := &session{
		id:       uuid.NewString(),
		conn:     conn,
		su:       h.svc.Broker().NewSubscriber(cfg.DefaultQueueSize),
		cfg:      cfg,
		log:      h.log,
		send:     make(chan models.ServerMsg, cfg.DefaultQueueSize),
		stop:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}

	h.svc.RegisterSession(sess)
	defer func() {
		h.svc.UnregisterSession(sess.id)
		sess.Close()
	}()

	go sess.writer()
	go sess.pump()

	h.log.Info("session opened", zap.String("client_id", sess.id))
	sess.trySend(models.ServerMsg{
		Type:      "connected",
		RequestID: sess.id,
		Ts:        time.Now(),
	})

	h.readLoop(sess)
}

func (h *WebSocketHandler) readLoop(sess *session) {
	for {
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("read failed",
					zap.String("client_id", sess.id), zap.Error(err))
			}
			return
		}

		var op models.ClientMsg
		if err := json.Unmarshal(raw, &op); err != nil {
			sess.trySend(models.NewServerError("", "INVALID_JSON", "invalid JSON message"))
			continue
		}
		h.dispatch(sess, op)
	}
}

func (h *WebSocketHandler) dispatch(sess *session, op models.ClientMsg) {
	switch op.Type {
	case MsgTypeSubscribe:
		if err := sess.su.Subscribe(op.Topic); err != nil {
			sess.trySend(models.NewServerError(op.RequestID, "ALREADY_SUBSCRIBED", err.Error()))
			return
		}
		sess.trySend(ack(op))

	case MsgTypeUnsubscribe:
		if err := sess.su.Unsubscribe(op.Topic); err != nil {
			sess.trySend(models.NewServerError(op.RequestID, "NOT_SUBSCRIBED", err.Error()))
			return
		}
		sess.trySend(ack(op))

	case MsgTypePublish:
		msg := models.ToMessage(op.Topic, op.Value, publishFlags(op))
		n := h.svc.Broker().Publish(msg)
		frame := ack(op)
		frame.Delivered = n
		sess.trySend(frame)

	case MsgTypeCall:
		// Call blocks up to the timeout; keep the read loop responsive.
		go h.handleCall(sess, op)

	case MsgTypePing:
		sess.trySend(models.ServerMsg{
			Type: MsgTypePong, RequestID: op.RequestID, Ts: time.Now(),
		})

	default:
		sess.trySend(models.NewServerError(op.RequestID, "UNKNOWN_TYPE",
			"unknown operation: "+op.Type))
	}
}

func (h *WebSocketHandler) handleCall(sess *session, op models.ClientMsg) {
	b := h.svc.Broker()
	if b.SubsCount(op.Topic) == 0 {
		sess.trySend(models.NewServerError(op.RequestID, "NO_LISTENERS", "no subscribers on topic"))
		return
	}

	timeout := sess.cfg.CallTimeout
	if op.TimeoutMs > 0 {
		timeout = time.Duration(op.TimeoutMs) * time.Millisecond
	}
	resp := b.Call(models.ToMessage(op.Topic, op.Value, publishFlags(op)), timeout)
	if resp == nil {
		sess.trySend(models.NewServerError(op.RequestID, "TIMEOUT", "no response before timeout"))
		return
	}
	frame := models.ServerMsg{
		Type:      MsgTypeResponse,
		RequestID: op.RequestID,
		Topic:     resp.Topic(),
		Value:     models.FromMessage(resp),
		Ts:        time.Now(),
	}
	resp.Unref()
	sess.trySend(frame)
}

// publishFlags maps the wire control fields onto the message flags word.
// Bridge traffic is always tagged External.
func publishFlags(op models.ClientMsg) message.Flags {
	fl := message.External
	if op.Sticky {
		fl |= message.Sticky
	}
	if op.NoRecurse {
		fl |= message.NonRecursive
	}
	return fl
}

func ack(op models.ClientMsg) models.ServerMsg {
	return models.ServerMsg{
		Type:      MsgTypeAck,
		RequestID: op.RequestID,
		Topic:     op.Topic,
		Ts:        time.Now(),
	}
}
