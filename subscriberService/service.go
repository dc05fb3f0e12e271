package subscriberService

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/treebus/treebus/internals/broker"
	"github.com/treebus/treebus/internals/config"
)

// Session is a live bridge client. It is registered by the WebSocket
// handler so Shutdown can reach every connection.
type Session interface {
	// ClientID identifies the session.
	ClientID() string
	// Close tears the session down: stops the pump, frees the broker
	// subscriber and closes the connection. Safe to call more than once.
	Close()
}

// SubscriberServiceImpl implements the SubscriberService interface.
type SubscriberServiceImpl struct {
	broker *broker.Broker
	cfg    *config.Config
	log    *zap.Logger

	sessionsMu sync.Mutex
	sessions   map[string]Session
}

// NewSubscriberService creates the bridge service.
func NewSubscriberService(b *broker.Broker, cfg *config.Config, log *zap.Logger) *SubscriberServiceImpl {
	return &SubscriberServiceImpl{
		broker:   b,
		cfg:      cfg,
		log:      log,
		sessions: make(map[string]Session),
	}
}

// Start initializes the service.
func (s *SubscriberServiceImpl) Start() error {
	s.log.Info("subscriber service starting")
	return nil
}

// Shutdown closes every active session.
func (s *SubscriberServiceImpl) Shutdown(ctx context.Context) error {
	s.sessionsMu.Lock()
	sessions := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]Session)
	s.sessionsMu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	s.log.Info("subscriber service shutdown", zap.Int("sessions_closed", len(sessions)))
	return ctx.Err()
}

// Broker returns the broker the sessions attach to.
func (s *SubscriberServiceImpl) Broker() *broker.Broker {
	return s.broker
}

// Config returns the bridge configuration.
func (s *SubscriberServiceImpl) Config() *config.Config {
	return s.cfg
}

// Logger returns the service logger.
func (s *SubscriberServiceImpl) Logger() *zap.Logger {
	return s.log
}

// RegisterSession tracks a session for shutdown.
func (s *SubscriberServiceImpl) RegisterSession(sess Session) {
	s.sessionsMu.Lock()
	s.sessions[sess.ClientID()] = sess
	s.sessionsMu.Unlock()
}

// UnregisterSession forgets a session.
func (s *SubscriberServiceImpl) UnregisterSession(clientID string) {
	s.sessionsMu.Lock()
	delete(s.sessions, clientID)
	s.sessionsMu.Unlock()
}

// SessionCount returns the number of active sessions.
func (s *SubscriberServiceImpl) SessionCount() int {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	return len(s.sessions)
}
