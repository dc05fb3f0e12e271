package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/treebus/treebus/subscriberService"
)

// RegisterSubscriberRoutes registers the WebSocket endpoint with the chi
// router at the configured path.
func RegisterSubscriberRoutes(r chi.Router, svc *subscriberService.SubscriberServiceImpl) {
	handler := NewWebSocketHandler(svc)
	r.Get(svc.Config().WSPath, handler.HandleWebSocket)
}
