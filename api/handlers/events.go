package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/medirush/medirush-api/models"
)

const lifecycleChannel = "medirush:lifecycle"

// Event types pushed to connected clients
const (
	EventNewEmergency = "new_emergency"
	EventStatusUpdate = "status_update"
)

// LifecycleEvent describes one change to an emergency request. Events are
// delivered to the involved users over websocket, to role dashboards over
// Socket.IO, and (when Redis is configured) relayed to the other API
// instances so their clients see it too.
type LifecycleEvent struct {
	Type        string                 `json:"type"`
	RequestID   string                 `json:"requestId"`
	Status      models.EmergencyStatus `json:"status"`
	Location    *models.GeoPoint       `json:"location,omitempty"`
	PatientID   string                 `json:"patientId,omitempty"`
	ResponderID string                 `json:"responderId,omitempty"`
	Origin      string                 `json:"origin,omitempty"`
}

// Notifier fans lifecycle events out to local clients and, optionally,
// across instances via Redis pub/sub. A Notifier built without a Redis URL
// is local-only; Publish never blocks the request path either way.
type Notifier struct {
	instanceID string
	rdb        *redis.Client
}

// NewNotifier builds a Notifier. redisURL may be empty, in which case events
// stay on this instance.
func NewNotifier(redisURL string) *Notifier {
	n := &Notifier{instanceID: uuid.New().String()}
	if redisURL == "" {
		return n
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		zap.S().Errorf("invalid REDIS_URL, running without cross-instance events: %v", err)
		return n
	}
	n.rdb = redis.NewClient(opts)
	go n.subscribe()
	return n
}

// Publish delivers an event to local clients and relays it to peers. Safe to
// call on a nil Notifier.
func (n *Notifier) Publish(event LifecycleEvent) {
	if n == nil {
		return
	}
	event.Origin = n.instanceID
	go func() {
		deliver(event)
		if n.rdb == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		b, err := json.Marshal(event)
		if err != nil {
			zap.S().Errorf("failed to marshal lifecycle event: %v", err)
			return
		}
		if err := n.rdb.Publish(ctx, lifecycleChannel, b).Err(); err != nil {
			zap.S().Errorf("failed to relay lifecycle event: %v", err)
		}
	}()
}

// subscribe replays events published by peer instances to this instance's
// clients. Events tagged with our own instance ID were already delivered.
func (n *Notifier) subscribe() {
	pubsub := n.rdb.Subscribe(context.Background(), lifecycleChannel)
	for msg := range pubsub.Channel() {
		var event LifecycleEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			zap.S().Errorf("failed to decode lifecycle event: %v", err)
			continue
		}
		if event.Origin == n.instanceID {
			continue
		}
		deliver(event)
	}
}

// deliver pushes an event to everyone on this instance who should see it
func deliver(event LifecycleEvent) {
	data := map[string]interface{}{
		"requestId": event.RequestID,
		"status":    event.Status,
	}
	if event.Location != nil {
		data["location"] = event.Location
	}

	if event.PatientID != "" {
		sendNotificationToUser(event.PatientID, data)
	}
	if event.ResponderID != "" {
		sendNotificationToUser(event.ResponderID, data)
	}

	switch event.Type {
	case EventNewEmergency:
		// pending requests go to every responder dashboard
		emitToRole(string(models.RoleDriver), EventNewEmergency, data)
		emitToRole(string(models.RoleEmt), EventNewEmergency, data)
		emitToRole(string(models.RoleAdmin), EventNewEmergency, data)
	case EventStatusUpdate:
		emitToRole(string(models.RoleAdmin), EventStatusUpdate, data)
		if event.Status == models.StatusEnRoute || event.Status == models.StatusArrived {
			emitToRole(string(models.RoleHospital), EventStatusUpdate, data)
		}
		broadcastLifecycleEvent(EventStatusUpdate, data)
	}
}
