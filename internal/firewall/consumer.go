package firewall

import (
	"context"
	"encoding/json"
	"log/slog"
)

// wireEvent is the subset of a switch event body the reconciler reads.
type wireEvent struct {
	EventName string `json:"Event-Name"`
	Status    string `json:"status"`
	NetworkIP string `json:"network-ip"`
	Username  string `json:"username"`
	Realm     string `json:"realm"`
}

// Consumer adapts broker event deliveries into reconciler calls.
type Consumer struct {
	rec    *Reconciler
	logger *slog.Logger
}

// NewConsumer creates a Consumer.
func NewConsumer(rec *Reconciler, logger *slog.Logger) *Consumer {
	return &Consumer{rec: rec, logger: logger.With("subsystem", "firewall")}
}

// Handle parses one event body and feeds it to the reconciler. Malformed
// bodies are logged and dropped.
func (c *Consumer) Handle(ctx context.Context, body []byte) {
	var ev wireEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.logger.Warn("dropping unparseable event", "err", err)
		return
	}
	err := c.rec.HandleEvent(ctx, RegistrationEvent{
		Event:     ev.EventName,
		Status:    ev.Status,
		NetworkIP: ev.NetworkIP,
		User:      ev.Username,
		Realm:     ev.Realm,
	})
	if err != nil {
		c.logger.Error("handling registration event",
			"user", ev.Username, "realm", ev.Realm, "err", err)
	}
}
