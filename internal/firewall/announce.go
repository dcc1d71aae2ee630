package firewall

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tappbx/tappbx/internal/switchrpc"
)

// Publisher is the one-way broker surface announcements go out on.
// *switchrpc.BrokerRPC satisfies it.
type Publisher interface {
	Publish(ctx context.Context, exchange, key, contentType string, body []byte) error
}

// Announcement is the broker-visible record of one kernel mutation.
type Announcement struct {
	EventName string `json:"Event-Name"`
	Action    string `json:"Action"`
	IPType    string `json:"IP-Type"`
	FwList    string `json:"Fw-List"`
	IPAddress string `json:"IP-Address"`
}

// Announcer publishes firewall mutations so peer nodes can mirror them.
type Announcer struct {
	pub    Publisher
	host   string
	logger *slog.Logger
}

// NewAnnouncer creates an Announcer. host names this node in the routing
// key; a nil publisher disables announcements.
func NewAnnouncer(pub Publisher, host string, logger *slog.Logger) *Announcer {
	return &Announcer{pub: pub, host: host, logger: logger.With("subsystem", "firewall")}
}

// RoutingKey builds the announcement routing key for one mutation.
func (a *Announcer) RoutingKey(action, family string) string {
	return fmt.Sprintf("DjangoPBX.%s.FIREWALL.%s.%s", a.host, action, family)
}

// Announce publishes one mutation. Failures are logged, not returned; the
// kernel set is already correct locally.
func (a *Announcer) Announce(ctx context.Context, action, family, list, address string) {
	if a.pub == nil {
		return
	}
	body, err := json.Marshal(Announcement{
		EventName: "FIREWALL",
		Action:    action,
		IPType:    family,
		FwList:    list,
		IPAddress: address,
	})
	if err != nil {
		a.logger.Error("encoding firewall announcement", "err", err)
		return
	}
	key := a.RoutingKey(action, family)
	if err := a.pub.Publish(ctx, switchrpc.FirewallExchange, key, "application/json", body); err != nil {
		a.logger.Error("publishing firewall announcement", "key", key, "err", err)
	}
}
