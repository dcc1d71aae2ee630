// Package metrics exposes the control plane's Prometheus surface: a
// pull collector that queries the stores at scrape time, plus operation
// counters the hot paths increment.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tappbx/tappbx/internal/database/models"
	"github.com/tappbx/tappbx/internal/switchrpc"
)

// Operation counters. Registered once by Register; incremented from the
// compile, command and firewall paths.
var (
	CompilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tappbx_dialplan_compiles_total",
			Help: "Dialplan compile operations by application category",
		},
		[]string{"category"},
	)
	SwitchCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tappbx_switch_commands_total",
			Help: "Commands sent over the switch fabric by outcome",
		},
		[]string{"outcome"},
	)
	FirewallMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tappbx_firewall_mutations_total",
			Help: "Kernel set mutations by action and family",
		},
		[]string{"action", "family"},
	)
	AuthFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tappbx_auth_failures_total",
			Help: "Authentication failures fed to the login throttle",
		},
	)
)

// Register adds the operation counters and the collector to a registry.
func Register(reg prometheus.Registerer, c *Collector) {
	reg.MustRegister(CompilesTotal, SwitchCommandsTotal, FirewallMutationsTotal, AuthFailuresTotal)
	if c != nil {
		reg.MustRegister(c)
	}
}

// SessionCounter returns the number of live HTTAPI sessions.
type SessionCounter interface {
	Count(ctx context.Context) (int64, error)
}

// FirewallLister returns the active rows of one firewall list.
type FirewallLister interface {
	ListActive(ctx context.Context, list string) ([]models.FirewallAddress, error)
}

// SwitchInspector lists live registrations and channels across the nodes.
type SwitchInspector interface {
	ShowRegistrations(ctx context.Context, host string) ([]switchrpc.Registration, error)
	ShowChannels(ctx context.Context, host string) ([]switchrpc.Channel, error)
}

// Collector gathers control-plane gauges at scrape time. Any provider may
// be nil when unavailable.
type Collector struct {
	sessions  SessionCounter
	firewall  FirewallLister
	inspector SwitchInspector
	startTime time.Time

	sessionsDesc      *prometheus.Desc
	firewallDesc      *prometheus.Desc
	registrationsDesc *prometheus.Desc
	channelsDesc      *prometheus.Desc
	uptimeDesc        *prometheus.Desc
}

// NewCollector creates a Collector over the given providers.
func NewCollector(sessions SessionCounter, firewall FirewallLister, inspector SwitchInspector, startTime time.Time) *Collector {
	return &Collector{
		sessions:  sessions,
		firewall:  firewall,
		inspector: inspector,
		startTime: startTime,

		sessionsDesc: prometheus.NewDesc(
			"tappbx_httapi_sessions",
			"Live HTTAPI dialog sessions",
			nil, nil,
		),
		firewallDesc: prometheus.NewDesc(
			"tappbx_firewall_addresses",
			"Active addresses per firewall list",
			[]string{"list"}, nil,
		),
		registrationsDesc: prometheus.NewDesc(
			"tappbx_registrations",
			"Live SIP registrations across the switch nodes",
			nil, nil,
		),
		channelsDesc: prometheus.NewDesc(
			"tappbx_channels",
			"Live channels across the switch nodes",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"tappbx_uptime_seconds",
			"Seconds since the process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessionsDesc
	ch <- c.firewallDesc
	ch <- c.registrationsDesc
	ch <- c.channelsDesc
	ch <- c.uptimeDesc
}

var firewallLists = []string{
	models.ListBlock,
	models.ListWhite,
	models.ListSIPCustomer,
	models.ListSIPGateway,
	models.ListWebBlock,
}

// Collect implements prometheus.Collector. Providers are queried at scrape
// time under a shared timeout.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.sessions != nil {
		count, err := c.sessions.Count(ctx)
		if err != nil {
			slog.Error("metrics: counting httapi sessions", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.sessionsDesc, prometheus.GaugeValue, float64(count))
		}
	}

	if c.firewall != nil {
		for _, list := range firewallLists {
			rows, err := c.firewall.ListActive(ctx, list)
			if err != nil {
				slog.Error("metrics: listing firewall addresses", "list", list, "error", err)
				continue
			}
			ch <- prometheus.MustNewConstMetric(
				c.firewallDesc, prometheus.GaugeValue, float64(len(rows)), list)
		}
	}

	if c.inspector != nil {
		regs, err := c.inspector.ShowRegistrations(ctx, "")
		if err != nil {
			slog.Error("metrics: listing registrations", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.registrationsDesc, prometheus.GaugeValue, float64(len(regs)))
		}
		chans, err := c.inspector.ShowChannels(ctx, "")
		if err != nil {
			slog.Error("metrics: listing channels", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.channelsDesc, prometheus.GaugeValue, float64(len(chans)))
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue, time.Since(c.startTime).Seconds())
}
