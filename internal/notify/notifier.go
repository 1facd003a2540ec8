// Package notify fans operational alerts out to the configured channels
// (Telegram, Discord). Events can be filtered by kind so operators receive
// only the alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Event kinds emitted by the bot. These mirror the kinds persisted as risk
// events, plus the end-of-day summary.
const (
	EventKillSwitch   = "kill_switch"
	EventFlattenAll   = "flatten_all"
	EventLedgerDrift  = "ledger_drift"
	EventLegFailure   = "leg_failure"
	EventDailySummary = "daily_summary"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. It maintains a set
// of allowed event kinds; Notify only forwards messages whose kind is in the
// allowed set, while NotifyAll bypasses the filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event kinds
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose kind appears in the events slice will be forwarded by Notify.
// If events is empty, all event kinds are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a notification to all senders only if the event kind is in the
// allowed list. If no events were configured (empty list), all events pass.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}

	return n.dispatch(ctx, title, message)
}

// NotifyAll sends a notification to all senders regardless of event kind.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// NotifyRiskEvent formats a persisted risk event as an alert. The detail map
// is flattened into "key=value" pairs.
func (n *Notifier) NotifyRiskEvent(ctx context.Context, ev domain.RiskEvent) error {
	var sb strings.Builder
	if ev.Ticker != "" {
		fmt.Fprintf(&sb, "ticker=%s ", ev.Ticker)
	}
	for k, v := range ev.Detail {
		fmt.Fprintf(&sb, "%s=%v ", k, v)
	}
	fmt.Fprintf(&sb, "at=%s", ev.At.UTC().Format(time.RFC3339))

	return n.Notify(ctx, ev.Kind, riskEventTitle(ev.Kind), sb.String())
}

// NotifyDailySummary formats the end-of-day ledger summary.
func (n *Notifier) NotifyDailySummary(ctx context.Context, s domain.DailySummary) error {
	msg := fmt.Sprintf(
		"realized=%s fees=%s volume=%s trades=%d cash=%s",
		formatCents(s.RealizedCents), formatCents(s.FeesCents),
		formatCents(s.VolumeCents), s.Trades, formatCents(s.EndCashCents),
	)
	title := fmt.Sprintf("Daily summary %s", s.Day.Format("2006-01-02"))
	return n.Notify(ctx, EventDailySummary, title, msg)
}

func riskEventTitle(kind string) string {
	switch kind {
	case EventKillSwitch:
		return "Kill switch engaged"
	case EventFlattenAll:
		return "Flattening all positions"
	case EventLedgerDrift:
		return "Ledger drift detected"
	case EventLegFailure:
		return "Combination leg failed"
	default:
		return "Risk event: " + kind
	}
}

// formatCents renders an integer cent amount as a signed dollar string.
func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// dispatch iterates over all senders and sends the notification. Errors from
// individual senders are collected and returned as a combined error; a single
// sender failure does not prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
