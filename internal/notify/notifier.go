// Package notify distributes run reports to chat channels. Reports are
// dispatched to every registered sender and filtered by event type.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/navledger/internal/domain"
)

// Event types a run report maps to.
const (
	EventRunSucceeded        = "run_succeeded"
	EventRunFailed           = "run_failed"
	EventPersistenceDegraded = "persistence_degraded"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches notifications to one or more Senders. Notify only
// forwards events in the allowed set; an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to senders.
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

// Notify sends a notification to all senders if event is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}

	return n.dispatch(ctx, title, message)
}

// Distribute formats a run report and notifies it under its event type.
func (n *Notifier) Distribute(ctx context.Context, r domain.RunReport) error {
	event := ReportEvent(r)
	return n.Notify(ctx, event, reportTitle(r, event), FormatReport(r))
}

// ReportEvent classifies a run report.
func ReportEvent(r domain.RunReport) string {
	switch {
	case !r.Succeeded:
		return EventRunFailed
	case r.PersistenceDegraded:
		return EventPersistenceDegraded
	}
	return EventRunSucceeded
}

func reportTitle(r domain.RunReport, event string) string {
	date := r.Period.Format(time.DateOnly)
	switch event {
	case EventRunFailed:
		return "NAV ingestion failed for " + date
	case EventPersistenceDegraded:
		return "NAV ingestion degraded for " + date
	}
	return "NAV ingestion complete for " + date
}

// FormatReport renders the plain-text body of a run report.
func FormatReport(r domain.RunReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Filter: %s\n", r.Filter)
	fmt.Fprintf(&b, "Added: %d, duplicates: %d, invalid: %d\n", r.Added, r.Duplicates, r.Invalid)
	if len(r.Sources) > 0 {
		fmt.Fprintf(&b, "Sources: %s\n", strings.Join(r.Sources, ", "))
	}
	if len(r.SourcesMissing) > 0 {
		fmt.Fprintf(&b, "Not published: %s\n", strings.Join(r.SourcesMissing, ", "))
	}
	if len(r.SourcesFailed) > 0 {
		fmt.Fprintf(&b, "Unreachable: %s\n", strings.Join(r.SourcesFailed, ", "))
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", r.Error)
	}
	fmt.Fprintf(&b, "Run: %s (%s)", r.RunID, r.Duration().Round(time.Millisecond))
	return b.String()
}

// dispatch sends to every sender; one failing sender does not stop the rest.
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
