package eventbus

import (
	"context"
	"log"
	"strings"

	"github.com/matthewbaird/rentledger/internal/event"
)

// LogEvents returns a handler that writes one line per event to l, or to
// the standard logger when l is nil.
func LogEvents(l *log.Logger) Handler {
	if l == nil {
		l = log.Default()
	}
	return HandlerFunc(func(_ context.Context, evt event.DomainEvent) error {
		l.Printf("event: %s %s (%s) by %s via %s: %s",
			evt.EventType, refList(evt), evt.Weight, evt.Actor, evt.Source, evt.Summary)
		return nil
	})
}

// refList renders the subject and target refs as type=shortid, comma
// separated. Context refs are left out.
func refList(evt event.DomainEvent) string {
	var parts []string
	for _, ref := range evt.AffectedEntities {
		if ref.Role != "subject" && ref.Role != "target" {
			continue
		}
		parts = append(parts, ref.EntityType+"="+event.Short(ref.EntityID))
	}
	return strings.Join(parts, ",")
}
