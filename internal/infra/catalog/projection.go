package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IBM/sarama"

	"marketchat/internal/infra/broker/kafka"
)

// Set is the listing existence set kept by the projection.
type Set interface {
	Add(listingID string)
	Remove(listingID string)
}

// Deduper reports whether an event id was already applied.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
}

// Projection applies listing lifecycle events to a Set. Events arrive as
// CloudEvents JSON; the version suffix of the type is ignored. With an Inbox,
// redelivered events are skipped by id.
type Projection struct {
	Listings Set
	Inbox    Deduper
	Logger   *slog.Logger
}

var _ kafka.MessageHandler = (*Projection)(nil)

type listingEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Subject string `json:"subject"`
	Data    struct {
		ID        string `json:"id"`
		ListingID string `json:"listing_id"`
	} `json:"data"`
}

func (e listingEvent) listingID() string {
	for _, v := range []string{e.Data.ListingID, e.Data.ID, e.Subject} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func (p *Projection) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var evt listingEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return fmt.Errorf("catalog: decode listing event: %w", err)
	}
	if evt.Type == "" {
		evt.Type = headerValue(msg, "ce_type")
	}
	if eventAction(evt.Type) == "" {
		return nil
	}
	if p.Inbox != nil && evt.ID != "" {
		seen, err := p.Inbox.Seen(ctx, evt.ID)
		if err != nil {
			return fmt.Errorf("catalog: inbox: %w", err)
		}
		if seen {
			p.logger().Debug("listing event already applied", "event_id", evt.ID)
			return nil
		}
	}
	return p.Apply(ctx, evt.Type, evt.listingID())
}

// Apply updates the set for one event. Unknown event types are ignored.
func (p *Projection) Apply(_ context.Context, eventType, listingID string) error {
	action := eventAction(eventType)
	if action == "" {
		return nil
	}
	if listingID == "" {
		return fmt.Errorf("catalog: %s event without listing id", eventType)
	}
	switch action {
	case "add":
		p.Listings.Add(listingID)
	case "remove":
		p.Listings.Remove(listingID)
	}
	p.logger().Debug("listing projected", "type", eventType, "listing_id", listingID)
	return nil
}

func eventAction(eventType string) string {
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(eventType)), ".v1")
	switch name {
	case "listing.created", "listing.published":
		return "add"
	case "listing.deleted", "listing.archived":
		return "remove"
	default:
		return ""
	}
}

func headerValue(msg *sarama.ConsumerMessage, key string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (p *Projection) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
