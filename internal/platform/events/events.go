// Package events publishes storefront domain events to a message broker.
package events

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hossain-rashid/Smartshop/internal/domain"
)

// OrderPlacedType names the event emitted after a successful checkout.
const OrderPlacedType = "order.placed"

// OrderPlaced is the payload for order.placed.
type OrderPlaced struct {
	EventID    string       `json:"eventId"`
	Type       string       `json:"type"`
	OrderID    int64        `json:"orderId"`
	Date       string       `json:"date"`
	Total      domain.Money `json:"total"`
	ItemCount  int          `json:"itemCount"`
	OccurredAt time.Time    `json:"occurredAt"`
}

type envelope struct {
	now   func() time.Time
	newID func() string
	attrs map[string]string
}

func defaultEnvelope() envelope {
	return envelope{
		now:   time.Now,
		newID: func() string { return ulid.Make().String() },
	}
}

func (e envelope) orderPlaced(order domain.OrderRecord) OrderPlaced {
	count := 0
	for _, item := range order.Items {
		count += item.Quantity
	}
	return OrderPlaced{
		EventID:    e.newID(),
		Type:       OrderPlacedType,
		OrderID:    order.OrderID,
		Date:       order.Date,
		Total:      order.Totals.Total,
		ItemCount:  count,
		OccurredAt: e.now().UTC(),
	}
}

func (e envelope) encode(order domain.OrderRecord) (OrderPlaced, []byte, error) {
	event := e.orderPlaced(order)
	data, err := json.Marshal(event)
	if err != nil {
		return OrderPlaced{}, nil, err
	}
	return event, data, nil
}

// attributes merges the static attributes with the per-event ones; event keys win.
func (e envelope) attributes(p OrderPlaced) map[string]string {
	attrs := make(map[string]string, len(e.attrs)+3)
	for key, value := range e.attrs {
		setAttr(attrs, strings.TrimSpace(key), value)
	}
	setAttr(attrs, "eventType", p.Type)
	setAttr(attrs, "eventId", p.EventID)
	setAttr(attrs, "orderId", strconv.FormatInt(p.OrderID, 10))
	return attrs
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

// Option customises publishers.
type Option func(*envelope)

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *envelope) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides event id generation.
func WithIDGenerator(newID func() string) Option {
	return func(e *envelope) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// WithAttributes attaches static attributes, such as the deployment environment, to every event.
func WithAttributes(attrs map[string]string) Option {
	return func(e *envelope) {
		if len(attrs) == 0 {
			return
		}
		e.attrs = make(map[string]string, len(attrs))
		for key, value := range attrs {
			e.attrs[key] = value
		}
	}
}

func buildEnvelope(opts []Option) envelope {
	env := defaultEnvelope()
	for _, opt := range opts {
		if opt != nil {
			opt(&env)
		}
	}
	return env
}
