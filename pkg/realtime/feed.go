package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/google/uuid"
)

// ProductEvent is one row change on the products table.
type ProductEvent struct {
	Type      enums.ProductChange `json:"type"`
	ProductID uuid.UUID           `json:"product_id"`
	At        time.Time           `json:"at"`
}

type publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error)
}

// Broker is the pub/sub surface the feed needs; *redis.Client satisfies it.
type Broker interface {
	publisher
	subscriber
}

// ProductFeed publishes and consumes product change events on a single channel.
type ProductFeed struct {
	broker  Broker
	channel string
	logg    *logger.Logger
}

func NewProductFeed(broker Broker, channel string, logg *logger.Logger) (*ProductFeed, error) {
	if broker == nil {
		return nil, fmt.Errorf("realtime broker required")
	}
	if strings.TrimSpace(channel) == "" {
		return nil, fmt.Errorf("realtime channel required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &ProductFeed{broker: broker, channel: channel, logg: logg}, nil
}

func (f *ProductFeed) Publish(ctx context.Context, event ProductEvent) error {
	if !event.Type.IsValid() {
		return fmt.Errorf("invalid product change %q", event.Type)
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode product event: %w", err)
	}
	return f.broker.Publish(ctx, f.channel, payload)
}

// Subscribe returns decoded events until ctx ends or the closer runs. Undecodable payloads are
// logged and skipped.
func (f *ProductFeed) Subscribe(ctx context.Context) (<-chan ProductEvent, func() error, error) {
	raw, closeFn, err := f.broker.Subscribe(ctx, f.channel)
	if err != nil {
		return nil, nil, err
	}

	logCtx := f.logg.WithField(ctx, "channel", f.channel)
	out := make(chan ProductEvent)
	go func() {
		defer close(out)
		for payload := range raw {
			var event ProductEvent
			if err := json.Unmarshal(payload, &event); err != nil || !event.Type.IsValid() {
				f.logg.Warn(logCtx, "dropping malformed product event")
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, closeFn, nil
}
