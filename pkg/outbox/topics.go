package outbox

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// ErrNoTopic marks rows the publisher can never route; they are not retried.
var ErrNoTopic = errors.New("no topic for aggregate")

// TopicRouter maps aggregates to Pub/Sub topics.
type TopicRouter struct {
	topics map[enums.OutboxAggregateType]string
}

func NewTopicRouter(cfg config.PubSubConfig) (*TopicRouter, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("orders topic is required")
	}
	if cfg.ProductsTopic == "" {
		return nil, errors.New("products topic is required")
	}
	return &TopicRouter{topics: map[enums.OutboxAggregateType]string{
		enums.AggregateOrder:   cfg.OrdersTopic,
		enums.AggregateProduct: cfg.ProductsTopic,
	}}, nil
}

func (r *TopicRouter) Topic(aggregate enums.OutboxAggregateType) (string, error) {
	topic, ok := r.topics[aggregate]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrNoTopic, aggregate)
	}
	return topic, nil
}

// Topics lists every configured topic, used by the publisher's readiness check.
func (r *TopicRouter) Topics() []string {
	out := make([]string, 0, len(r.topics))
	for _, agg := range []enums.OutboxAggregateType{enums.AggregateOrder, enums.AggregateProduct} {
		out = append(out, r.topics[agg])
	}
	return out
}
