package notifier

import (
	"context"
	"time"
)

// Subscription is one browser push endpoint registered through the API.
type Subscription struct {
	ID        string
	Endpoint  string
	P256dhKey string
	AuthKey   string
	CreatedAt time.Time
}

type SubscriptionRepository interface {
	// Upsert registers a subscription, replacing keys for a known endpoint.
	Upsert(ctx context.Context, sub *Subscription) error
	List(ctx context.Context) ([]*Subscription, error)
	Delete(ctx context.Context, id string) error
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}
