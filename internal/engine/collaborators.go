package engine

import (
	"context"
	"time"

	"github.com/nodewarden/warden/internal/models"
)

// UserRef is the slice of a managed account the engine works with.
type UserRef struct {
	ID       string
	Username string
	Status   models.UserStatus
	ExpireAt *time.Time
}

// NodeRef is the slice of a node the engine works with.
type NodeRef struct {
	ID     string
	Name   string
	Status models.NodeStatus
}

// MetricSample is one sampled value of a panel metric. System-scoped metrics
// produce a single sample with no target; per-entity metrics produce one
// sample per entity. Fields carries extra context keys for conditions, such
// as the node of a per-user-per-node sample.
type MetricSample struct {
	Metric     models.MetricName
	Value      float64
	TargetType models.TargetType
	TargetID   string
	TargetName string
	Fields     map[string]any
}

// UserDirectory is the engine's window onto managed accounts. Mutations are
// idempotent: disabling a disabled user succeeds.
type UserDirectory interface {
	Get(ctx context.Context, id string) (*UserRef, error)
	Disable(ctx context.Context, id string) error
	Block(ctx context.Context, id, reason string) error
	ResetTraffic(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
	// ListExpiredBefore returns accounts whose expiry lies strictly before
	// cutoff. Accounts without an expiry never appear.
	ListExpiredBefore(ctx context.Context, cutoff time.Time) ([]UserRef, error)
}

// NodeControl reaches the node fleet.
type NodeControl interface {
	Get(ctx context.Context, id string) (*NodeRef, error)
	List(ctx context.Context) ([]NodeRef, error)
	Restart(ctx context.Context, id string) error
	ForceSync(ctx context.Context, id string) error
}

// MetricsSource samples panel metrics for threshold rules.
type MetricsSource interface {
	Sample(ctx context.Context, metric models.MetricName) ([]MetricSample, error)
}

// Notifier delivers notify-action messages. webhookURL is only consulted for
// the webhook channel.
type Notifier interface {
	Send(ctx context.Context, channel, message, webhookURL string) error
}
