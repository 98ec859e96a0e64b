package panel

import (
	"context"

	"github.com/nodewarden/warden/internal/logger"
	"github.com/nodewarden/warden/internal/models"
)

// NoopDriver stands in when no node driver is configured. Actions succeed
// after logging a warning, so rule flows stay observable on panels whose
// nodes are managed elsewhere.
type NoopDriver struct{}

func (NoopDriver) Restart(ctx context.Context, node models.Node) error {
	logger.Log().WithField("node", node.Name).Warn("No node driver configured; restart recorded only")
	return nil
}

func (NoopDriver) ForceSync(ctx context.Context, node models.Node) error {
	logger.Log().WithField("node", node.Name).Warn("No node driver configured; sync recorded only")
	return nil
}
