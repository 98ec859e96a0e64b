package panel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/nodewarden/warden/internal/engine"
	"github.com/nodewarden/warden/internal/logger"
	"github.com/nodewarden/warden/internal/models"
)

// Driver performs the physical restart or sync of one node. The docker
// driver manages local agent containers; the noop driver only records
// intent.
type Driver interface {
	Restart(ctx context.Context, node models.Node) error
	ForceSync(ctx context.Context, node models.Node) error
}

// NodeControl implements engine.NodeControl on the nodes table, delegating
// the physical work to a Driver.
type NodeControl struct {
	db     *gorm.DB
	driver Driver
}

func NewNodeControl(db *gorm.DB, driver Driver) *NodeControl {
	if driver == nil {
		driver = NoopDriver{}
	}
	return &NodeControl{db: db, driver: driver}
}

func (c *NodeControl) Get(ctx context.Context, id string) (*engine.NodeRef, error) {
	node, err := c.node(ctx, id)
	if err != nil {
		return nil, err
	}
	return nodeRef(*node), nil
}

// List returns the fleet minus disabled nodes, which must not be restarted
// or synced by automation.
func (c *NodeControl) List(ctx context.Context) ([]engine.NodeRef, error) {
	var nodes []models.Node
	err := c.db.WithContext(ctx).
		Where("status <> ?", models.NodeDisabled).
		Order("name asc").Find(&nodes).Error
	if err != nil {
		return nil, err
	}

	refs := make([]engine.NodeRef, 0, len(nodes))
	for _, n := range nodes {
		refs = append(refs, *nodeRef(n))
	}
	return refs, nil
}

func (c *NodeControl) Restart(ctx context.Context, id string) error {
	node, err := c.node(ctx, id)
	if err != nil {
		return err
	}
	if err := c.driver.Restart(ctx, *node); err != nil {
		return fmt.Errorf("restart node %s: %w", node.Name, err)
	}
	if err := c.db.WithContext(ctx).Model(node).UpdateColumn("last_restart_at", time.Now()).Error; err != nil {
		logger.Log().WithError(err).WithField("node", node.Name).Warn("Failed to stamp last_restart_at")
	}
	return nil
}

func (c *NodeControl) ForceSync(ctx context.Context, id string) error {
	node, err := c.node(ctx, id)
	if err != nil {
		return err
	}
	if err := c.driver.ForceSync(ctx, *node); err != nil {
		return fmt.Errorf("sync node %s: %w", node.Name, err)
	}
	return nil
}

func (c *NodeControl) node(ctx context.Context, id string) (*models.Node, error) {
	var node models.Node
	if err := c.db.WithContext(ctx).First(&node, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNodeNotFound
		}
		return nil, err
	}
	return &node, nil
}

func nodeRef(n models.Node) *engine.NodeRef {
	return &engine.NodeRef{ID: n.ID, Name: n.Name, Status: n.Status}
}
