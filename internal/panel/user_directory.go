// Package panel backs the engine's collaborator interfaces with the panel
// database: managed accounts, the node fleet, and metric sampling.
package panel

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/nodewarden/warden/internal/engine"
	"github.com/nodewarden/warden/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrNodeNotFound = errors.New("node not found")
)

// UserDirectory implements engine.UserDirectory on the users table.
type UserDirectory struct {
	db *gorm.DB
}

func NewUserDirectory(db *gorm.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

func (d *UserDirectory) Get(ctx context.Context, id string) (*engine.UserRef, error) {
	var user models.User
	if err := d.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return userRef(user), nil
}

// Disable switches an account off. Disabling an already disabled account
// succeeds.
func (d *UserDirectory) Disable(ctx context.Context, id string) error {
	return d.update(ctx, id, map[string]any{
		"status": models.UserDisabled,
		"online": false,
	})
}

// Block shuts an account out for cause and records why.
func (d *UserDirectory) Block(ctx context.Context, id, reason string) error {
	return d.update(ctx, id, map[string]any{
		"status":       models.UserBlocked,
		"block_reason": reason,
		"online":       false,
	})
}

// ResetTraffic zeroes the account's traffic counters.
func (d *UserDirectory) ResetTraffic(ctx context.Context, id string) error {
	return d.update(ctx, id, map[string]any{
		"traffic_used":  0,
		"traffic_today": 0,
	})
}

func (d *UserDirectory) update(ctx context.Context, id string, changes map[string]any) error {
	result := d.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(changes)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Remove deletes the account together with its traffic history.
func (d *UserDirectory) Remove(ctx context.Context, id string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.User{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return tx.Where("user_id = ?", id).Delete(&models.UserNodeTraffic{}).Error
	})
}

// ListExpiredBefore returns accounts whose expiry lies strictly before
// cutoff, oldest first. Accounts without an expiry never appear.
func (d *UserDirectory) ListExpiredBefore(ctx context.Context, cutoff time.Time) ([]engine.UserRef, error) {
	var users []models.User
	err := d.db.WithContext(ctx).
		Where("expire_at IS NOT NULL AND expire_at < ?", cutoff).
		Order("expire_at asc").Find(&users).Error
	if err != nil {
		return nil, err
	}

	refs := make([]engine.UserRef, 0, len(users))
	for _, u := range users {
		refs = append(refs, *userRef(u))
	}
	return refs, nil
}

func userRef(u models.User) *engine.UserRef {
	return &engine.UserRef{
		ID:       u.ID,
		Username: u.Username,
		Status:   u.Status,
		ExpireAt: u.ExpireAt,
	}
}
