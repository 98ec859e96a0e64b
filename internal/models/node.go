package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NodeStatus is the reported health of an edge node.
type NodeStatus string

const (
	NodeOnline   NodeStatus = "online"
	NodeOffline  NodeStatus = "offline"
	NodeDisabled NodeStatus = "disabled"
)

func (s NodeStatus) Valid() bool {
	switch s {
	case NodeOnline, NodeOffline, NodeDisabled:
		return true
	}
	return false
}

// Node is one managed edge server. Status and UptimePercent come from the
// panel's monitoring feed; ContainerName points at the local agent container
// when the node runs on the same host.
type Node struct {
	ID            string     `json:"id" gorm:"primaryKey"`
	Name          string     `json:"name" gorm:"uniqueIndex"`
	Address       string     `json:"address"`
	Status        NodeStatus `json:"status" gorm:"index;default:'offline'"`
	UptimePercent float64    `json:"uptime_percent"`
	ContainerName string     `json:"container_name,omitempty"`
	LastSeenAt    *time.Time `json:"last_seen_at"`
	LastRestartAt *time.Time `json:"last_restart_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (n *Node) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Status == "" {
		n.Status = NodeOffline
	}
	return
}

// UserNodeTraffic accumulates one user's usage on one node for one day.
// Day is formatted as YYYY-MM-DD; the sync endpoints upsert by the
// (user, node, day) key.
type UserNodeTraffic struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index:idx_user_node_day,unique"`
	NodeID    string    `json:"node_id" gorm:"index:idx_user_node_day,unique"`
	Day       string    `json:"day" gorm:"index:idx_user_node_day,unique"`
	UsedBytes int64     `json:"used_bytes"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UsedGB converts the day's byte counter to gigabytes.
func (t UserNodeTraffic) UsedGB() float64 {
	return float64(t.UsedBytes) / (1 << 30)
}

// TrafficDay formats a timestamp as a UserNodeTraffic day key.
func TrafficDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
