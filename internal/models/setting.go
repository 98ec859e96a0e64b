package models

import "time"

// Keys the backend itself reads. The UI may store additional keys; they are
// kept verbatim and served back.
const (
	SettingTelegramBotToken = "telegram_bot_token"
	SettingTelegramChatID   = "telegram_chat_id"
)

// Setting is one key/value row of runtime panel configuration. Values set
// here override their environment defaults without a restart.
type Setting struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Key       string    `json:"key" gorm:"uniqueIndex"`
	Value     string    `json:"value"`
	Category  string    `json:"category"` // "notifications", "engine", "ui"
	Type      string    `json:"type"`     // "string", "number", "boolean"
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
