package models

import "time"

// TelegramConfig stores the bot credentials used for match alerts
type TelegramConfig struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	IsEnabled bool      `json:"is_enabled"`
	BotToken  string    `json:"bot_token"`
	ChatID    string    `json:"chat_id"`
	MinLevel  string    `gorm:"default:high" json:"min_level"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TelegramConfig) TableName() string {
	return "telegram_config"
}

// TelegramConfigRequest is used when updating the configuration
type TelegramConfigRequest struct {
	IsEnabled bool   `json:"is_enabled"`
	BotToken  string `json:"bot_token" binding:"required"`
	ChatID    string `json:"chat_id" binding:"required"`
	MinLevel  string `json:"min_level" binding:"omitempty,oneof=high medium"`
}

// ShouldNotify checks if a match is urgent enough for the configured minimum level
func (c *TelegramConfig) ShouldNotify(level AlertLevel) bool {
	if c == nil || !c.IsEnabled {
		return false
	}
	switch level {
	case AlertHigh:
		return true
	case AlertMedium:
		return c.MinLevel == string(AlertMedium)
	default:
		return false
	}
}
