// Package notify delivers rule notifications over Telegram and webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/containrrr/shoutrrr"
	"gorm.io/gorm"

	"github.com/nodewarden/warden/internal/models"
)

// webhookRetries bounds webhook delivery at the first call plus this many
// retries, all inside the caller's dispatch timeout.
const webhookRetries = 2

// Service sends notifications for the notify action. Telegram credentials
// are read from the settings table on every send, with the boot-time
// environment values as fallback, so they can be rotated from the UI
// without a restart.
type Service struct {
	db     *gorm.DB
	client *http.Client

	fallbackToken  string
	fallbackChatID string

	// send wraps shoutrrr.Send, swappable in tests.
	send func(rawURL string, message string) error
}

func New(db *gorm.DB, telegramToken, telegramChatID string) *Service {
	return &Service{
		db:             db,
		client:         &http.Client{Timeout: 10 * time.Second},
		fallbackToken:  telegramToken,
		fallbackChatID: telegramChatID,
		send:           shoutrrr.Send,
	}
}

// Send delivers message over the given channel. webhookURL is only used for
// the webhook channel.
func (s *Service) Send(ctx context.Context, channel, message, webhookURL string) error {
	switch channel {
	case models.ChannelTelegram:
		return s.sendTelegram(message)
	case models.ChannelWebhook:
		return s.sendWebhook(ctx, webhookURL, message)
	default:
		return fmt.Errorf("unknown notification channel %q", channel)
	}
}

func (s *Service) sendTelegram(message string) error {
	token := s.setting(models.SettingTelegramBotToken, s.fallbackToken)
	chatID := s.setting(models.SettingTelegramChatID, s.fallbackChatID)
	if token == "" || chatID == "" {
		return errors.New("telegram credentials not configured")
	}

	serviceURL := fmt.Sprintf("telegram://%s@telegram?chats=%s", token, chatID)
	if err := s.send(serviceURL, message); err != nil {
		return fmt.Errorf("send telegram notification: %w", err)
	}
	return nil
}

// sendWebhook POSTs a JSON payload, retrying transient failures. 4xx
// responses are not retried: the request itself is wrong.
func (s *Service) sendWebhook(ctx context.Context, rawURL, message string) error {
	if err := validateWebhookURL(rawURL); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		err = fmt.Errorf("webhook returned status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, webhookRetries), ctx)); err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	return nil
}

// setting reads one settings row, falling back to the boot-time value.
func (s *Service) setting(key, fallback string) string {
	if s.db == nil {
		return fallback
	}
	var row models.Setting
	if err := s.db.Where(models.Setting{Key: key}).First(&row).Error; err != nil || row.Value == "" {
		return fallback
	}
	return row.Value
}

func validateWebhookURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("webhook URL has no host")
	}
	return nil
}
