package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nodewarden/warden/internal/models"
)

func setupSettingsDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Setting{}))
	return db
}

func TestService_SendWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers json payload", func(t *testing.T) {
		var calls atomic.Int32
		var got map[string]string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		svc := New(nil, "", "")
		err := svc.Send(ctx, models.ChannelWebhook, "cap reached for alice", server.URL)
		require.NoError(t, err)
		assert.EqualValues(t, 1, calls.Load())
		assert.Equal(t, "cap reached for alice", got["message"])
		assert.NotEmpty(t, got["timestamp"])
	})

	t.Run("retries a transient failure", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		svc := New(nil, "", "")
		err := svc.Send(ctx, models.ChannelWebhook, "ping", server.URL)
		require.NoError(t, err)
		assert.EqualValues(t, 2, calls.Load())
	})

	t.Run("gives up after the retry budget", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		svc := New(nil, "", "")
		err := svc.Send(ctx, models.ChannelWebhook, "ping", server.URL)
		assert.ErrorContains(t, err, "deliver webhook")
		assert.EqualValues(t, 1+webhookRetries, calls.Load())
	})

	t.Run("4xx is permanent", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		svc := New(nil, "", "")
		err := svc.Send(ctx, models.ChannelWebhook, "ping", server.URL)
		assert.ErrorContains(t, err, "webhook returned status 404")
		assert.EqualValues(t, 1, calls.Load(), "a client error is not retried")
	})

	t.Run("rejects non-http schemes", func(t *testing.T) {
		svc := New(nil, "", "")
		err := svc.Send(ctx, models.ChannelWebhook, "ping", "ftp://example.com/hook")
		assert.ErrorContains(t, err, "webhook URL must use http or https")
	})

	t.Run("rejects a url without host", func(t *testing.T) {
		svc := New(nil, "", "")
		err := svc.Send(ctx, models.ChannelWebhook, "ping", "http://")
		assert.ErrorContains(t, err, "webhook URL has no host")
	})
}

func TestService_SendTelegram(t *testing.T) {
	ctx := context.Background()

	t.Run("uses boot-time credentials", func(t *testing.T) {
		var gotURL, gotMessage string
		svc := New(setupSettingsDB(t), "boot-token", "boot-chat")
		svc.send = func(rawURL, message string) error {
			gotURL, gotMessage = rawURL, message
			return nil
		}

		require.NoError(t, svc.Send(ctx, models.ChannelTelegram, "node offline", ""))
		assert.Equal(t, "telegram://boot-token@telegram?chats=boot-chat", gotURL)
		assert.Equal(t, "node offline", gotMessage)
	})

	t.Run("settings rows override the environment", func(t *testing.T) {
		db := setupSettingsDB(t)
		require.NoError(t, db.Create(&models.Setting{Key: models.SettingTelegramBotToken, Value: "db-token"}).Error)
		require.NoError(t, db.Create(&models.Setting{Key: models.SettingTelegramChatID, Value: "db-chat"}).Error)

		var gotURL string
		svc := New(db, "boot-token", "boot-chat")
		svc.send = func(rawURL, _ string) error {
			gotURL = rawURL
			return nil
		}

		require.NoError(t, svc.Send(ctx, models.ChannelTelegram, "hi", ""))
		assert.Equal(t, "telegram://db-token@telegram?chats=db-chat", gotURL)
	})

	t.Run("empty settings fall back", func(t *testing.T) {
		db := setupSettingsDB(t)
		require.NoError(t, db.Create(&models.Setting{Key: models.SettingTelegramBotToken, Value: ""}).Error)

		var gotURL string
		svc := New(db, "boot-token", "boot-chat")
		svc.send = func(rawURL, _ string) error {
			gotURL = rawURL
			return nil
		}

		require.NoError(t, svc.Send(ctx, models.ChannelTelegram, "hi", ""))
		assert.Equal(t, "telegram://boot-token@telegram?chats=boot-chat", gotURL)
	})

	t.Run("missing credentials", func(t *testing.T) {
		svc := New(setupSettingsDB(t), "", "")
		err := svc.Send(ctx, models.ChannelTelegram, "hi", "")
		assert.ErrorContains(t, err, "telegram credentials not configured")
	})

	t.Run("delivery failure is wrapped", func(t *testing.T) {
		svc := New(setupSettingsDB(t), "tok", "chat")
		svc.send = func(_, _ string) error { return errors.New("timeout") }
		err := svc.Send(ctx, models.ChannelTelegram, "hi", "")
		assert.ErrorContains(t, err, "send telegram notification")
	})
}

func TestService_SendUnknownChannel(t *testing.T) {
	svc := New(nil, "", "")
	err := svc.Send(context.Background(), "sms", "hi", "")
	assert.ErrorContains(t, err, `unknown notification channel "sms"`)
}
