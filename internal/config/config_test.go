package config

import (
	"os"
	"testing"
)

func setRequired(t *testing.T) {
	t.Helper()
	for k, v := range map[string]string{
		"TELEGRAM_BOT_TOKEN":           "token",
		"SETTINGS_API_URL":             "http://settings",
		"SETTINGS_API_KEY":             "key",
		"AWS_REGION":                   "eu-central-1",
		"SQS_SUBSCRIPTION_CREATED_URL": "q1",
		"SQS_SUBSCRIPTION_REMOVED_URL": "q2",
		"SQS_SUBSCRIPTION_UPDATED_URL": "q3",
		"SQS_PATCH_NOTE_URL":           "q4",
		"SQS_UPDATE_STATUS_URL":        "q5",
		"SQS_UPDATE_REQUESTED_URL":     "q6",
	} {
		t.Setenv(k, v)
	}
}

func TestLoadBotDefaults(t *testing.T) {
	setRequired(t)
	cfg := LoadBot()
	if cfg.StoreBackend != "memory" || cfg.TelegramMode != "polling" || cfg.WorkerConcurrency != 8 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.TelegramPollTimeout.Seconds() != 30 {
		t.Fatalf("unexpected poll timeout %s", cfg.TelegramPollTimeout)
	}
}

func TestLoadBotPanicsWithoutToken(t *testing.T) {
	setRequired(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	os.Unsetenv("TELEGRAM_BOT_TOKEN")
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on missing token")
		}
	}()
	LoadBot()
}
