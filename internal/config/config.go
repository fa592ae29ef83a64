package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type BotConfig struct {
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	// Telegram
	TelegramToken         string        `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	TelegramBaseURL       string        `envconfig:"TELEGRAM_BASE_URL" default:"https://api.telegram.org"`
	TelegramMode          string        `envconfig:"TELEGRAM_MODE" default:"polling"` // polling | webhook
	TelegramWebhookSecret string        `envconfig:"TELEGRAM_WEBHOOK_SECRET"`
	TelegramPollTimeout   time.Duration `envconfig:"TELEGRAM_POLL_TIMEOUT" default:"30s"`
	TelegramRPS           float64       `envconfig:"TELEGRAM_RPS" default:"25"`
	TelegramBurst         int           `envconfig:"TELEGRAM_BURST" default:"5"`

	// Settings API
	SettingsAPIURL string `envconfig:"SETTINGS_API_URL" required:"true"`
	SettingsAPIKey string `envconfig:"SETTINGS_API_KEY" required:"true"`

	// AWS / SQS
	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
	SQSWaitTime        int32  `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs         int32  `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout      int32  `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"60"`

	SubscriptionCreatedQueueURL string `envconfig:"SQS_SUBSCRIPTION_CREATED_URL" required:"true"`
	SubscriptionRemovedQueueURL string `envconfig:"SQS_SUBSCRIPTION_REMOVED_URL" required:"true"`
	SubscriptionUpdatedQueueURL string `envconfig:"SQS_SUBSCRIPTION_UPDATED_URL" required:"true"`
	PatchNoteQueueURL           string `envconfig:"SQS_PATCH_NOTE_URL" required:"true"`
	UpdateStatusQueueURL        string `envconfig:"SQS_UPDATE_STATUS_URL" required:"true"`
	UpdateRequestedQueueURL     string `envconfig:"SQS_UPDATE_REQUESTED_URL" required:"true"`

	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"8"`

	// Correlation store
	StoreBackend      string        `envconfig:"STORE_BACKEND" default:"memory"` // memory | postgres
	StoreDBDSN        string        `envconfig:"STORE_DB_DSN"`
	DBMaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns        int32         `envconfig:"DB_MIN_CONNS" default:"1"`
	DBMaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	DBMaxConnIdleTime time.Duration `envconfig:"DB_MAX_CONN_IDLE_TIME" default:"5m"`
	DBHealthCheck     time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"30s"`
	DBConnectTimeout  time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"5s"`
}

type MockSettingsConfig struct {
	Port      string `envconfig:"PORT" default:"8090"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	APIKey    string `envconfig:"SETTINGS_API_KEY"`

	// Outcome: "ok", "fail" or "random".
	Mode          string        `envconfig:"MOCK_MODE" default:"ok"`
	FailRate      float64       `envconfig:"MOCK_FAIL_RATE" default:"0.2"`
	Delay         time.Duration `envconfig:"MOCK_DELAY" default:"0s"`
	UpdateCommand string        `envconfig:"MOCK_UPDATE_COMMAND" default:"steamcmd +app_update"`
}

// LoadBot reads a local .env file when present, then the environment.
func LoadBot() BotConfig {
	_ = godotenv.Load()
	var cfg BotConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadMockSettings() MockSettingsConfig {
	_ = godotenv.Load()
	var cfg MockSettingsConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
