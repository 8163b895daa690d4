package config

import (
	"errors"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Push struct {
		ExpoBaseURL      string        `envconfig:"EXPO_BASE_URL" default:"https://exp.host/--/api/v2"`
		AccessToken      string        `envconfig:"EXPO_ACCESS_TOKEN"`
		RequestTimeout   time.Duration `envconfig:"EXPO_REQUEST_TIMEOUT" default:"30s"`
		SendBatchSize    int           `envconfig:"PUSH_SEND_BATCH_SIZE" default:"100"`
		ReceiptBatchSize int           `envconfig:"RECEIPTS_BATCH_SIZE" default:"200"`
		ReceiptMinAge    time.Duration `envconfig:"RECEIPTS_MIN_AGE" default:"15m"`
		Disabled         bool          `envconfig:"PUSH_DISABLED" default:"false"`
		DryRun           bool          `envconfig:"PUSH_DRY_RUN" default:"false"`
	} `envconfig:""`

	Jobs struct {
		QueueInterval    time.Duration `envconfig:"QUEUE_INTERVAL" default:"1m"`
		DeadlineInterval time.Duration `envconfig:"DEADLINE_INTERVAL" default:"24h"`
		DeadlineAt       string        `envconfig:"DEADLINE_AT" default:"09:00"`
		ReceiptInterval  time.Duration `envconfig:"RECEIPT_INTERVAL" default:"15m"`
		Timeout          time.Duration `envconfig:"JOB_TIMEOUT" default:"5m"`
		QueuePageSize    int           `envconfig:"QUEUE_PAGE_SIZE" default:"20"`
		Timezone         string        `envconfig:"JOBS_TZ" default:"Asia/Seoul"`
	} `envconfig:""`

	Intake struct {
		Backend   string `envconfig:"INTAKE_BACKEND" default:"rabbitmq"`
		RabbitURL string `envconfig:"RABBITMQ_URL"`
		Queue     string `envconfig:"INTAKE_QUEUE" default:"notification_requests"`
		Prefetch  int    `envconfig:"INTAKE_PREFETCH" default:"10"`
		RedisKey  string `envconfig:"INTAKE_REDIS_KEY" default:"push-dispatcher:intake"`
	} `envconfig:""`

	Firebase struct {
		CredentialsPath string `envconfig:"FIREBASE_CREDENTIALS_PATH"`
		ProjectID       string `envconfig:"FIREBASE_PROJECT_ID"`
		StorageBucket   string `envconfig:"FIREBASE_STORAGE_BUCKET"`
	} `envconfig:""`

	Alerts struct {
		TelegramToken string `envconfig:"ALERT_TG_BOT_TOKEN"`
		ChatID        int64  `envconfig:"ALERT_TG_CHAT_ID"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения. Файл .env, если он есть, читается первым
// и не перекрывает уже заданные переменные.
func Load() AppConfig {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("не удалось прочитать .env: %v", err)
	}
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
