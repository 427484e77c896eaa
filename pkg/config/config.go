package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "RESTAURANT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv                = "RESTAURANT_APP_ENV"
	EnvPort                  = "RESTAURANT_APP_PORT"
	EnvDBDSN                 = "RESTAURANT_DB_DSN"
	EnvDBHost                = "RESTAURANT_DB_HOST"
	EnvDBUser                = "RESTAURANT_DB_USER"
	EnvDBName                = "RESTAURANT_DB_NAME"
	EnvRedisURL              = "RESTAURANT_REDIS_URL"
	EnvJWTSecret             = "RESTAURANT_JWT_SECRET"
	EnvJWTIssuer             = "RESTAURANT_JWT_ISSUER"
	EnvJWTExpMins            = "RESTAURANT_JWT_EXPIRATION_MINUTES"
	EnvEventBroker           = "RESTAURANT_EVENT_BROKER"
	EnvDeliveryFlatFee       = "RESTAURANT_DELIVERY_FLAT_FEE"
	EnvDeliveryDistanceBands = "RESTAURANT_DELIVERY_DISTANCE_BANDS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

const (
	BrokerPubSub = "pubsub"
	BrokerKafka  = "kafka"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GoogleMaps    GoogleMapsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Kafka         KafkaConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Square        SquareConfig
	Telegram      TelegramConfig
	Email         EmailConfig
	Delivery      DeliveryConfig
	Kitchen       KitchenConfig
	Payments      PaymentsConfig
	Notifications NotificationsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if _, err := cfg.Delivery.Bands(); err != nil {
		return nil, err
	}
	switch cfg.Eventing.Broker {
	case BrokerPubSub, BrokerKafka:
	default:
		return nil, fmt.Errorf("%s must be %q or %q", EnvEventBroker, BrokerPubSub, BrokerKafka)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RESTAURANT_APP_ENV" required:"true"`
	Port         string `envconfig:"RESTAURANT_APP_PORT" required:"true"`
	URL          string `envconfig:"RESTAURANT_APP_URL" default:"http://localhost:3000"`
	LogLevel     string `envconfig:"RESTAURANT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"RESTAURANT_LOG_WARN_STACK" default:"false"`
	Currency     string `envconfig:"RESTAURANT_CURRENCY" default:"SAR"`
	// CORSOrigins is a comma separated allow list for browser clients.
	CORSOrigins []string `envconfig:"RESTAURANT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"RESTAURANT_SERVICE_KIND" default:"api"`
	// MetricsAddr is where background workers expose /metrics; empty disables it.
	MetricsAddr string `envconfig:"RESTAURANT_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"RESTAURANT_DB_DSN"`
	Driver string `envconfig:"RESTAURANT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RESTAURANT_DB_HOST"`
	LegacyPort     int    `envconfig:"RESTAURANT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RESTAURANT_DB_USER"`
	LegacyPassword string `envconfig:"RESTAURANT_DB_PASSWORD"`
	LegacyName     string `envconfig:"RESTAURANT_DB_NAME"`
	LegacySSLMode  string `envconfig:"RESTAURANT_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"RESTAURANT_SQLITE_PATH" default:"restaurant.db"`

	MaxOpenConns    int           `envconfig:"RESTAURANT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RESTAURANT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RESTAURANT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RESTAURANT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"RESTAURANT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RESTAURANT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"RESTAURANT_REDIS_ADDR"`
	Password     string        `envconfig:"RESTAURANT_REDIS_PASSWORD"`
	DB           int           `envconfig:"RESTAURANT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RESTAURANT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RESTAURANT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RESTAURANT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RESTAURANT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RESTAURANT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"RESTAURANT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"RESTAURANT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"RESTAURANT_JWT_EXPIRATION_MINUTES" required:"true"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"RESTAURANT_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"RESTAURANT_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"RESTAURANT_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"RESTAURANT_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"RESTAURANT_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"RESTAURANT_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginUserLimit  int           `envconfig:"RESTAURANT_AUTH_RATE_LIMIT_LOGIN_USER_LIMIT" default:"5"`
	LoginIPLimit    int           `envconfig:"RESTAURANT_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	TelegramWindow  time.Duration `envconfig:"RESTAURANT_AUTH_RATE_LIMIT_TELEGRAM_WINDOW" default:"1m"`
	TelegramIPLimit int           `envconfig:"RESTAURANT_AUTH_RATE_LIMIT_TELEGRAM_IP_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	UseSQLite       bool `envconfig:"RESTAURANT_USE_SQLITE" default:"false"`
	AutoMigrate     bool `envconfig:"RESTAURANT_AUTO_MIGRATE" default:"false"`
	SimulatePayment bool `envconfig:"RESTAURANT_SIMULATE_PAYMENTS" default:"true"`
}

type EventingConfig struct {
	Broker               string        `envconfig:"RESTAURANT_EVENT_BROKER" default:"pubsub"`
	OutboxIdempotencyTTL time.Duration `envconfig:"RESTAURANT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GoogleMapsConfig struct {
	APIKey string `envconfig:"RESTAURANT_GOOGLE_MAPS_API_KEY"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"RESTAURANT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"RESTAURANT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"RESTAURANT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic           string `envconfig:"RESTAURANT_PUBSUB_ORDERS_TOPIC" default:"restaurant-order-events"`
	PaymentsTopic         string `envconfig:"RESTAURANT_PUBSUB_PAYMENTS_TOPIC" default:"restaurant-payment-events"`
	LoyaltyTopic          string `envconfig:"RESTAURANT_PUBSUB_LOYALTY_TOPIC" default:"restaurant-loyalty-events"`
	AnalyticsSubscription string `envconfig:"RESTAURANT_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"restaurant-analytics-sub"`
}

type KafkaConfig struct {
	Brokers      []string      `envconfig:"RESTAURANT_KAFKA_BROKERS" default:"localhost:9092"`
	ClientID     string        `envconfig:"RESTAURANT_KAFKA_CLIENT_ID" default:"restaurant-outbox"`
	WriteTimeout time.Duration `envconfig:"RESTAURANT_KAFKA_WRITE_TIMEOUT" default:"10s"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"RESTAURANT_BIGQUERY_DATASET" default:"restaurant"`
	OrderEventsTable string `envconfig:"RESTAURANT_BIGQUERY_ORDER_EVENTS_TABLE" default:"order_events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"RESTAURANT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"RESTAURANT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"RESTAURANT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"RESTAURANT_OUTBOX_RETENTION" default:"720h"`
}

type SquareConfig struct {
	AccessToken string `envconfig:"RESTAURANT_SQUARE_ACCESS_TOKEN"`
	LocationID  string `envconfig:"RESTAURANT_SQUARE_LOCATION_ID"`
	Env         string `envconfig:"RESTAURANT_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type TelegramConfig struct {
	BotToken       string        `envconfig:"RESTAURANT_TELEGRAM_BOT_TOKEN"`
	BaseURL        string        `envconfig:"RESTAURANT_TELEGRAM_BASE_URL" default:"https://api.telegram.org"`
	LoginMaxAge    time.Duration `envconfig:"RESTAURANT_TELEGRAM_LOGIN_MAX_AGE" default:"24h"`
	RequestTimeout time.Duration `envconfig:"RESTAURANT_TELEGRAM_TIMEOUT" default:"10s"`
}

type EmailConfig struct {
	SendgridAPIKey string `envconfig:"RESTAURANT_SENDGRID_API_KEY"`
	BaseURL        string `envconfig:"RESTAURANT_SENDGRID_BASE_URL" default:"https://api.sendgrid.com"`
	FromAddress    string `envconfig:"RESTAURANT_EMAIL_FROM" default:"orders@example.com"`
	FromName       string `envconfig:"RESTAURANT_EMAIL_FROM_NAME" default:"بيت المحاشي"`
}

type DeliveryConfig struct {
	FlatFee       string  `envconfig:"RESTAURANT_DELIVERY_FLAT_FEE" default:"10"`
	RestaurantLat float64 `envconfig:"RESTAURANT_LOCATION_LAT"`
	RestaurantLng float64 `envconfig:"RESTAURANT_LOCATION_LNG"`
	// DistanceBands is "maxKm:fee" pairs, e.g. "3:5,7:10,15:15". Empty keeps the flat fee.
	DistanceBands string `envconfig:"RESTAURANT_DELIVERY_DISTANCE_BANDS"`
}

type KitchenConfig struct {
	Email  string `envconfig:"RESTAURANT_KITCHEN_EMAIL" default:"kitchen@example.com"`
	AppURL string `envconfig:"RESTAURANT_KITCHEN_APP_URL" default:"http://localhost:3000/kitchen"`
}

type PaymentsConfig struct {
	SessionTTL        time.Duration `envconfig:"RESTAURANT_PAYMENT_SESSION_TTL" default:"30m"`
	WebhookSecret     string        `envconfig:"RESTAURANT_PAYMENT_WEBHOOK_SECRET"`
	WebhookDedupeTTL  time.Duration `envconfig:"RESTAURANT_PAYMENT_WEBHOOK_DEDUPE_TTL" default:"72h"`
	ExpiryJobInterval time.Duration `envconfig:"RESTAURANT_PAYMENT_EXPIRY_INTERVAL" default:"5m"`
}

type NotificationsConfig struct {
	Retention    time.Duration `envconfig:"RESTAURANT_NOTIFICATION_RETENTION" default:"720h"`
	CronInterval time.Duration `envconfig:"RESTAURANT_CRON_INTERVAL" default:"1h"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
