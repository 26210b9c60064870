package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Mode selects how missing external credentials are treated.
type Mode string

const (
	// ModeStrict refuses to start unless every external dependency is configured.
	ModeStrict Mode = "strict"
	// ModeDegraded only requires the database. Optional integrations are
	// switched off and payment initiation fails per request with a
	// configuration error.
	ModeDegraded Mode = "degraded"
)

type Config struct {
	Mode     Mode           `yaml:"mode"`
	HTTP     HTTPConfig     `yaml:"http"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Payment  PaymentConfig  `yaml:"payment"`
	Worker   WorkerConfig   `yaml:"worker"`
	Admin    AdminConfig    `yaml:"admin"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDir string `yaml:"swagger_dir"`
	// PublicURL is the externally reachable base of this API, used to build
	// the gateway webhook URL.
	PublicURL string `yaml:"public_url"`
	// FrontendURL receives the browser after the payment return redirect.
	FrontendURL string `yaml:"frontend_url"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Name        string `yaml:"name"`
	SSLMode     string `yaml:"ssl_mode"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingTopic       string   `yaml:"booking_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type PaymentConfig struct {
	BaseURL          string   `yaml:"base_url"`
	APIKey           string   `yaml:"api_key"`
	WalletID         string   `yaml:"wallet_id"`
	Currency         string   `yaml:"currency"`
	LifespanMinutes  int      `yaml:"lifespan_minutes"`
	AcceptedMethods  []string `yaml:"accepted_methods"`
	TimeoutSeconds   int      `yaml:"timeout_seconds"`
	// TrustRedirectStatus applies the browser redirect status without asking
	// the gateway. Only allowed in degraded mode.
	TrustRedirectStatus bool `yaml:"trust_redirect_status"`
	Theme            string   `yaml:"theme"`
	LockSeconds      int      `yaml:"lock_seconds"`
	CallbackDedupTTL int      `yaml:"callback_dedup_ttl_minutes"`
}

// Configured reports whether the gateway credentials are present.
func (p PaymentConfig) Configured() bool {
	return p.APIKey != "" && p.WalletID != ""
}

type WorkerConfig struct {
	SweepSchedule       string `yaml:"sweep_schedule"`
	AbandonAfterMinutes int    `yaml:"abandon_after_minutes"`
	MetricsAddress      string `yaml:"metrics_address"`
}

type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// .env is optional; variables already in the environment win.
	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	overrides := map[string]*string{
		"DATABASE_HOST":     &c.Database.Host,
		"DATABASE_USER":     &c.Database.User,
		"DATABASE_PASSWORD": &c.Database.Password,
		"DATABASE_NAME":     &c.Database.Name,
		"REDIS_ADDR":        &c.Redis.Addr,
		"REDIS_PASSWORD":    &c.Redis.Password,
		"KONNECT_BASE_URL":  &c.Payment.BaseURL,
		"KONNECT_API_KEY":   &c.Payment.APIKey,
		"KONNECT_WALLET_ID": &c.Payment.WalletID,
		"PUBLIC_URL":        &c.HTTP.PublicURL,
		"FRONTEND_URL":      &c.HTTP.FrontendURL,
		"ADMIN_USERNAME":    &c.Admin.Username,
		"ADMIN_PASSWORD":    &c.Admin.Password,
	}
	for key, dst := range overrides {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("APP_MODE"); v != "" {
		c.Mode = Mode(v)
	}
	if v := os.Getenv("DATABASE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("%w: DATABASE_PORT %q is not a valid port", domain.ErrConfiguration, v)
		}
		c.Database.Port = port
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeStrict
	}
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.GRPC.Address == "" {
		c.GRPC.Address = ":9090"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Payment.BaseURL == "" {
		c.Payment.BaseURL = "https://api.konnect.network/api/v2"
	}
	if c.Payment.Currency == "" {
		c.Payment.Currency = "USD"
	}
	if c.Payment.LifespanMinutes == 0 {
		c.Payment.LifespanMinutes = 10
	}
	if len(c.Payment.AcceptedMethods) == 0 {
		c.Payment.AcceptedMethods = []string{"wallet", "bank_card", "e-DINAR"}
	}
	if c.Payment.TimeoutSeconds == 0 {
		c.Payment.TimeoutSeconds = 15
	}
	if c.Payment.Theme == "" {
		c.Payment.Theme = "light"
	}
	if c.Payment.LockSeconds == 0 {
		c.Payment.LockSeconds = 30
	}
	if c.Payment.CallbackDedupTTL == 0 {
		c.Payment.CallbackDedupTTL = 24 * 60
	}
	if c.Kafka.BookingTopic == "" {
		c.Kafka.BookingTopic = "booking-events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "tourbooking-notifier"
	}
	if c.Worker.SweepSchedule == "" {
		c.Worker.SweepSchedule = "@every 5m"
	}
	if c.Worker.MetricsAddress == "" {
		c.Worker.MetricsAddress = ":9091"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate enforces the configured mode. Every missing required setting is
// reported at once, wrapped in domain.ErrConfiguration.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.Host == "" {
		missing = append(missing, "database.host")
	}
	if c.Database.Name == "" {
		missing = append(missing, "database.name")
	}
	if c.Database.User == "" {
		missing = append(missing, "database.user")
	}

	switch c.Mode {
	case ModeStrict:
		if c.Payment.APIKey == "" {
			missing = append(missing, "payment.api_key")
		}
		if c.Payment.WalletID == "" {
			missing = append(missing, "payment.wallet_id")
		}
		if c.HTTP.PublicURL == "" {
			missing = append(missing, "http.public_url")
		}
		if c.Redis.Addr == "" {
			missing = append(missing, "redis.addr")
		}
		if len(c.Kafka.Brokers) == 0 {
			missing = append(missing, "kafka.brokers")
		}
		if c.Payment.TrustRedirectStatus {
			return fmt.Errorf("%w: payment.trust_redirect_status is not allowed in strict mode", domain.ErrConfiguration)
		}
	case ModeDegraded:
	default:
		return fmt.Errorf("%w: unknown mode %q", domain.ErrConfiguration, c.Mode)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}
