package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppPort string
	AppEnv  string

	DBDriver    string
	MySQLHost   string
	MySQLPort   string
	MySQLDB     string
	MySQLUser   string
	MySQLPass   string
	PostgresDSN string

	RedisAddr string
	RedisDB   int

	IdempTTLSecs int

	ERPMode          string
	SAPBaseURL       string
	SAPUsername      string
	SAPPassword      string
	SAPAPIKey        string
	SAPServicePrefix string
	SAPTimeoutSecs   int
	SAPRatePerSecond float64
	AdapterTimeout   int

	GracePeriodMinutes int
	SchedulerInterval  int
	SchedulerBatchSize int
	SchedulerWorkers   int
	CommitMaxAttempts  int
	CommitClaimTTLSecs int
	AutoCommitEnabled  bool
	UndoTarget         string
	RiskLowThreshold   float64
	RiskHighThreshold  float64
	RiskProfilePath    string
	DemoMode           bool
	JWTSecret          string
	JWTExpiryMinutes   int
	AdminUsername      string
	AdminPassword      string
	SlackWebhookURL    string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("APP_ENV", "development")

	v.SetDefault("DB_DRIVER", "mysql")
	v.SetDefault("MYSQL_HOST", "mysql")
	v.SetDefault("MYSQL_PORT", "3306")
	v.SetDefault("MYSQL_DB", "erp_middleware")
	v.SetDefault("MYSQL_USER", "erp")
	v.SetDefault("MYSQL_PASS", "erp")
	v.SetDefault("POSTGRES_DSN", "")

	v.SetDefault("REDIS_ADDR", "redis:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("IDEMPOTENCY_TTL_SECONDS", 300)

	v.SetDefault("ERP_MODE", "mock")
	v.SetDefault("SAP_BASE_URL", "")
	v.SetDefault("SAP_USERNAME", "")
	v.SetDefault("SAP_PASSWORD", "")
	v.SetDefault("SAP_API_KEY", "")
	v.SetDefault("SAP_SERVICE_PREFIX", "")
	v.SetDefault("SAP_TIMEOUT_SECONDS", 30)
	v.SetDefault("SAP_RATE_PER_SECOND", 5.0)
	v.SetDefault("ADAPTER_TIMEOUT_SECONDS", 15)

	v.SetDefault("GRACE_PERIOD_MINUTES", 5)
	v.SetDefault("SCHEDULER_INTERVAL_SECONDS", 60)
	v.SetDefault("SCHEDULER_BATCH_SIZE", 50)
	v.SetDefault("SCHEDULER_CONCURRENCY", 4)
	v.SetDefault("COMMIT_MAX_ATTEMPTS", 3)
	v.SetDefault("COMMIT_CLAIM_TTL_SECONDS", 120)
	v.SetDefault("AUTO_COMMIT_ENABLED", true)
	v.SetDefault("UNDO_TARGET", "detected")
	v.SetDefault("RISK_LOW_THRESHOLD", 0.3)
	v.SetDefault("RISK_HIGH_THRESHOLD", 0.7)
	v.SetDefault("RISK_PROFILE_PATH", "")
	v.SetDefault("DEMO_MODE", false)

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_EXPIRY_MINUTES", 480)
	v.SetDefault("ADMIN_USERNAME", "")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("SLACK_WEBHOOK_URL", "")
}

// Load reads .env (if any), an optional config.yaml from the working directory
// or ./config, then environment variables. Env wins over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	v.AutomaticEnv()

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		AppPort: v.GetString("APP_PORT"),
		AppEnv:  v.GetString("APP_ENV"),

		DBDriver:    strings.ToLower(v.GetString("DB_DRIVER")),
		MySQLHost:   v.GetString("MYSQL_HOST"),
		MySQLPort:   v.GetString("MYSQL_PORT"),
		MySQLDB:     v.GetString("MYSQL_DB"),
		MySQLUser:   v.GetString("MYSQL_USER"),
		MySQLPass:   v.GetString("MYSQL_PASS"),
		PostgresDSN: v.GetString("POSTGRES_DSN"),

		RedisAddr:    v.GetString("REDIS_ADDR"),
		RedisDB:      v.GetInt("REDIS_DB"),
		IdempTTLSecs: v.GetInt("IDEMPOTENCY_TTL_SECONDS"),

		ERPMode:          strings.ToLower(v.GetString("ERP_MODE")),
		SAPBaseURL:       v.GetString("SAP_BASE_URL"),
		SAPUsername:      v.GetString("SAP_USERNAME"),
		SAPPassword:      v.GetString("SAP_PASSWORD"),
		SAPAPIKey:        v.GetString("SAP_API_KEY"),
		SAPServicePrefix: v.GetString("SAP_SERVICE_PREFIX"),
		SAPTimeoutSecs:   v.GetInt("SAP_TIMEOUT_SECONDS"),
		SAPRatePerSecond: v.GetFloat64("SAP_RATE_PER_SECOND"),
		AdapterTimeout:   v.GetInt("ADAPTER_TIMEOUT_SECONDS"),

		GracePeriodMinutes: v.GetInt("GRACE_PERIOD_MINUTES"),
		SchedulerInterval:  v.GetInt("SCHEDULER_INTERVAL_SECONDS"),
		SchedulerBatchSize: v.GetInt("SCHEDULER_BATCH_SIZE"),
		SchedulerWorkers:   v.GetInt("SCHEDULER_CONCURRENCY"),
		CommitMaxAttempts:  v.GetInt("COMMIT_MAX_ATTEMPTS"),
		CommitClaimTTLSecs: v.GetInt("COMMIT_CLAIM_TTL_SECONDS"),
		AutoCommitEnabled:  v.GetBool("AUTO_COMMIT_ENABLED"),
		UndoTarget:         strings.ToLower(v.GetString("UNDO_TARGET")),
		RiskLowThreshold:   v.GetFloat64("RISK_LOW_THRESHOLD"),
		RiskHighThreshold:  v.GetFloat64("RISK_HIGH_THRESHOLD"),
		RiskProfilePath:    v.GetString("RISK_PROFILE_PATH"),
		DemoMode:           v.GetBool("DEMO_MODE"),

		JWTSecret:        v.GetString("JWT_SECRET"),
		JWTExpiryMinutes: v.GetInt("JWT_EXPIRY_MINUTES"),
		AdminUsername:    v.GetString("ADMIN_USERNAME"),
		AdminPassword:    v.GetString("ADMIN_PASSWORD"),
		SlackWebhookURL:  v.GetString("SLACK_WEBHOOK_URL"),
	}
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "mysql":
		if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
			return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
		}
		// ensure port is valid
		if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
			return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return errors.New("missing POSTGRES_DSN for DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	switch c.ERPMode {
	case "mock", "sap", "hybrid":
	default:
		return fmt.Errorf("invalid ERP_MODE %q (mock|sap|hybrid)", c.ERPMode)
	}
	if (c.ERPMode == "sap" || c.ERPMode == "hybrid") && c.SAPBaseURL == "" {
		return errors.New("missing SAP_BASE_URL for ERP_MODE " + c.ERPMode)
	}
	if c.JWTSecret == "" {
		return errors.New("missing JWT_SECRET")
	}
	if c.RiskLowThreshold <= 0 || c.RiskHighThreshold > 1 || c.RiskLowThreshold >= c.RiskHighThreshold {
		return fmt.Errorf("risk thresholds must satisfy 0 < low < high <= 1 (got %.2f, %.2f)",
			c.RiskLowThreshold, c.RiskHighThreshold)
	}
	if c.UndoTarget != "detected" && c.UndoTarget != "cancelled" {
		return fmt.Errorf("invalid UNDO_TARGET %q (detected|cancelled)", c.UndoTarget)
	}
	if c.CommitMaxAttempts < 1 {
		return errors.New("COMMIT_MAX_ATTEMPTS must be >= 1")
	}
	if c.SchedulerInterval < 1 {
		return errors.New("SCHEDULER_INTERVAL_SECONDS must be >= 1")
	}
	return nil
}

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// multiStatements=true is handy for migrations; parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?multiStatements=true&parseTime=true&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == "postgres" {
		return c.PostgresDSN
	}
	return c.MySQLDSN()
}

func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodMinutes) * time.Minute
}

func (c *Config) SchedulerTick() time.Duration {
	return time.Duration(c.SchedulerInterval) * time.Second
}

func (c *Config) AdapterCallTimeout() time.Duration {
	return time.Duration(c.AdapterTimeout) * time.Second
}

func (c *Config) ClaimTTL() time.Duration {
	return time.Duration(c.CommitClaimTTLSecs) * time.Second
}

func (c *Config) JWTExpiry() time.Duration {
	return time.Duration(c.JWTExpiryMinutes) * time.Minute
}

func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempTTLSecs) * time.Second
}
