package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Settings is the full configuration surface, read once at startup.
// There is no hot-reload: a settings change means a restart.
type Settings struct {
	Database      DbSettings             `mapstructure:"database"`
	Channel       ChannelSettings        `mapstructure:"channel"`
	Events        BrokerSettings         `mapstructure:"events"`
	Mail          MailSettings           `mapstructure:"mail"`
	Bots          map[string]BotSettings `mapstructure:"bots" validate:"required,min=1,dive"`
	Observability Observability          `mapstructure:"observability"`
	Logging       LoggingSettings        `mapstructure:"logging"`

	MessagesFile string `mapstructure:"messages_file" validate:"required"`
	// LeadOwners restricts the lead query to these owner names. Empty
	// means no owner filter.
	LeadOwners []string `mapstructure:"lead_owners"`

	PollInterval     time.Duration `mapstructure:"poll_interval"`
	BatchSize        int           `mapstructure:"batch_size" validate:"min=1"`
	MessageDelayMin  time.Duration `mapstructure:"message_delay_min"`
	MessageDelayMax  time.Duration `mapstructure:"message_delay_max"`
	AntiLockInterval time.Duration `mapstructure:"anti_lock_interval"`
	MaxRetries       int           `mapstructure:"max_retries" validate:"min=0"`
	StartStagger     time.Duration `mapstructure:"start_stagger"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	RestartCooldown  time.Duration `mapstructure:"restart_cooldown"`
	MaxRestarts      int           `mapstructure:"max_restarts" validate:"min=0"`
	// PollFailureThreshold is how many consecutive poll failures are
	// tolerated before an infrastructure alert is emailed.
	PollFailureThreshold int `mapstructure:"poll_failure_threshold" validate:"min=1"`
}

// DbSettings selects and configures the lead/status repository backend.
type DbSettings struct {
	Type     string `mapstructure:"type" validate:"required,oneof=postgres mongo spanner"`
	DSN      string `mapstructure:"dsn"`
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"db_name"`
}

// BotSettings is one static bot-to-campus assignment.
type BotSettings struct {
	Campuses []string `mapstructure:"campuses" validate:"required,min=1"`
	// Session names the delivery-channel session the bot owns, e.g. the
	// gateway session id whose QR pairing belongs to this bot's number.
	Session string `mapstructure:"session" validate:"required"`
}

// ChannelSettings configures the delivery channel shared settings.
// Each bot opens its own session against the same gateway.
type ChannelSettings struct {
	Type    string        `mapstructure:"type" validate:"required,oneof=wagateway"`
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// BrokerSettings configures the attempt-event publisher. Type "none"
// disables publishing.
type BrokerSettings struct {
	Type      string `mapstructure:"type" validate:"omitempty,oneof=rabbitmq gcp-pubsub none"`
	URL       string `mapstructure:"url"`
	Exchange  string `mapstructure:"exchange"`
	Topic     string `mapstructure:"topic"`
	ProjectID string `mapstructure:"project_id"`
	PoolSize  int    `mapstructure:"pool_size"`
}

// MailSettings covers SMTP delivery of error alerts and daily reports.
type MailSettings struct {
	Server          string `mapstructure:"server"`
	Port            int    `mapstructure:"port"`
	UseTLS          bool   `mapstructure:"use_tls"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Sender          string `mapstructure:"sender"`
	ErrorTo         string `mapstructure:"error_to"`
	ReportTo        string `mapstructure:"report_to"`
	DailyReportTime string `mapstructure:"daily_report_time"`
}

type Observability struct {
	ServiceName string `mapstructure:"service_name" validate:"required"`
	TracingURL  string `mapstructure:"tracing_url" validate:"required"`
}

type LoggingSettings struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

func (c *Settings) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.MessageDelayMax < c.MessageDelayMin {
		return fmt.Errorf("message_delay_max (%s) must be >= message_delay_min (%s)",
			c.MessageDelayMax, c.MessageDelayMin)
	}
	if c.Database.Type == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for postgres")
	}
	if (c.Database.Type == "mongo" || c.Database.Type == "spanner") && c.Database.URI == "" {
		return fmt.Errorf("database.uri is required for %s", c.Database.Type)
	}
	return nil
}

func applyDefaults(c *Settings) {
	if c.PollInterval == 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.BatchSize == 0 {
		c.BatchSize = 5
	}
	if c.MessageDelayMin == 0 {
		c.MessageDelayMin = 3 * time.Second
	}
	if c.MessageDelayMax == 0 {
		c.MessageDelayMax = 6 * time.Second
	}
	if c.AntiLockInterval == 0 {
		c.AntiLockInterval = 240 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.StartStagger == 0 {
		c.StartStagger = 15 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.RestartCooldown == 0 {
		c.RestartCooldown = time.Minute
	}
	if c.MaxRestarts == 0 {
		c.MaxRestarts = 3
	}
	if c.PollFailureThreshold == 0 {
		c.PollFailureThreshold = 5
	}
	if c.Events.Type == "" {
		c.Events.Type = "none"
	}
	if c.Channel.Timeout == 0 {
		c.Channel.Timeout = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 587
	}
}

// LoadFromFile reads leadbot.yaml from configPath (with an optional
// leadbot.<environment> overlay) and applies LEADBOT_* env overrides.
func LoadFromFile(configPath string) (*Settings, error) {
	env := getEnvWithDefaultLookup("ENVIRONMENT", "development")

	cfg := &Settings{}
	viper.SetConfigType("yaml")
	viper.SetConfigName("leadbot")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := mergeConfig(configPath, "leadbot."+env); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("merge %s config: %w", env, err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Settings) LoadFromEnv() error {
	viper.AutomaticEnv()
	viper.SetEnvPrefix("LEADBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // env vars like LEADBOT_DATABASE_TYPE

	viper.BindEnv("database.type")
	viper.BindEnv("database.dsn")
	viper.BindEnv("database.uri")
	viper.BindEnv("database.db_name")
	viper.BindEnv("channel.type")
	viper.BindEnv("channel.base_url")
	viper.BindEnv("channel.token")
	viper.BindEnv("events.type")
	viper.BindEnv("events.url")
	viper.BindEnv("events.exchange")
	viper.BindEnv("events.topic")
	viper.BindEnv("events.project_id")
	viper.BindEnv("mail.server")
	viper.BindEnv("mail.port")
	viper.BindEnv("mail.use_tls")
	viper.BindEnv("mail.username")
	viper.BindEnv("mail.password")
	viper.BindEnv("mail.sender")
	viper.BindEnv("mail.error_to")
	viper.BindEnv("mail.report_to")
	viper.BindEnv("mail.daily_report_time")
	viper.BindEnv("messages_file")
	viper.BindEnv("poll_interval")
	viper.BindEnv("batch_size")
	viper.BindEnv("message_delay_min")
	viper.BindEnv("message_delay_max")
	viper.BindEnv("anti_lock_interval")
	viper.BindEnv("max_retries")
	viper.BindEnv("observability.service_name")
	viper.BindEnv("observability.tracing_url")

	if err := viper.Unmarshal(&c); err != nil {
		return err
	}
	return nil
}

func mergeConfig(path string, name string) error {
	viper.SetConfigName(name)
	viper.AddConfigPath(path)
	return viper.MergeInConfig()
}

func getEnvWithDefaultLookup(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}
