package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // America/New_York must resolve in minimal containers

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// PostgresPort is not configurable.
const PostgresPort = 5432

// TimeZone is used both to pick the target day and to stamp processing time.
const TimeZone = "America/New_York"

const (
	SchemaModeRecreate = "recreate"
	SchemaModeMigrate  = "migrate"
)

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// URL builds a lib/pq connection URL.
func (c DatabaseConfig) URL() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(PostgresPort)),
		Path:   "/" + c.Name,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{c.SSLMode}}.Encode()
	}
	return u.String()
}

type StorageConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

type JobConfig struct {
	Source     string `mapstructure:"source"`
	RunDate    string `mapstructure:"run_date"`
	SchemaMode string `mapstructure:"schema_mode"`
}

type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
}

type EmailConfig struct {
	From            string   `mapstructure:"from"`
	SMTPHost        string   `mapstructure:"smtp_host"`
	SMTPPort        int      `mapstructure:"smtp_port"`
	Username        string   `mapstructure:"username"`
	Password        string   `mapstructure:"password"`
	AlertRecipients []string `mapstructure:"alert_recipients"`
}

// Enabled reports whether enough is set to send mail.
func (c EmailConfig) Enabled() bool {
	return strings.TrimSpace(c.SMTPHost) != "" && len(c.AlertRecipients) > 0
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
}

type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Job      JobConfig      `mapstructure:"job"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Email    EmailConfig    `mapstructure:"email"`
	Temporal TemporalConfig `mapstructure:"temporal"`
}

// Location returns the fixed job time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(TimeZone)
	if err != nil {
		// tzdata is embedded, this cannot happen
		panic(err)
	}
	return loc
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"log_level":                 "LOG_LEVEL",
	"database.host":             "PG_HOST",
	"database.name":             "PG_DATABASE",
	"database.user":             "PG_USER",
	"database.password":         "PG_PASSWORD",
	"database.sslmode":          "PG_SSLMODE",
	"storage.access_key_id":     "AWS_ACCESS_KEY_ID",
	"storage.secret_access_key": "AWS_SECRET_ACCESS_KEY",
	"storage.bucket":            "AWS_BUCKET_NAME",
	"storage.region":            "AWS_REGION",
	"storage.endpoint":          "AWS_ENDPOINT",
	"storage.use_ssl":           "AWS_USE_SSL",
	"job.source":                "SOURCE_NAME",
	"job.run_date":              "RUN_DATE",
	"job.schema_mode":           "SCHEMA_MODE",
	"metrics.pushgateway_url":   "PUSHGATEWAY_URL",
	"email.from":                "ALERT_FROM",
	"email.smtp_host":           "SMTP_HOST",
	"email.smtp_port":           "SMTP_PORT",
	"email.username":            "SMTP_USERNAME",
	"email.password":            "SMTP_PASSWORD",
	"email.alert_recipients":    "ALERT_RECIPIENTS",
	"temporal.host_port":        "TEMPORAL_HOST_PORT",
	"temporal.namespace":        "TEMPORAL_NAMESPACE",
}

var defaults = map[string]interface{}{
	"log_level":          "info",
	"database.sslmode":   "require",
	"storage.endpoint":   "s3.amazonaws.com",
	"storage.use_ssl":    true,
	"job.source":         "indeed",
	"job.schema_mode":    SchemaModeRecreate,
	"email.smtp_port":    587,
	"temporal.host_port": "localhost:7233",
	"temporal.namespace": "default",
}

// Load reads configuration from the environment, falling back to a .env file
// in the working directory.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. Real environment variables
// always win over values from the file.
func LoadFile(envFile string) (*Config, error) {
	v := viper.New()

	for key, def := range defaults {
		v.SetDefault(key, def)
	}

	dotenv, err := readDotEnv(envFile)
	if err != nil {
		return nil, err
	}
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, errors.Wrapf(err, "bind %s", env)
		}
		if val, ok := dotenv[strings.ToLower(env)]; ok {
			v.SetDefault(key, val)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "error unmarshalling config")
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func readDotEnv(path string) (map[string]string, error) {
	values := map[string]string{}
	if path == "" {
		return values, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return values, nil
		}
		return nil, errors.Wrapf(err, "stat %s", path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "error reading %s", path)
	}
	for _, key := range v.AllKeys() {
		values[key] = v.GetString(key)
	}
	return values, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.Database.Host == "" {
		missing = append(missing, "PG_HOST")
	}
	if c.Database.Name == "" {
		missing = append(missing, "PG_DATABASE")
	}
	if c.Database.User == "" {
		missing = append(missing, "PG_USER")
	}
	if c.Storage.Bucket == "" {
		missing = append(missing, "AWS_BUCKET_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	switch c.Job.SchemaMode {
	case SchemaModeRecreate, SchemaModeMigrate:
	default:
		return fmt.Errorf("invalid SCHEMA_MODE %q", c.Job.SchemaMode)
	}

	if c.Job.RunDate != "" {
		if _, err := time.Parse(time.DateOnly, c.Job.RunDate); err != nil {
			return errors.Wrapf(err, "invalid RUN_DATE %q", c.Job.RunDate)
		}
	}

	if strings.TrimSpace(c.Job.Source) == "" {
		return fmt.Errorf("SOURCE_NAME must not be empty")
	}
	return nil
}
