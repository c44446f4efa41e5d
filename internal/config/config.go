package config

import (
	"time"

	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/dodokudo/autostudio/pkg/logger"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logger   logger.Config  `yaml:"logger"`
	Threads  ThreadsConfig  `yaml:"threads"`
	Worker   WorkerConfig   `yaml:"worker"`
	Notifier NotifierConfig `yaml:"notifier"`
	Auth     AuthConfig     `yaml:"auth"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

// ThreadsConfig configures the publish client. With PostingEnabled false
// the client runs in dry-run mode and returns generated ids without
// calling the platform.
type ThreadsConfig struct {
	Token          string `yaml:"token"`
	AccountID      string `yaml:"account_id"`
	APIBase        string `yaml:"api_base"`
	PostingEnabled bool   `yaml:"posting_enabled"`
	Timeout        string `yaml:"timeout"`
}

// WorkerConfig holds the per-path dispatch policies. Delays are
// configuration rather than hardcoded jitter so tests can zero them.
// Durations are Go duration strings ("3s", "10m").
type WorkerConfig struct {
	Timezone  string               `yaml:"timezone"`
	Poll      PollConfig           `yaml:"poll"`
	Jobs      JobWorkerConfig      `yaml:"jobs"`
	Schedules ScheduleWorkerConfig `yaml:"schedules"`
	Comments  CommentWorkerConfig  `yaml:"comments"`
}

// PollConfig enables the built-in poller for deployments without an
// external cron caller.
type PollConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Interval string `yaml:"interval"`
}

type JobWorkerConfig struct {
	MaxUnits   int    `yaml:"max_units"`
	ReplyDelay string `yaml:"reply_delay"`
}

type ScheduleWorkerConfig struct {
	MinReplyDelay  string `yaml:"min_reply_delay"`
	MaxReplyDelay  string `yaml:"max_reply_delay"`
	StuckThreshold string `yaml:"stuck_threshold"`
	PostAttempts   int    `yaml:"post_attempts"`
	RetryBaseDelay string `yaml:"retry_base_delay"`
}

type CommentWorkerConfig struct {
	BatchSize    int    `yaml:"batch_size"`
	Cooldown     string `yaml:"cooldown"`
	MaxAttempts  int    `yaml:"max_attempts"`
	PrePostDelay string `yaml:"pre_post_delay"`
}

type NotifierConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

type AuthConfig struct {
	TOTPSecret string `yaml:"totp_secret"`
	CronSecret string `yaml:"cron_secret"`
}

// Duration parses a config duration string, falling back when it is empty
// or malformed.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	// Set default values
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5840
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Threads.APIBase == "" {
		cfg.Threads.APIBase = "https://graph.threads.net/v1.0"
	}
	if cfg.Threads.Timeout == "" {
		cfg.Threads.Timeout = "120s"
	}
	if cfg.Worker.Timezone == "" {
		cfg.Worker.Timezone = "Asia/Tokyo"
	}
	if cfg.Worker.Poll.Interval == "" {
		cfg.Worker.Poll.Interval = "1m"
	}
	if cfg.Worker.Jobs.MaxUnits == 0 {
		cfg.Worker.Jobs.MaxUnits = 5
	}
	if cfg.Worker.Jobs.ReplyDelay == "" {
		cfg.Worker.Jobs.ReplyDelay = "3s"
	}
	if cfg.Worker.Schedules.MinReplyDelay == "" {
		cfg.Worker.Schedules.MinReplyDelay = "30s"
	}
	if cfg.Worker.Schedules.MaxReplyDelay == "" {
		cfg.Worker.Schedules.MaxReplyDelay = "90s"
	}
	if cfg.Worker.Schedules.StuckThreshold == "" {
		cfg.Worker.Schedules.StuckThreshold = "10m"
	}
	if cfg.Worker.Schedules.PostAttempts == 0 {
		cfg.Worker.Schedules.PostAttempts = 3
	}
	if cfg.Worker.Schedules.RetryBaseDelay == "" {
		cfg.Worker.Schedules.RetryBaseDelay = "5s"
	}
	if cfg.Worker.Comments.BatchSize == 0 {
		cfg.Worker.Comments.BatchSize = 10
	}
	if cfg.Worker.Comments.Cooldown == "" {
		cfg.Worker.Comments.Cooldown = "1m"
	}
	if cfg.Worker.Comments.MaxAttempts == 0 {
		cfg.Worker.Comments.MaxAttempts = 3
	}
	if cfg.Worker.Comments.PrePostDelay == "" {
		cfg.Worker.Comments.PrePostDelay = "2s"
	}
	if cfg.Notifier.SMTPPort == 0 {
		cfg.Notifier.SMTPPort = 587
	}

	return cfg, nil
}
