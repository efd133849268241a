package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "MONGOSNAP"

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Lock     LockConfig     `mapstructure:"lock"`
	Volume   VolumeConfig   `mapstructure:"volume"`
	Database DatabaseConfig `mapstructure:"database"`
	AWS      AWSConfig      `mapstructure:"aws"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Offsite  OffsiteConfig  `mapstructure:"offsite"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

// LockConfig points at the file the exclusion lock is taken on. Empty means
// the running executable.
type LockConfig struct {
	Path string `mapstructure:"path"`
}

type VolumeConfig struct {
	Device     string `mapstructure:"device"`
	VolumeID   string `mapstructure:"volume_id"`
	MountPath  string `mapstructure:"mount_path"`
	Filesystem string `mapstructure:"filesystem"`
	DumpDir    string `mapstructure:"dump_dir"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Name           string `mapstructure:"name"`
	AuthDatabase   string `mapstructure:"auth_database"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	DesignatedNode string `mapstructure:"designated_node"`
}

type AWSConfig struct {
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type SnapshotConfig struct {
	Description     string        `mapstructure:"description"`
	JobTag          string        `mapstructure:"job_tag"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RetentionCutoff string        `mapstructure:"retention_cutoff"`
}

type NotifyConfig struct {
	URL      string         `mapstructure:"url"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

type OffsiteConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// keys lists every setting so that environment overrides work without a
// config file.
var keys = []string{
	"app.name", "app.log_level", "app.log_file",
	"lock.path",
	"volume.device", "volume.volume_id", "volume.mount_path", "volume.filesystem", "volume.dump_dir",
	"database.host", "database.name", "database.auth_database",
	"database.username", "database.password", "database.designated_node",
	"aws.region", "aws.access_key_id", "aws.secret_access_key",
	"snapshot.description", "snapshot.job_tag", "snapshot.poll_interval",
	"snapshot.timeout", "snapshot.retention_cutoff",
	"notify.url", "notify.timeout", "notify.telegram.bot_token", "notify.telegram.chat_id",
	"offsite.bucket", "offsite.prefix",
}

// Load reads the YAML file at path, if present, and overlays MONGOSNAP_*
// environment variables. The result is not validated.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("app.name", "mongosnap")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("volume.filesystem", "ext4")
	v.SetDefault("volume.dump_dir", "dump")
	v.SetDefault("database.host", "localhost:27017")
	v.SetDefault("snapshot.poll_interval", time.Minute)
	v.SetDefault("notify.timeout", 10*time.Second)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// MissingField names a required setting that was empty.
type MissingField struct {
	Key     string
	Purpose string
}

// ValidationError collects every problem found by Validate.
type ValidationError struct {
	Missing []MissingField
	Invalid []string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Missing)+len(e.Invalid))
	for _, m := range e.Missing {
		parts = append(parts, fmt.Sprintf("%s is required (%s)", m.Key, m.Purpose))
	}
	parts = append(parts, e.Invalid...)
	return "invalid config: " + strings.Join(parts, "; ")
}

type requirement struct {
	key     string
	purpose string
	value   string
}

func (c *Config) requirements() []requirement {
	return []requirement{
		{"volume.device", "block device to mount for backup storage", c.Volume.Device},
		{"volume.volume_id", "EBS volume id of the backup device", c.Volume.VolumeID},
		{"volume.mount_path", "where the backup volume is mounted", c.Volume.MountPath},
		{"database.designated_node", "replica set member allowed to run backups", c.Database.DesignatedNode},
		{"database.name", "database the dump is taken for", c.Database.Name},
		{"database.auth_database", "database the admin user authenticates against", c.Database.AuthDatabase},
		{"database.username", "admin user for mongodump and isMaster", c.Database.Username},
		{"database.password", "admin password for mongodump and isMaster", c.Database.Password},
		{"aws.region", "region of the EBS volume", c.AWS.Region},
		{"aws.access_key_id", "AWS access key id for snapshot calls", c.AWS.AccessKeyID},
		{"aws.secret_access_key", "AWS secret access key for snapshot calls", c.AWS.SecretAccessKey},
		{"snapshot.description", "description set on snapshots and used for retention", c.Snapshot.Description},
	}
}

// Validate reports every missing required field and malformed optional value
// at once rather than stopping at the first.
func (c *Config) Validate() error {
	verr := &ValidationError{}

	for _, r := range c.requirements() {
		if strings.TrimSpace(r.value) == "" {
			verr.Missing = append(verr.Missing, MissingField{Key: r.key, Purpose: r.purpose})
		}
	}

	if c.Snapshot.PollInterval <= 0 {
		verr.Invalid = append(verr.Invalid, "snapshot.poll_interval must be positive")
	}
	if c.Snapshot.Timeout < 0 {
		verr.Invalid = append(verr.Invalid, "snapshot.timeout must not be negative")
	}
	if c.Snapshot.RetentionCutoff != "" {
		if _, err := ParseCutoff(c.Snapshot.RetentionCutoff, time.Now()); err != nil {
			verr.Invalid = append(verr.Invalid, fmt.Sprintf("snapshot.retention_cutoff: %v", err))
		}
	}
	if (c.Notify.Telegram.BotToken == "") != (c.Notify.Telegram.ChatID == "") {
		verr.Invalid = append(verr.Invalid, "notify.telegram needs both bot_token and chat_id")
	}

	if len(verr.Missing) > 0 || len(verr.Invalid) > 0 {
		return verr
	}
	return nil
}

// LockPath returns the configured lock reference or fallback.
func (c *Config) LockPath(fallback string) string {
	if c.Lock.Path != "" {
		return c.Lock.Path
	}
	return fallback
}

func (c *Config) PruneEnabled() bool {
	return c.Snapshot.RetentionCutoff != ""
}

func (c *Config) OffsiteEnabled() bool {
	return c.Offsite.Bucket != ""
}
