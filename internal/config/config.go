package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Source types understood by the app.
const (
	SourceDirectory          = "directory"
	SourceSubversionRepo     = "svn-repo"
	SourceSubversionWorkCopy = "svn-wc"
	SourceGitRepo            = "git"
	SourceTrac               = "trac"
	SourceLatestFile         = "latest"
	SourceLAMP               = "lamp"
	SourceDownloadLatest     = "download"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Sources  []SourceConfig `mapstructure:"sources"`
	Backup   BackupConfig   `mapstructure:"backup"`
	Store    StoreConfig    `mapstructure:"store"`
	Secret   SecretConfig   `mapstructure:"secret"`
	Email    EmailConfig    `mapstructure:"email"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
	// RunLog is the operator-facing append-only text log. It is never
	// rotated; its tail becomes the email attachment.
	RunLog string `mapstructure:"run_log"`
}

type SourceConfig struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`

	// Location is the source-specific locator: a directory for "directory",
	// "svn-repo", "svn-wc" and "trac", a clone URL for "git", a filename glob
	// for "latest", a remote key prefix for "download". Unused for "lamp".
	Location string `mapstructure:"location"`

	// Database names the MySQL database dumped by the "lamp" type.
	Database string `mapstructure:"database"`

	ArchivePath string `mapstructure:"archive_path"`
	Schedule    string `mapstructure:"schedule"`
	Enabled     bool   `mapstructure:"enabled"`
}

type BackupConfig struct {
	// RetentionDays is the archive age threshold for the sweeper. The two
	// legacy deployments disagreed (20 vs 60 days); 20 is the default and
	// operators who want the longer window set it explicitly.
	RetentionDays int `mapstructure:"retention_days"`

	// DownloadDir receives archives fetched by "download" sources.
	DownloadDir string `mapstructure:"download_dir"`
}

type StoreConfig struct {
	Type string `mapstructure:"type"` // s3, local, gdrive

	// AWS S3
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`

	// Local directory store
	Path string `mapstructure:"path"`

	// Google Drive
	CredentialsFile string `mapstructure:"credentials_file"`
	FolderID        string `mapstructure:"folder_id"`
}

type SecretConfig struct {
	Source string      `mapstructure:"source"` // file, vault
	File   string      `mapstructure:"file"`
	Vault  VaultConfig `mapstructure:"vault"`
}

type VaultConfig struct {
	Address  string `mapstructure:"address"`
	Token    string `mapstructure:"token"`
	RoleID   string `mapstructure:"role_id"`
	SecretID string `mapstructure:"secret_id"`
	Mount    string `mapstructure:"mount"`
	Path     string `mapstructure:"path"`
	Field    string `mapstructure:"field"`
}

type EmailConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("app.name", "backstop")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.run_log", "/var/log/backstop/backup.log")
	v.SetDefault("backup.retention_days", 20)
	v.SetDefault("store.type", "s3")
	v.SetDefault("secret.source", "file")
	v.SetDefault("secret.vault.mount", "secret")
	v.SetDefault("secret.vault.field", "passphrase")
	v.SetDefault("email.port", 25)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source configuration is required")
	}

	for i, src := range c.Sources {
		if src.Name == "" {
			return fmt.Errorf("source[%d]: name is required", i)
		}
		switch src.Type {
		case SourceDirectory, SourceSubversionRepo, SourceSubversionWorkCopy,
			SourceGitRepo, SourceTrac:
			if src.Location == "" {
				return fmt.Errorf("source[%d] %s: location is required", i, src.Name)
			}
			if src.ArchivePath == "" {
				return fmt.Errorf("source[%d] %s: archive_path is required", i, src.Name)
			}
		case SourceLatestFile:
			if src.Location == "" {
				return fmt.Errorf("source[%d] %s: location (glob) is required", i, src.Name)
			}
		case SourceLAMP:
			if src.Database == "" {
				return fmt.Errorf("source[%d] %s: database is required", i, src.Name)
			}
			if src.ArchivePath == "" {
				return fmt.Errorf("source[%d] %s: archive_path is required", i, src.Name)
			}
		case SourceDownloadLatest:
			if c.Backup.DownloadDir == "" {
				return fmt.Errorf("source[%d] %s: backup.download_dir is required", i, src.Name)
			}
		default:
			return fmt.Errorf("source[%d] %s: unsupported type %q", i, src.Name, src.Type)
		}
		if src.Enabled && src.Schedule == "" {
			return fmt.Errorf("source[%d] %s: schedule is required when enabled", i, src.Name)
		}
	}

	switch c.Store.Type {
	case "s3":
		if c.Store.Bucket == "" {
			return fmt.Errorf("store.bucket is required for s3")
		}
	case "local":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for local")
		}
	case "gdrive":
		if c.Store.CredentialsFile == "" || c.Store.FolderID == "" {
			return fmt.Errorf("store.credentials_file and store.folder_id are required for gdrive")
		}
	default:
		return fmt.Errorf("unsupported store type %q", c.Store.Type)
	}

	if c.Secret.Source == "vault" && c.Secret.Vault.Path == "" {
		return fmt.Errorf("secret.vault.path is required when secret.source is vault")
	}

	if c.Email.Enabled {
		if c.Email.Host == "" || c.Email.From == "" || len(c.Email.To) == 0 {
			return fmt.Errorf("email.host, email.from and email.to are required when email is enabled")
		}
	}

	return nil
}

func (c *Config) EnabledSources() []SourceConfig {
	var enabled []SourceConfig
	for _, src := range c.Sources {
		if src.Enabled {
			enabled = append(enabled, src)
		}
	}
	return enabled
}
