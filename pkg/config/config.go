package config

import "time"

// Mailbox definition mailbox_service YAML structure
type Mailbox struct {
	Port string `mapstructure:"port"`

	MongoSQL   DatabaseConfig `mapstructure:"mongo"`
	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	Redis      RedisConfig    `mapstructure:"redis"`
	MinIO      MinIOConfig    `mapstructure:"minio"`
	Token      TokenConfig    `mapstructure:"token"`

	// IdentityTimeout bounds the current-user lookup when a mailbox session starts
	IdentityTimeout time.Duration `mapstructure:"identity_timeout"`
	// AvatarURLExpiry presigned avatar url lifetime
	AvatarURLExpiry time.Duration `mapstructure:"avatar_url_expiry"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	RedisDB int `mapstructure:"redis_db"`
	// Addr 單機模式; 空字串時改用 .env 內的 sentinel 設定
	Addr string `mapstructure:"addr"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// MinIOConfig definition avatar bucket setting
type MinIOConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Bucket        string `mapstructure:"bucket"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// TokenConfig definition jwt setting
type TokenConfig struct {
	Secret string `mapstructure:"secret"`
}

const (
	// DefaultIdentityTimeout used when identity_timeout is not set
	DefaultIdentityTimeout = 5 * time.Second
	// DefaultAvatarURLExpiry used when avatar_url_expiry is not set
	DefaultAvatarURLExpiry = time.Hour
)

// WithDefaults fill zero durations
func (m Mailbox) WithDefaults() Mailbox {
	if m.IdentityTimeout <= 0 {
		m.IdentityTimeout = DefaultIdentityTimeout
	}
	if m.AvatarURLExpiry <= 0 {
		m.AvatarURLExpiry = DefaultAvatarURLExpiry
	}
	return m
}
