package conf

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	Client  ClientConfig
	Upload  UploadConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type ClientConfig struct {
	Endpoint             string        `mapstructure:"endpoint"`
	CallTimeout          time.Duration `mapstructure:"call_timeout"`
	RetryableStatusCodes []int         `mapstructure:"retryable_status_codes"`
	ThreadListLimit      int           `mapstructure:"thread_list_limit"`
	ThreadListOrder      string        `mapstructure:"thread_list_order"`
}

type UploadConfig struct {
	Workers     int   `mapstructure:"workers"`
	MaxFileSize int64 `mapstructure:"max_file_size"`
}

type StorageConfig struct {
	Backend string      `mapstructure:"backend"`
	MinIO   MinIOConfig `mapstructure:"minio"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"accesskey"`
	SecretKey string `mapstructure:"secretkey"`
	UseSSL    bool   `mapstructure:"usessl"`
	Bucket    string `mapstructure:"bucket"`
}

type LogConfig struct {
	Level            string        `mapstructure:"level"`
	Format           string        `mapstructure:"format"`
	Output           string        `mapstructure:"output"`
	File             FileLogConfig `mapstructure:"file"`
	EnableCaller     bool          `mapstructure:"enablecaller"`
	EnableStacktrace bool          `mapstructure:"enablestacktrace"`
}

type FileLogConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"maxsize"`
	MaxAge     int    `mapstructure:"maxage"`
	MaxBackups int    `mapstructure:"maxbackups"`
	Compress   bool   `mapstructure:"compress"`
}

func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&config)
	return &config, nil
}

func applyDefaults(c *Config) {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Client.CallTimeout == 0 {
		c.Client.CallTimeout = 30 * time.Second
	}
	if c.Client.ThreadListOrder == "" {
		c.Client.ThreadListOrder = "desc"
	}
	if c.Upload.Workers == 0 {
		c.Upload.Workers = 4
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
