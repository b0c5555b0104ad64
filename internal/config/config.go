package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Address           string        `mapstructure:"address"`
	Mode              string        `mapstructure:"mode"`
	APIPrefix         string        `mapstructure:"api_prefix"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	MaxUploadFiles    int           `mapstructure:"max_upload_files"`
	MaxUploadSize     int64         `mapstructure:"max_upload_size"`
	UploadConcurrency int           `mapstructure:"upload_concurrency"`
	CORSOrigins       []string      `mapstructure:"cors_origins"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	AccessSecret  string        `mapstructure:"access_secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	AccessExpiry  time.Duration `mapstructure:"access_expiry"`
	RefreshExpiry time.Duration `mapstructure:"refresh_expiry"`
	CookieName    string        `mapstructure:"cookie_name"`
	CookieSecure  bool          `mapstructure:"cookie_secure"`
	BcryptCost    int           `mapstructure:"bcrypt_cost"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type  string      `mapstructure:"type"`
	MinIO MinIOConfig `mapstructure:"minio"`
	S3    S3Config    `mapstructure:"s3"`
	Local LocalConfig `mapstructure:"local"`
}

// MinIOConfig MinIO配置
type MinIOConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	UseSSL     bool   `mapstructure:"use_ssl"`
	BucketName string `mapstructure:"bucket_name"`
	PublicURL  string `mapstructure:"public_url"`
}

// S3Config AWS S3配置
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Endpoint  string `mapstructure:"endpoint"`
	PublicURL string `mapstructure:"public_url"`
}

// LocalConfig 本地存储配置
type LocalConfig struct {
	RootPath  string `mapstructure:"root_path"`
	PublicURL string `mapstructure:"public_url"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type     string         `mapstructure:"type"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

// PostgresConfig PostgreSQL配置
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// SQLiteConfig SQLite配置
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// CacheConfig 缓存配置，限流计数器存放于此
type CacheConfig struct {
	Type  string      `mapstructure:"type"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	AuthPerMinute int `mapstructure:"auth_per_minute"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":5000")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.api_prefix", "/api")
	v.SetDefault("server.read_timeout", 5*time.Minute)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.max_upload_files", 10)
	v.SetDefault("server.max_upload_size", int64(100<<20))
	v.SetDefault("server.upload_concurrency", 4)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("auth.access_expiry", 15*time.Minute)
	v.SetDefault("auth.refresh_expiry", 7*24*time.Hour)
	v.SetDefault("auth.cookie_name", "refreshToken")
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("storage.type", "minio")
	v.SetDefault("storage.minio.endpoint", "localhost:9000")
	v.SetDefault("storage.minio.use_ssl", false)
	v.SetDefault("storage.minio.bucket_name", "filevault")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.local.root_path", "./data/blobs")
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.sqlite.path", "./data/filevault.db")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.timeout", 3*time.Second)
	v.SetDefault("ratelimit.auth_per_minute", 20)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load 加载配置: .env -> 默认值 -> 配置文件 -> 环境变量
func Load(configFile string) (*Config, error) {
	// .env 文件可选
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/filevault")
		v.AddConfigPath("$HOME/.filevault")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	setEnvOverrides(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// 未显式配置时，仅生产环境默认使用 Secure cookie，本地 http 开发可直接刷新令牌
	if !v.IsSet("auth.cookie_secure") {
		cfg.Auth.CookieSecure = cfg.IsProduction()
	}

	return &cfg, nil
}

// setEnvOverrides 设置环境变量覆盖
func setEnvOverrides(v *viper.Viper) {
	str := map[string]string{
		"SERVER_ADDRESS":        "server.address",
		"SERVER_MODE":           "server.mode",
		"JWT_ACCESS_SECRET":     "auth.access_secret",
		"JWT_REFRESH_SECRET":    "auth.refresh_secret",
		"STORAGE_TYPE":          "storage.type",
		"MINIO_ENDPOINT":        "storage.minio.endpoint",
		"MINIO_ACCESS_KEY":      "storage.minio.access_key",
		"MINIO_SECRET_KEY":      "storage.minio.secret_key",
		"MINIO_BUCKET_NAME":     "storage.minio.bucket_name",
		"MINIO_PUBLIC_URL":      "storage.minio.public_url",
		"AWS_S3_BUCKET":         "storage.s3.bucket",
		"AWS_REGION":            "storage.s3.region",
		"AWS_ACCESS_KEY_ID":     "storage.s3.access_key",
		"AWS_SECRET_ACCESS_KEY": "storage.s3.secret_key",
		"AWS_S3_ENDPOINT":       "storage.s3.endpoint",
		"DATABASE_TYPE":         "database.type",
		"SQLITE_PATH":           "database.sqlite.path",
		"POSTGRES_HOST":         "database.postgres.host",
		"POSTGRES_USERNAME":     "database.postgres.username",
		"POSTGRES_PASSWORD":     "database.postgres.password",
		"POSTGRES_DATABASE":     "database.postgres.database",
		"POSTGRES_SSL_MODE":     "database.postgres.ssl_mode",
		"CACHE_TYPE":            "cache.type",
		"REDIS_ADDRESS":         "cache.redis.address",
		"REDIS_PASSWORD":        "cache.redis.password",
		"LOG_LEVEL":             "logging.level",
	}
	for env, key := range str {
		if val := os.Getenv(env); val != "" {
			v.Set(key, val)
		}
	}

	ints := map[string]string{
		"POSTGRES_PORT": "database.postgres.port",
		"REDIS_DB":      "cache.redis.db",
	}
	for env, key := range ints {
		if val := os.Getenv(env); val != "" {
			if n, err := strconv.Atoi(val); err == nil {
				v.Set(key, n)
			}
		}
	}

	if secure := os.Getenv("COOKIE_SECURE"); secure != "" {
		if b, err := strconv.ParseBool(secure); err == nil {
			v.Set("auth.cookie_secure", b)
		}
	}

	// 与前端约定的来源
	if origin := os.Getenv("CLIENT_URL"); origin != "" {
		v.Set("server.cors_origins", strings.Split(origin, ","))
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Auth.AccessSecret == "" || c.Auth.RefreshSecret == "" {
		return errors.New("auth.access_secret and auth.refresh_secret are required")
	}
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return errors.New("access and refresh secrets must differ")
	}

	switch c.Storage.Type {
	case "minio", "local":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return errors.New("storage.s3.bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}

	switch c.Database.Type {
	case "sqlite", "postgres", "pgx":
	default:
		return fmt.Errorf("unknown database type: %s", c.Database.Type)
	}

	switch c.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown cache type: %s", c.Cache.Type)
	}

	if c.Server.MaxUploadFiles <= 0 {
		return errors.New("server.max_upload_files must be positive")
	}

	if c.IsProduction() && !c.Auth.CookieSecure {
		return errors.New("auth.cookie_secure must be enabled in production")
	}

	return nil
}

// GetDSN 获取数据库连接字符串
func (c *Config) GetDSN() string {
	switch c.Database.Type {
	case "postgres", "pgx":
		return buildPostgresDSN(c.Database.Postgres)
	case "sqlite":
		return c.Database.SQLite.Path
	default:
		return ""
	}
}

// buildPostgresDSN 构建PostgreSQL DSN
func buildPostgresDSN(config PostgresConfig) string {
	dsn := "host=" + config.Host
	dsn += " port=" + strconv.Itoa(config.Port)
	dsn += " user=" + config.Username
	dsn += " password=" + config.Password
	dsn += " dbname=" + config.Database
	dsn += " sslmode=" + config.SSLMode
	return dsn
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Server.Mode == "production" || c.Server.Mode == "release"
}

// GetGINMode 获取Gin模式
func (c *Config) GetGINMode() string {
	switch c.Server.Mode {
	case "debug":
		return gin.DebugMode
	case "release", "production":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}
