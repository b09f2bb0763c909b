package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Logging      LoggingConfig
	RabbitMQ     RabbitMQConfig
	Discovery    DiscoveryConfig
	Gesture      GestureConfig
	GeminiAPIKey string
}

type ServerConfig struct {
	Host            string
	Port            int
	Env             string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	AccessSecret string
}

type LoggingConfig struct {
	Level string
}

// RabbitMQConfig with an empty URL disables match fan-out.
type RabbitMQConfig struct {
	URL string
}

type DiscoveryConfig struct {
	BatchSize     int
	ShuffleWindow int
	// RemoteTimeout bounds one call to the profile store.
	RemoteTimeout  time.Duration
	FetchAttempts  int
	RecordAttempts int
	RetryBackoff   time.Duration
	// SampleFallback serves the bundled sample profiles when the store
	// cannot be reached or has nobody to show.
	SampleFallback       bool
	ExclusionTTL         time.Duration
	DefaultMaxDistanceKm float64
	MaxDistanceKm        float64
}

type GestureConfig struct {
	ScreenWidth       float64
	DistanceFraction  float64
	VelocityThreshold float64
	FlickMinRatio     float64
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("ENV", "development")
	v.SetDefault("SERVER_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second)

	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_SSL_MODE", "disable")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DISCOVERY_BATCH_SIZE", 20)
	v.SetDefault("DISCOVERY_SHUFFLE_WINDOW", 5)
	v.SetDefault("DISCOVERY_REMOTE_TIMEOUT", 12*time.Second)
	v.SetDefault("DISCOVERY_FETCH_ATTEMPTS", 3)
	v.SetDefault("DISCOVERY_RECORD_ATTEMPTS", 3)
	v.SetDefault("DISCOVERY_RETRY_BACKOFF", 500*time.Millisecond)
	v.SetDefault("DISCOVERY_EXCLUSION_TTL", 24*time.Hour)
	v.SetDefault("DISCOVERY_DEFAULT_MAX_DISTANCE_KM", 50.0)
	v.SetDefault("DISCOVERY_MAX_DISTANCE_KM", 500.0)

	v.SetDefault("GESTURE_SCREEN_WIDTH", 390.0)
	v.SetDefault("GESTURE_DISTANCE_FRACTION", 0.25)
	v.SetDefault("GESTURE_VELOCITY_THRESHOLD", 800.0)
	v.SetDefault("GESTURE_FLICK_MIN_RATIO", 0.35)
}

// Load loads configuration from environment variables or .env file
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	// Try to read from .env file, but don't fail if it doesn't exist
	_ = v.ReadInConfig()

	// Sample profiles are a development aid unless asked for explicitly.
	v.SetDefault("DISCOVERY_SAMPLE_FALLBACK", v.GetString("ENV") != "production")

	config := &Config{
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetInt("SERVER_PORT"),
			Env:             v.GetString("ENV"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSL_MODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Logging: LoggingConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		RabbitMQ: RabbitMQConfig{
			URL: v.GetString("RABBITMQ_URL"),
		},
		Discovery: DiscoveryConfig{
			BatchSize:            v.GetInt("DISCOVERY_BATCH_SIZE"),
			ShuffleWindow:        v.GetInt("DISCOVERY_SHUFFLE_WINDOW"),
			RemoteTimeout:        v.GetDuration("DISCOVERY_REMOTE_TIMEOUT"),
			FetchAttempts:        v.GetInt("DISCOVERY_FETCH_ATTEMPTS"),
			RecordAttempts:       v.GetInt("DISCOVERY_RECORD_ATTEMPTS"),
			RetryBackoff:         v.GetDuration("DISCOVERY_RETRY_BACKOFF"),
			SampleFallback:       v.GetBool("DISCOVERY_SAMPLE_FALLBACK"),
			ExclusionTTL:         v.GetDuration("DISCOVERY_EXCLUSION_TTL"),
			DefaultMaxDistanceKm: v.GetFloat64("DISCOVERY_DEFAULT_MAX_DISTANCE_KM"),
			MaxDistanceKm:        v.GetFloat64("DISCOVERY_MAX_DISTANCE_KM"),
		},
		Gesture: GestureConfig{
			ScreenWidth:       v.GetFloat64("GESTURE_SCREEN_WIDTH"),
			DistanceFraction:  v.GetFloat64("GESTURE_DISTANCE_FRACTION"),
			VelocityThreshold: v.GetFloat64("GESTURE_VELOCITY_THRESHOLD"),
			FlickMinRatio:     v.GetFloat64("GESTURE_FLICK_MIN_RATIO"),
		},
		GeminiAPIKey: v.GetString("GEMINI_API_KEY"),
	}

	// Validate critical configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates critical configuration values
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("database name is required")
	}
	if c.JWT.AccessSecret == "" {
		return fmt.Errorf("JWT access secret is required")
	}
	if len(c.JWT.AccessSecret) < 32 {
		return fmt.Errorf("JWT access secret must be at least 32 characters")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if c.Discovery.RemoteTimeout <= 0 {
		return fmt.Errorf("discovery remote timeout must be positive")
	}
	if c.Discovery.RetryBackoff < 0 {
		return fmt.Errorf("discovery retry backoff must not be negative")
	}
	if c.Discovery.BatchSize <= 0 {
		return fmt.Errorf("discovery batch size must be positive")
	}
	if c.Discovery.FetchAttempts <= 0 || c.Discovery.RecordAttempts <= 0 {
		return fmt.Errorf("discovery attempts must be positive")
	}
	if c.Discovery.DefaultMaxDistanceKm <= 0 || c.Discovery.MaxDistanceKm < c.Discovery.DefaultMaxDistanceKm {
		return fmt.Errorf("discovery distances must satisfy 0 < default <= max")
	}
	if c.Gesture.DistanceFraction <= 0 || c.Gesture.DistanceFraction >= 1 {
		return fmt.Errorf("gesture distance fraction must be in (0, 1)")
	}
	if c.Gesture.VelocityThreshold <= 0 {
		return fmt.Errorf("gesture velocity threshold must be positive")
	}
	return nil
}

// IsProduction reports whether ENV is production.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// GetDSN returns PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// GetAddr returns Redis address
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
