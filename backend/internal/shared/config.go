// ============================================================================
// backend/internal/shared/config.go
// Process configuration: defaults, optional YAML file, .env and environment
// ============================================================================

package shared

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ============================================================================
// Configuration Structs
// ============================================================================

// AppConfig holds the configuration of the whole process. It is built once at
// startup and passed explicitly to every component that needs it.
type AppConfig struct {
	ServiceName string `yaml:"service_name"`
	HTTPPort    string `yaml:"http_port"`
	HealthPort  string `yaml:"health_port"` // gRPC health endpoint, empty disables it
	Environment string `yaml:"environment"` // development, staging, production
	LogLevel    string `yaml:"log_level"`   // debug, info, warn, error
	LogPretty   bool   `yaml:"log_pretty"`

	MongoDB  MongoConfig    `yaml:"mongodb"`
	Storage  StorageConfig  `yaml:"storage"`
	Security SecurityConfig `yaml:"security"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	CORS     CORSConfig     `yaml:"cors"`
	Uploads  UploadConfig   `yaml:"uploads"`
	Report   ReportConfig   `yaml:"report"`
}

// StorageConfig selects the record store and the attachment byte store
type StorageConfig struct {
	Driver string     `yaml:"driver"` // mongo, memory
	Blob   BlobConfig `yaml:"blob"`
}

// BlobConfig holds attachment storage settings
type BlobConfig struct {
	Driver    string `yaml:"driver"` // inline, s3
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"` // MinIO or other S3 compatible endpoint
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	JWTExpirationHours int           `yaml:"jwt_expiration_hours"`
	ResetTokenTTL      time.Duration `yaml:"reset_token_ttl"`
	OTPTTL             time.Duration `yaml:"otp_ttl"`
	BCryptCost         int           `yaml:"bcrypt_cost"`
	ImportPasswordTag  string        `yaml:"import_password_prefix"` // prefix of bulk import credentials
}

// SMTPConfig holds outbound mail settings
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAge           int      `yaml:"max_age"` // in seconds
}

// UploadConfig bounds multipart payloads
type UploadConfig struct {
	MaxAttachmentBytes int64 `yaml:"max_attachment_bytes"`
	MaxImportBytes     int64 `yaml:"max_import_bytes"`
	MaxPhotoBytes      int64 `yaml:"max_photo_bytes"`
}

// ReportConfig tunes the join engine
type ReportConfig struct {
	Concurrency int `yaml:"concurrency"` // parallel per-student achievement fetches
}

// ============================================================================
// Configuration Loading Functions
// ============================================================================

// LoadEnv loads environment variables from .env file
func LoadEnv(envFile string) error {
	if envFile == "" {
		envFile = ".env"
	}
	return godotenv.Load(envFile)
}

// DefaultConfig returns the configuration used when nothing else is set
func DefaultConfig() *AppConfig {
	return &AppConfig{
		ServiceName: "achievements-api",
		HTTPPort:    "5000",
		HealthPort:  "50051",
		Environment: "development",
		LogLevel:    "info",
		LogPretty:   true,
		MongoDB: MongoConfig{
			Database:       "studentRepository",
			ConnectTimeout: 20 * time.Second,
			MaxPoolSize:    50,
			MinPoolSize:    5,
			MaxIdleTime:    30 * time.Second,
		},
		Storage: StorageConfig{
			Driver: "mongo",
			Blob:   BlobConfig{Driver: "inline", Region: "us-east-1"},
		},
		Security: SecurityConfig{
			JWTExpirationHours: 24,
			ResetTokenTTL:      15 * time.Minute,
			OTPTTL:             10 * time.Minute,
			BCryptCost:         10,
			ImportPasswordTag:  "CegStud@",
		},
		SMTP: SMTPConfig{Port: 465},
		CORS: CORSConfig{
			AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		},
		Uploads: UploadConfig{
			MaxAttachmentBytes: 5 << 20,
			MaxImportBytes:     10 << 20,
			MaxPhotoBytes:      2 << 20,
		},
		Report: ReportConfig{Concurrency: 8},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// at path and finally the process environment.
func LoadConfig(path string) (*AppConfig, error) {
	config := DefaultConfig()

	if path != "" {
		if raw, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(raw, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnv(c *AppConfig) {
	c.ServiceName = GetEnv("SERVICE_NAME", c.ServiceName)
	c.HTTPPort = GetEnv("HTTP_PORT", c.HTTPPort)
	c.HealthPort = GetEnv("HEALTH_PORT", c.HealthPort)
	c.Environment = GetEnv("ENVIRONMENT", c.Environment)
	c.LogLevel = GetEnv("LOG_LEVEL", c.LogLevel)
	c.LogPretty = GetBoolEnv("LOG_PRETTY", c.LogPretty)

	// MongoDB
	c.MongoDB.URI = GetEnv("MONGO_URI", c.MongoDB.URI)
	c.MongoDB.Database = GetEnv("MONGO_DB_NAME", c.MongoDB.Database)
	c.MongoDB.ConnectTimeout = GetDurationEnv("MONGO_CONNECT_TIMEOUT", c.MongoDB.ConnectTimeout)
	c.MongoDB.MaxPoolSize = uint64(GetIntEnv("MONGO_MAX_POOL_SIZE", int(c.MongoDB.MaxPoolSize)))
	c.MongoDB.MinPoolSize = uint64(GetIntEnv("MONGO_MIN_POOL_SIZE", int(c.MongoDB.MinPoolSize)))
	c.MongoDB.MaxIdleTime = GetDurationEnv("MONGO_MAX_IDLE_TIME", c.MongoDB.MaxIdleTime)

	// Storage
	c.Storage.Driver = GetEnv("STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.Blob.Driver = GetEnv("BLOB_DRIVER", c.Storage.Blob.Driver)
	c.Storage.Blob.Region = GetEnv("S3_REGION", c.Storage.Blob.Region)
	c.Storage.Blob.Bucket = GetEnv("S3_BUCKET", c.Storage.Blob.Bucket)
	c.Storage.Blob.Endpoint = GetEnv("S3_ENDPOINT", c.Storage.Blob.Endpoint)
	c.Storage.Blob.AccessKey = GetEnv("S3_ACCESS_KEY", c.Storage.Blob.AccessKey)
	c.Storage.Blob.SecretKey = GetEnv("S3_SECRET_KEY", c.Storage.Blob.SecretKey)

	// Security
	c.Security.JWTSecret = GetEnv("JWT_SECRET", c.Security.JWTSecret)
	c.Security.JWTExpirationHours = GetIntEnv("JWT_EXPIRATION_HOURS", c.Security.JWTExpirationHours)
	c.Security.ResetTokenTTL = GetDurationEnv("RESET_TOKEN_TTL", c.Security.ResetTokenTTL)
	c.Security.OTPTTL = GetDurationEnv("OTP_TTL", c.Security.OTPTTL)
	c.Security.BCryptCost = GetIntEnv("BCRYPT_COST", c.Security.BCryptCost)
	c.Security.ImportPasswordTag = GetEnv("IMPORT_PASSWORD_PREFIX", c.Security.ImportPasswordTag)

	// SMTP
	c.SMTP.Host = GetEnv("SMTP_HOST", c.SMTP.Host)
	c.SMTP.Port = GetIntEnv("SMTP_PORT", c.SMTP.Port)
	c.SMTP.Username = GetEnv("SMTP_USERNAME", c.SMTP.Username)
	c.SMTP.Password = GetEnv("SMTP_PASSWORD", c.SMTP.Password)
	c.SMTP.From = GetEnv("SMTP_FROM", c.SMTP.From)

	// CORS
	c.CORS.AllowedOrigins = GetStringSliceEnv("CORS_ALLOWED_ORIGINS", c.CORS.AllowedOrigins)
	c.CORS.AllowedMethods = GetStringSliceEnv("CORS_ALLOWED_METHODS", c.CORS.AllowedMethods)
	c.CORS.AllowedHeaders = GetStringSliceEnv("CORS_ALLOWED_HEADERS", c.CORS.AllowedHeaders)
	c.CORS.AllowCredentials = GetBoolEnv("CORS_ALLOW_CREDENTIALS", c.CORS.AllowCredentials)
	c.CORS.MaxAge = GetIntEnv("CORS_MAX_AGE", c.CORS.MaxAge)

	// Uploads & reports
	c.Uploads.MaxAttachmentBytes = int64(GetIntEnv("MAX_ATTACHMENT_BYTES", int(c.Uploads.MaxAttachmentBytes)))
	c.Uploads.MaxImportBytes = int64(GetIntEnv("MAX_IMPORT_BYTES", int(c.Uploads.MaxImportBytes)))
	c.Uploads.MaxPhotoBytes = int64(GetIntEnv("MAX_PHOTO_BYTES", int(c.Uploads.MaxPhotoBytes)))
	c.Report.Concurrency = GetIntEnv("REPORT_CONCURRENCY", c.Report.Concurrency)
}

// ============================================================================
// Environment Variable Helper Functions
// ============================================================================

// GetEnv retrieves an environment variable or returns a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetIntEnv retrieves an integer environment variable or returns a default value
func GetIntEnv(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetBoolEnv retrieves a boolean environment variable or returns a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetDurationEnv retrieves a duration environment variable or returns a default value
// Supports format like "30s", "5m", "1h"
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetFloatEnv retrieves a float environment variable or returns a default value
func GetFloatEnv(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetStringSliceEnv retrieves a comma-separated string list or returns a default value
func GetStringSliceEnv(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var result []string
	for _, part := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// ============================================================================
// Configuration Validation
// ============================================================================

// Validate checks the settings every process needs before it can start
func (c *AppConfig) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP port is required")
	}

	switch c.Storage.Driver {
	case "mongo":
		if c.MongoDB.URI == "" {
			return fmt.Errorf("MONGO_URI environment variable is required")
		}
		if c.MongoDB.Database == "" {
			return fmt.Errorf("MongoDB database name is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Storage.Blob.Driver {
	case "inline":
	case "s3":
		if c.Storage.Blob.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when BLOB_DRIVER is s3")
		}
	default:
		return fmt.Errorf("unknown blob driver %q", c.Storage.Blob.Driver)
	}

	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.Security.BCryptCost < 4 || c.Security.BCryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}
	if c.Report.Concurrency < 1 {
		return fmt.Errorf("REPORT_CONCURRENCY must be at least 1")
	}

	return nil
}

// IsDevelopment checks if running in development environment
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// TokenTTL returns the lifetime of access tokens
func (c SecurityConfig) TokenTTL() time.Duration {
	return time.Duration(c.JWTExpirationHours) * time.Hour
}
