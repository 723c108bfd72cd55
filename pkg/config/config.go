package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Blob storage modes.
const (
	BlobModeLocal = "local"
	BlobModeS3    = "s3"
	BlobModeAuto  = "auto"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	Mongo     MongoConfig
	Blob      BlobConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Reports   ReportsConfig
}

type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	ConnectTimeout time.Duration
}

type RedisConfig struct {
	Host           string
	Port           int
	Password       string
	DB             int
	ConnectTimeout time.Duration
}

// MongoConfig points at the search index holding survey form responses.
type MongoConfig struct {
	URI              string
	Database         string
	SurveyCollection string
	Timeout          time.Duration
	MaxPoolSize      uint64
}

// BlobConfig selects and configures the artifact object store.
type BlobConfig struct {
	Mode      string
	LocalDir  string
	LocalURL  string
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// S3Ready reports whether every field needed for the S3 store is present.
func (b BlobConfig) S3Ready() bool {
	return len(b.MissingS3Fields()) == 0
}

// MissingS3Fields lists the env keys that still need a value for S3 mode.
func (b BlobConfig) MissingS3Fields() []string {
	missing := make([]string, 0, 4)
	if strings.TrimSpace(b.Endpoint) == "" {
		missing = append(missing, "BLOB_S3_ENDPOINT")
	}
	if strings.TrimSpace(b.Bucket) == "" {
		missing = append(missing, "BLOB_S3_BUCKET")
	}
	if strings.TrimSpace(b.AccessKey) == "" {
		missing = append(missing, "BLOB_S3_ACCESS_KEY")
	}
	if strings.TrimSpace(b.SecretKey) == "" {
		missing = append(missing, "BLOB_S3_SECRET_KEY")
	}
	return missing
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RateLimitConfig throttles the report endpoints per client IP.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// CacheConfig controls the Redis read-through cache for caller org lookups.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// HeaderField is one ordered fieldKey → display name pair.
type HeaderField struct {
	Key         string
	DisplayName string
}

// ReportsConfig configures the enrollment report pipeline.
type ReportsConfig struct {
	Stream            string
	ConsumerGroup     string
	ConsumerName      string
	ReadBlock         time.Duration
	Workers           int
	BufferSize        int
	MaxRetries        int
	ScratchDir        string
	Container         string
	PageSize          int
	ArtifactFormat    string
	DefaultHeaders    []HeaderField
	ExcludedSurveyKey []string
	EmbedWorker       bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:           v.GetString("DB_HOST"),
		Port:           v.GetInt("DB_PORT"),
		User:           v.GetString("DB_USER"),
		Password:       v.GetString("DB_PASSWORD"),
		Name:           v.GetString("DB_NAME"),
		SSLMode:        v.GetString("DB_SSL_MODE"),
		MaxOpenConns:   v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:   v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnectTimeout: parseDuration(v.GetString("DB_CONNECT_TIMEOUT"), 5*time.Second),
	}

	cfg.Redis = RedisConfig{
		Host:           v.GetString("REDIS_HOST"),
		Port:           v.GetInt("REDIS_PORT"),
		Password:       v.GetString("REDIS_PASSWORD"),
		DB:             v.GetInt("REDIS_DB"),
		ConnectTimeout: parseDuration(v.GetString("REDIS_CONNECT_TIMEOUT"), 5*time.Second),
	}

	cfg.Mongo = MongoConfig{
		URI:              v.GetString("MONGO_URI"),
		Database:         v.GetString("MONGO_DATABASE"),
		SurveyCollection: v.GetString("MONGO_SURVEY_COLLECTION"),
		Timeout:          parseDuration(v.GetString("MONGO_TIMEOUT"), 10*time.Second),
		MaxPoolSize:      v.GetUint64("MONGO_MAX_POOL_SIZE"),
	}

	cfg.Blob = BlobConfig{
		Mode:      strings.ToLower(strings.TrimSpace(v.GetString("BLOB_MODE"))),
		LocalDir:  v.GetString("BLOB_LOCAL_DIR"),
		LocalURL:  v.GetString("BLOB_LOCAL_BASE_URL"),
		Endpoint:  v.GetString("BLOB_S3_ENDPOINT"),
		Region:    v.GetString("BLOB_S3_REGION"),
		Bucket:    v.GetString("BLOB_S3_BUCKET"),
		AccessKey: v.GetString("BLOB_S3_ACCESS_KEY"),
		SecretKey: v.GetString("BLOB_S3_SECRET_KEY"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled: v.GetBool("RATE_LIMIT_ENABLED"),
		RPS:     v.GetFloat64("RATE_LIMIT_RPS"),
		Burst:   v.GetInt("RATE_LIMIT_BURST"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("CACHE_ENABLED"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 10*time.Minute),
	}

	cfg.Reports = ReportsConfig{
		Stream:            v.GetString("REPORTS_STREAM"),
		ConsumerGroup:     v.GetString("REPORTS_CONSUMER_GROUP"),
		ConsumerName:      v.GetString("REPORTS_CONSUMER_NAME"),
		ReadBlock:         parseDuration(v.GetString("REPORTS_READ_BLOCK"), 5*time.Second),
		Workers:           v.GetInt("REPORTS_WORKERS"),
		BufferSize:        v.GetInt("REPORTS_BUFFER_SIZE"),
		MaxRetries:        v.GetInt("REPORTS_MAX_RETRIES"),
		ScratchDir:        v.GetString("REPORTS_SCRATCH_DIR"),
		Container:         v.GetString("REPORTS_CONTAINER"),
		PageSize:          v.GetInt("REPORTS_PAGE_SIZE"),
		ArtifactFormat:    strings.ToLower(v.GetString("REPORTS_ARTIFACT_FORMAT")),
		DefaultHeaders:    ParseHeaderFields(v.GetString("REPORTS_DEFAULT_HEADERS")),
		ExcludedSurveyKey: splitAndTrim(v.GetString("REPORTS_EXCLUDED_SURVEY_KEYS")),
		EmbedWorker:       v.GetBool("REPORTS_EMBED_WORKER"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/bp/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sunbird")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONNECT_TIMEOUT", "5s")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_CONNECT_TIMEOUT", "5s")

	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "sunbird")
	v.SetDefault("MONGO_SURVEY_COLLECTION", "form_responses")
	v.SetDefault("MONGO_TIMEOUT", "10s")
	v.SetDefault("MONGO_MAX_POOL_SIZE", 20)

	v.SetDefault("BLOB_MODE", BlobModeAuto)
	v.SetDefault("BLOB_LOCAL_DIR", "./blobs")
	v.SetDefault("BLOB_S3_REGION", "us-east-1")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)

	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_TTL", "10m")

	v.SetDefault("REPORTS_STREAM", "bp-enrolment-report")
	v.SetDefault("REPORTS_CONSUMER_GROUP", "bp-report-workers")
	v.SetDefault("REPORTS_CONSUMER_NAME", "worker-1")
	v.SetDefault("REPORTS_READ_BLOCK", "5s")
	v.SetDefault("REPORTS_WORKERS", 2)
	v.SetDefault("REPORTS_BUFFER_SIZE", 8)
	v.SetDefault("REPORTS_MAX_RETRIES", 2)
	v.SetDefault("REPORTS_SCRATCH_DIR", "")
	v.SetDefault("REPORTS_CONTAINER", "bpreports")
	v.SetDefault("REPORTS_PAGE_SIZE", 100)
	v.SetDefault("REPORTS_ARTIFACT_FORMAT", "xlsx")
	v.SetDefault("REPORTS_DEFAULT_HEADERS", "firstName:First Name,primaryEmail:Email,mobile:Mobile Number,gender:Gender,dob:Date of Birth,domicileMedium:Mother Tongue,category:Category,group:Group,designation:Designation,dateOfRetirement:Date of Retirement,departmentName:Department,employeeCode:Employee ID,pinCode:Office Pin Code,externalSystemId:External System ID,cadreDetails:Cadre Details,civilServiceType:Type of Civil Service,civilServiceName:Service,cadreName:Cadre,cadreBatch:Cadre Batch,cadreControllingAuthorityName:Cadre Controlling Authority")
	v.SetDefault("REPORTS_EXCLUDED_SURVEY_KEYS", "Name")
	v.SetDefault("REPORTS_EMBED_WORKER", true)
}

// ParseHeaderFields turns "key:Display,key2:Display 2" into ordered pairs.
// Entries without a display name use the key itself.
func ParseHeaderFields(raw string) []HeaderField {
	parts := splitAndTrim(raw)
	fields := make([]HeaderField, 0, len(parts))
	for _, part := range parts {
		key, display, found := strings.Cut(part, ":")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		display = strings.TrimSpace(display)
		if !found || display == "" {
			display = key
		}
		fields = append(fields, HeaderField{Key: key, DisplayName: display})
	}
	return fields
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
