package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/rootwire/account-service/internal/models"
)

type Config struct {
	HTTPAddr string
	LogLevel string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	JWTSecret     []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	BcryptCost    int
	OTPLength     int
	OTPTTL        time.Duration
	ResetTokenTTL time.Duration

	KafkaAddress string
	EventTopic   string

	ESURL      string
	ESUser     string
	ESPassword string
	AuditIndex string

	UploadDir      string
	MailQueueSize  int
	RequestTimeout time.Duration
}

func Load() *Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	cfg := &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		JWTSecret:     []byte(os.Getenv("JWT_SECRET")),
		AccessTTL:     getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTTL:    getDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		BcryptCost:    getInt("BCRYPT_COST", 10),
		OTPLength:     getInt("OTP_LENGTH", 6),
		OTPTTL:        getDuration("OTP_TTL", 5*time.Minute),
		ResetTokenTTL: getDuration("RESET_TOKEN_TTL", 5*time.Minute),

		KafkaAddress: os.Getenv("KAFKA_ADDRESS"),
		EventTopic:   getEnv("EVENT_TOPIC", "account_events"),

		ESURL:      os.Getenv("ES_URL"),
		ESUser:     os.Getenv("ES_USER"),
		ESPassword: os.Getenv("ES_PASSWORD"),
		AuditIndex: getEnv("AUDIT_INDEX", "auth_audit"),

		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		MailQueueSize:  getInt("MAIL_QUEUE_SIZE", 128),
		RequestTimeout: getDuration("REQUEST_TIMEOUT", 10*time.Second),
	}

	required := map[string]string{
		"JWT_SECRET": string(cfg.JWTSecret),
		"DB_HOST":    cfg.DBHost,
		"DB_USER":    cfg.DBUser,
		"DB_NAME":    cfg.DBName,
	}
	for name, value := range required {
		if value == "" {
			log.Fatalf("missing required env %s", name)
		}
	}

	return cfg
}

func InitDB(ctx context.Context, cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	db = db.WithContext(ctx)
	if err := db.AutoMigrate(&models.User{}, &models.Token{}); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	return db, nil
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func getDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid duration in env %s: %v", name, err)
	}
	return d
}

func getInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid integer in env %s: %v", name, err)
	}
	return n
}
