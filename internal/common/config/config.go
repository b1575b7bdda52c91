// Package config loads process configuration from the environment, the
// same way every Mercuria-derived service does: godotenv for local
// development, typed sections read with small getEnv helpers, no
// reflection-based binding library.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
}

type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type ServiceConfig struct {
	Name string
	Port string
}

// WalletConfig carries every tunable named in the service's §6 knob table.
type WalletConfig struct {
	DefaultInitialBalance  int64
	DailyDepositLimit      int64
	DailyWithdrawalLimit   int64
	DailyBuyInLimit        int64
	MinTransferAmount      int64
	MaxTransferAmount      int64
	LockTimeout            time.Duration
	IdempotencyKeyTTL      time.Duration
	JournalCap             int
	OperatorKeyHash        string
}

type Config struct {
	Service  ServiceConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	JWT      JWTConfig
	Wallet   WalletConfig
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr != "" {
		if duration, err := time.ParseDuration(valueStr); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Load reads configuration for the named service ("walletd") from the
// environment, applying the defaults enumerated in §6 of the spec.
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name: serviceName,
			Port: getEnv("WALLET_PORT", "8081"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "pokerwallet"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			GroupID: getEnv("KAFKA_GROUP_ID", "wallet-service"),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "dev-secret-change-me"),
			AccessTokenTTL:  getEnvAsDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTokenTTL: getEnvAsDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		},
		Wallet: WalletConfig{
			DefaultInitialBalance:  getEnvAsInt64("WALLET_DEFAULT_INITIAL_BALANCE", 10000),
			DailyDepositLimit:      getEnvAsInt64("WALLET_DAILY_DEPOSIT_LIMIT", 50000),
			DailyWithdrawalLimit:   getEnvAsInt64("WALLET_DAILY_WITHDRAWAL_LIMIT", 25000),
			DailyBuyInLimit:        getEnvAsInt64("WALLET_DAILY_BUYIN_LIMIT", 100000),
			MinTransferAmount:      getEnvAsInt64("WALLET_MIN_TRANSFER_AMOUNT", 1),
			MaxTransferAmount:      getEnvAsInt64("WALLET_MAX_TRANSFER_AMOUNT", 100000),
			LockTimeout:            getEnvAsDuration("WALLET_LOCK_TIMEOUT", 30*time.Second),
			IdempotencyKeyTTL:      getEnvAsDuration("WALLET_IDEMPOTENCY_TTL", 24*time.Hour),
			JournalCap:             getEnvAsInt("WALLET_JOURNAL_CAP", 1000),
			OperatorKeyHash:        getEnv("WALLET_OPERATOR_KEY_HASH", ""),
		},
	}

	return cfg, nil
}
