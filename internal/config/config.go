package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	AppEnv                 string
	DatabaseURL            string
	RunMigrations          bool
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	ReceiptCacheTTLSeconds int
	BranchCode             string
	Timezone               string
	CodeMaxAttempts        int
	AuthSecret             string
	AccessTokenTTLMinutes  int
}

// Load reads the process environment. A .env file in the working directory is
// applied first; variables already set in the environment win.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		AppEnv:                 strings.ToLower(getEnv("APP_ENV", "production")),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RunMigrations:          getBool("RUN_MIGRATIONS", false),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		ReceiptCacheTTLSeconds: getPositiveInt("RECEIPT_CACHE_TTL_SECONDS", 300),
		BranchCode:             strings.ToUpper(strings.TrimSpace(getEnv("BRANCH_CODE", "CAB01"))),
		Timezone:               getEnv("TIMEZONE", "Asia/Jakarta"),
		CodeMaxAttempts:        getPositiveInt("CODE_MAX_ATTEMPTS", 3),
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  getPositiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) Development() bool {
	return c.AppEnv == "development"
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getPositiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return b
}
