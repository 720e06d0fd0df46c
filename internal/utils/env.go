package utils

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv overlays variables from a .env file when one is present. A
// missing file is fine: deployed environments inject their
// configuration directly.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// GetEnv returns the named variable, or fallback when it is unset.
func GetEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// GetEnvInt parses the named variable as an integer, falling back when
// it is unset or not a number.
func GetEnvInt(key string, fallback int) int {
	if value, err := strconv.Atoi(GetEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

// GetEnvSeconds reads an integer variable as a duration in seconds.
func GetEnvSeconds(key string, fallback time.Duration) time.Duration {
	if value, err := strconv.Atoi(GetEnv(key, "")); err == nil {
		return time.Duration(value) * time.Second
	}
	return fallback
}
