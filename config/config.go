package config

import (
	"os"
	"strconv"
	"time"

	"github.com/SMDV/cakravia-v0-sub001/models"
)

// Products returns the sellable assessment catalog. One descriptor per
// assessment type; the purchase flow is parametrized by it instead of being
// copied per product.
func Products() map[string]models.Product {
	return map[string]models.Product{
		"learning-assessment": {
			Ref:       "learning-assessment",
			Name:      "Learning Style Assessment",
			BasePrice: 30000,
			Currency:  "IDR",
		},
		"behavior-assessment": {
			Ref:       "behavior-assessment",
			Name:      "Behavior Assessment",
			BasePrice: 50000,
			Currency:  "IDR",
		},
		"comprehension-assessment": {
			Ref:       "comprehension-assessment",
			Name:      "Comprehension Assessment",
			BasePrice: 35000,
			Currency:  "IDR",
		},
	}
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
