package database

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func InitDB(logger *zap.Logger) (*sql.DB, error) {
	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "postgres")
	password := getEnv("DB_PASSWORD", "postgres")
	dbname := getEnv("DB_NAME", "unlockdb")

	psqlInfo := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	createTableQuery := `
	CREATE TABLE IF NOT EXISTS confirmation_attempts (
		id SERIAL PRIMARY KEY,
		order_id VARCHAR(64) NOT NULL,
		trigger VARCHAR(32) NOT NULL,
		observed_status VARCHAR(32) NOT NULL DEFAULT '',
		checked_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS result_unlocks (
		order_id VARCHAR(64) PRIMARY KEY,
		product_ref VARCHAR(64) NOT NULL,
		payer_ref VARCHAR(64) NOT NULL,
		amount BIGINT NOT NULL,
		unlocked_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (product_ref, payer_ref)
	);
	`

	if _, err := db.Exec(createTableQuery); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info("Database connection established")
	return db, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
