// Package database opens and manages the backing SQL store. Either a local
// SQLite file or a remote Turso database serves as the store, selected by
// configuration; the rest of the system only sees database/sql.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"

	"github.com/PerkCity/perkcity-go/internal/infrastructure/observability/logging"
	"github.com/PerkCity/perkcity-go/pkg/config"
)

// DB wraps the standard SQL connection pool.
type DB struct {
	*sql.DB
	UseTurso bool
}

// Open connects to Turso when credentials are configured, otherwise to the
// local SQLite file, creating its directory on first run. Pool limits come
// from configuration.
func Open(logger *logging.ChanneledLogger) (*DB, error) {
	start := time.Now()

	var conn *sql.DB
	var err error
	useTurso := config.TursoDBURL != "" && config.TursoDBToken != ""

	if useTurso {
		connStr := config.TursoDBURL + "?authToken=" + config.TursoDBToken
		conn, err = sql.Open("libsql", connStr)
		if err != nil {
			return nil, fmt.Errorf("failed to open turso connection: %w", err)
		}
	} else {
		dbDir := filepath.Dir(config.SQLitePath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		conn, err = sql.Open("sqlite3", config.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	conn.SetMaxOpenConns(config.DBMaxOpenConns)
	conn.SetMaxIdleConns(config.DBMaxIdleConns)
	conn.SetConnMaxLifetime(time.Duration(config.DBConnMaxLifetimeMinutes) * time.Minute)
	conn.SetConnMaxIdleTime(time.Duration(config.DBConnMaxIdleMinutes) * time.Minute)

	driver := "sqlite3"
	if useTurso {
		driver = "libsql"
	}
	logger.Database().Info("Database connection established",
		"driver", driver,
		"duration", time.Since(start))

	return &DB{DB: conn, UseTurso: useTurso}, nil
}
