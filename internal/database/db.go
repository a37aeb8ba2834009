package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type DB struct {
	conn   *sql.DB
	gorm   *gorm.DB
	dbType string
}

type Config struct {
	Type       string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SQLitePath string
	// URL, when set, is used verbatim as the postgres connection string.
	URL string
}

func (c Config) dsn() string {
	if c.Type == "sqlite" {
		return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", c.SQLitePath)
	}
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func NewDB(config Config) (*DB, error) {
	var conn *sql.DB
	var dialector gorm.Dialector
	var err error

	switch config.Type {
	case "sqlite":
		conn, err = sql.Open("sqlite3", config.dsn())
		if err == nil {
			// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY.
			conn.SetMaxOpenConns(1)
			dialector = sqlite.Dialector{Conn: conn}
		}
	case "postgres":
		conn, err = sql.Open("pgx", config.dsn())
		if err == nil {
			dialector = postgres.New(postgres.Config{Conn: conn})
		}
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}

	db := &DB{conn: conn, gorm: gdb, dbType: config.Type}

	// Postgres schema is owned by the migrator.
	if config.Type == "sqlite" {
		if err := db.createTables(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return db, nil
}

func (db *DB) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS annotation_sessions (
		frame_set_id TEXT PRIMARY KEY,
		video_id TEXT NOT NULL,
		orig_width INTEGER,
		orig_height INTEGER,
		render_width INTEGER,
		render_height INTEGER,
		total_frames INTEGER NOT NULL DEFAULT 0,
		annotated_frames INTEGER NOT NULL DEFAULT 0,
		last_frame_annotated INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'in_progress',
		user_token TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS frame_annotations (
		frame_set_id TEXT NOT NULL REFERENCES annotation_sessions(frame_set_id) ON DELETE CASCADE,
		frame_num INTEGER NOT NULL,
		annotations TEXT NOT NULL,
		is_completed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (frame_set_id, frame_num)
	);

	CREATE TABLE IF NOT EXISTS user_tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE INDEX IF NOT EXISTS idx_session_updated ON annotation_sessions(updated_at DESC);
	CREATE INDEX IF NOT EXISTS idx_user_token ON annotation_sessions(user_token);
	`

	_, err := db.conn.Exec(query)
	return err
}

// greatest renders the dialect's two-argument maximum of a and b.
func (db *DB) greatest(a, b string) string {
	if db.dbType == "postgres" {
		return fmt.Sprintf("GREATEST(%s, %s)", a, b)
	}
	return fmt.Sprintf("MAX(%s, %s)", a, b)
}

// withTx runs fn in a transaction, committing when fn returns nil and
// rolling back otherwise.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) RunMigrations(migrationsPath string, logger *zap.Logger) error {
	return NewMigrator(db.conn, db.dbType, logger).Run(migrationsPath)
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) GORM() *gorm.DB {
	return db.gorm
}

func (db *DB) Type() string {
	return db.dbType
}
