package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Connect opens the database for driver and applies the schema migrations.
func Connect(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if driver == DriverSQLite {
		// one connection keeps in-memory databases shared and serializes writers
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// Migrate creates the chat schema for the connection's dialect. It is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	migrations := postgresMigrations
	if db.DriverName() == DriverSQLite {
		migrations = sqliteMigrations
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
            id BIGSERIAL PRIMARY KEY,
            kind TEXT NOT NULL CHECK (kind IN ('direct', 'group')),
            name TEXT,
            description TEXT,
            created_by BIGINT NOT NULL,
            avatar_url TEXT,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            direct_key TEXT UNIQUE,
            settings JSONB NOT NULL DEFAULT '{}',
            last_message_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS conversation_members (
            id BIGSERIAL PRIMARY KEY,
            conversation_id BIGINT NOT NULL REFERENCES conversations(id),
            user_id BIGINT NOT NULL,
            role TEXT NOT NULL CHECK (role IN ('admin', 'moderator', 'member')),
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_read_at TIMESTAMPTZ,
            is_muted BOOLEAN NOT NULL DEFAULT FALSE,
            muted_until TIMESTAMPTZ,
            unread_count INT NOT NULL DEFAULT 0 CHECK (unread_count >= 0),
            UNIQUE (conversation_id, user_id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_conversation_members_user ON conversation_members (user_id, is_active);`,
	`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            conversation_id BIGINT NOT NULL REFERENCES conversations(id),
            sender_id BIGINT NOT NULL,
            content TEXT,
            message_type TEXT NOT NULL,
            media_url TEXT,
            reply_to_id BIGINT REFERENCES messages(id),
            is_edited BOOLEAN NOT NULL DEFAULT FALSE,
            edited_at TIMESTAMPTZ,
            is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
            deleted_at TIMESTAMPTZ,
            metadata JSONB NOT NULL DEFAULT '{}',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages (conversation_id, created_at, id);`,
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            kind TEXT NOT NULL CHECK (kind IN ('direct', 'group')),
            name TEXT,
            description TEXT,
            created_by INTEGER NOT NULL,
            avatar_url TEXT,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            direct_key TEXT UNIQUE,
            settings TEXT NOT NULL DEFAULT '{}',
            last_message_at TIMESTAMP,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS conversation_members (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            conversation_id INTEGER NOT NULL REFERENCES conversations(id),
            user_id INTEGER NOT NULL,
            role TEXT NOT NULL CHECK (role IN ('admin', 'moderator', 'member')),
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            joined_at TIMESTAMP NOT NULL,
            last_read_at TIMESTAMP,
            is_muted BOOLEAN NOT NULL DEFAULT FALSE,
            muted_until TIMESTAMP,
            unread_count INTEGER NOT NULL DEFAULT 0 CHECK (unread_count >= 0),
            UNIQUE (conversation_id, user_id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_conversation_members_user ON conversation_members (user_id, is_active);`,
	`CREATE TABLE IF NOT EXISTS messages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            conversation_id INTEGER NOT NULL REFERENCES conversations(id),
            sender_id INTEGER NOT NULL,
            content TEXT,
            message_type TEXT NOT NULL,
            media_url TEXT,
            reply_to_id INTEGER REFERENCES messages(id),
            is_edited BOOLEAN NOT NULL DEFAULT FALSE,
            edited_at TIMESTAMP,
            is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
            deleted_at TIMESTAMP,
            metadata TEXT NOT NULL DEFAULT '{}',
            created_at TIMESTAMP NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages (conversation_id, created_at, id);`,
}
