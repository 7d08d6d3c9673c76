package database

import (
	"github.com/jmoiron/sqlx"
)

var schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	hashed_password TEXT NOT NULL,
	balance INTEGER NOT NULL DEFAULT 100,
	message_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pot (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	amount INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// EnsureSchema creates the tables if they don't exist yet. Safe to call on
// every startup.
func EnsureSchema(db *sqlx.DB) error {
	_, err := db.Exec(schema)
	return err
}
