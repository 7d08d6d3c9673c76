package database

import (
	"time"
)

type User struct {
	ID             int       `db:"id"`
	Username       string    `db:"username"`
	HashedPassword string    `db:"hashed_password"`
	Balance        int       `db:"balance"`
	MessageCount   int       `db:"message_count"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Pot is the single shared pool funded by message costs. Exactly one row
// should ever exist; the repository creates it lazily on first access.
type Pot struct {
	ID        int       `db:"id"`
	Amount    int       `db:"amount"`
	UpdatedAt time.Time `db:"updated_at"`
}
