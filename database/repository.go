package database

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Beginx starts a transaction for multi-step mutations.
func (r *Repository) Beginx() (*sqlx.Tx, error) {
	return r.db.Beginx()
}

// User management methods

func (r *Repository) CreateUser(username, hashedPassword string) (*User, error) {
	result, err := r.db.Exec(`
		INSERT INTO users (username, hashed_password)
		VALUES (?, ?)`,
		username, hashedPassword)
	if err != nil {
		return nil, err
	}

	userID, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	var user User
	err = r.db.Get(&user, "SELECT * FROM users WHERE id = ?", userID)
	return &user, err
}

func (r *Repository) GetUser(userID int) (*User, error) {
	var user User
	err := r.db.Get(&user, "SELECT * FROM users WHERE id = ?", userID)
	return &user, err
}

func (r *Repository) GetUserByUsername(username string) (*User, error) {
	var user User
	err := r.db.Get(&user, "SELECT * FROM users WHERE username = ?", username)
	return &user, err
}

func (r *Repository) UpdateUserBalance(userID, balance int) error {
	_, err := r.db.Exec("UPDATE users SET balance = ?, updated_at = datetime('now') WHERE id = ?",
		balance, userID)
	return err
}

// Transaction-scoped variants used by the economy engine so a whole
// send/debit adjudication commits or rolls back as one unit.

func (r *Repository) GetUserTx(tx *sqlx.Tx, userID int) (*User, error) {
	var user User
	err := tx.Get(&user, "SELECT * FROM users WHERE id = ?", userID)
	return &user, err
}

func (r *Repository) SetMessageCountTx(tx *sqlx.Tx, userID, count int) error {
	_, err := tx.Exec("UPDATE users SET message_count = ?, updated_at = datetime('now') WHERE id = ?",
		count, userID)
	return err
}

func (r *Repository) UpdateUserBalanceTx(tx *sqlx.Tx, userID, balance int) error {
	_, err := tx.Exec("UPDATE users SET balance = ?, updated_at = datetime('now') WHERE id = ?",
		balance, userID)
	return err
}

// Pot management methods. The pot is a singleton row created on first
// access so a fresh database reads as an empty pot.

func (r *Repository) GetPot() (*Pot, error) {
	var pot Pot
	err := r.db.Get(&pot, "SELECT * FROM pot LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		_, err = r.db.Exec("INSERT INTO pot (amount) VALUES (0)")
		if err != nil {
			return nil, err
		}
		err = r.db.Get(&pot, "SELECT * FROM pot LIMIT 1")
	}
	return &pot, err
}

func (r *Repository) GetPotTx(tx *sqlx.Tx) (*Pot, error) {
	var pot Pot
	err := tx.Get(&pot, "SELECT * FROM pot LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		_, err = tx.Exec("INSERT INTO pot (amount) VALUES (0)")
		if err != nil {
			return nil, err
		}
		err = tx.Get(&pot, "SELECT * FROM pot LIMIT 1")
	}
	return &pot, err
}

func (r *Repository) SetPotAmountTx(tx *sqlx.Tx, potID, amount int) error {
	_, err := tx.Exec("UPDATE pot SET amount = ?, updated_at = datetime('now') WHERE id = ?",
		amount, potID)
	return err
}
