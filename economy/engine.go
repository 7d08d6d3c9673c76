package economy

import (
	"database/sql"
	"errors"
	"time"

	"chatpot/database"
	"chatpot/utils"
)

const (
	// PricePerMessage scales linearly with the sender's lifetime message
	// count: the Nth message ever sent costs 5*N.
	PricePerMessage = 5

	// WinProbability is the chance per send that the sender takes the
	// whole pot.
	WinProbability = 0.1
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidContribution = errors.New("contribution must be greater than zero")
)

// SendResult reports the outcome of a single message send. On a win,
// PotAmount is the full amount awarded (including this message's own
// contribution); otherwise it is the pot total after the contribution.
type SendResult struct {
	Won        bool
	Cost       int
	NewBalance int
	PotAmount  int
}

// Engine owns all balance/pot arithmetic. Every multi-step mutation runs
// inside a single transaction so concurrent sends can't interleave their
// read-modify-write steps.
type Engine struct {
	repo *database.Repository

	// Draw returns a uniform value in [0, 1). Tests swap it out to force
	// or forbid a win.
	Draw func() float64
}

func NewEngine(repo *database.Repository) *Engine {
	rng := utils.NewSeededRNG(time.Now().UnixNano())
	return &Engine{
		repo: repo,
		Draw: rng.Float64,
	}
}

// MessageCost returns the price of a user's nth message.
func MessageCost(n int) int {
	return PricePerMessage * n
}

// SendMessage charges the user for one message, feeds the cost into the
// pot, and runs the win draw. The message count bumps before the balance
// check and deliberately sticks even when the debit is refused; flip the
// early Commit to a Rollback if that policy ever changes.
func (e *Engine) SendMessage(userID int) (*SendResult, error) {
	tx, err := e.repo.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	user, err := e.repo.GetUserTx(tx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	newCount := user.MessageCount + 1
	if err := e.repo.SetMessageCountTx(tx, userID, newCount); err != nil {
		return nil, err
	}

	cost := MessageCost(newCount)
	if user.Balance < cost {
		// The attempt still counts against the user; only the debit
		// and pot credit are refused.
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return nil, ErrInsufficientBalance
	}

	newBalance := user.Balance - cost
	if err := e.repo.UpdateUserBalanceTx(tx, userID, newBalance); err != nil {
		return nil, err
	}

	pot, err := e.repo.GetPotTx(tx)
	if err != nil {
		return nil, err
	}

	newPot := pot.Amount + cost
	if err := e.repo.SetPotAmountTx(tx, pot.ID, newPot); err != nil {
		return nil, err
	}

	result := &SendResult{
		Cost:       cost,
		NewBalance: newBalance,
		PotAmount:  newPot,
	}

	if e.Draw() < WinProbability {
		// Winner takes the whole pot, contribution included, and the
		// pot zeroes in the same transaction.
		result.Won = true
		result.NewBalance = newBalance + newPot
		if err := e.repo.UpdateUserBalanceTx(tx, userID, result.NewBalance); err != nil {
			return nil, err
		}
		if err := e.repo.SetPotAmountTx(tx, pot.ID, 0); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// DeductBalance debits cost from the user's balance outside the message
// flow and returns the new balance. A negative cost acts as a credit.
func (e *Engine) DeductBalance(userID, cost int) (int, error) {
	tx, err := e.repo.Beginx()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	user, err := e.repo.GetUserTx(tx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}

	if user.Balance < cost {
		return 0, ErrInsufficientBalance
	}

	newBalance := user.Balance - cost
	if err := e.repo.UpdateUserBalanceTx(tx, userID, newBalance); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// ContributeToPot adds a manual contribution and returns the new total.
func (e *Engine) ContributeToPot(amount int) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidContribution
	}

	tx, err := e.repo.Beginx()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	pot, err := e.repo.GetPotTx(tx)
	if err != nil {
		return 0, err
	}

	newTotal := pot.Amount + amount
	if err := e.repo.SetPotAmountTx(tx, pot.ID, newTotal); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return newTotal, nil
}

// ResetPot zeroes the pot regardless of its prior value.
func (e *Engine) ResetPot() (int, error) {
	tx, err := e.repo.Beginx()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	pot, err := e.repo.GetPotTx(tx)
	if err != nil {
		return 0, err
	}

	if err := e.repo.SetPotAmountTx(tx, pot.ID, 0); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return 0, nil
}
