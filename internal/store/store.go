package store

import (
	"context"
	"errors"

	"basreng/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrDuplicateCode      = errors.New("duplicate transaction code")
	ErrPersistence        = errors.New("persistence failure")
)

type Repository interface {
	// CreateTransaction writes the header and every detail as one unit.
	// Either all rows become visible or none do.
	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	FindTransactionByCode(ctx context.Context, code string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.TransactionSummary, error)
	DeleteTransaction(ctx context.Context, code string) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
