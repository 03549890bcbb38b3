package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"basreng/backend/internal/domain"
	"basreng/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if tx.Code == "" || len(tx.Details) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %w", store.ErrPersistence, err)
	}
	defer func() { _ = pgTx.Rollback() }()

	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO transactions (
			transaction_code, user_id, total_price, payment_method, is_online_order,
			cash_amount, change_amount, customer_name, customer_address, customer_phone,
			notes, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id
	`, tx.Code, tx.UserID, tx.TotalPrice, tx.PaymentMethod, tx.IsOnlineOrder,
		nullInt64(tx.CashAmount), nullInt64(tx.ChangeAmount), nullIfEmpty(tx.CustomerName),
		nullIfEmpty(tx.CustomerAddress), nullIfEmpty(tx.CustomerPhone), nullIfEmpty(tx.Notes),
		tx.CreatedAt).Scan(&tx.ID)
	if err != nil {
		return nil, classifyWriteError("insert transaction", err)
	}
	if tx.ID == 0 {
		return nil, fmt.Errorf("%w: transaction insert returned no id", store.ErrPersistence)
	}

	for i := range tx.Details {
		detail := &tx.Details[i]
		detail.TransactionID = tx.ID
		err := pgTx.QueryRowContext(ctx, `
			INSERT INTO transaction_details (transaction_id, product_id, quantity, price, subtotal, weight_grams)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING id
		`, tx.ID, detail.ProductID, detail.Quantity, detail.Price, detail.Subtotal, nullInt(detail.WeightGrams)).Scan(&detail.ID)
		if err != nil {
			return nil, classifyWriteError(fmt.Sprintf("insert detail %d", i+1), err)
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", store.ErrPersistence, err)
	}

	tx.CreatedAt = tx.CreatedAt.UTC()
	return &tx, nil
}

// FindTransactionByCode reads the header and its details inside one read-only
// snapshot so a concurrent delete can never yield a header without lines.
func (s *Store) FindTransactionByCode(ctx context.Context, code string) (*domain.Transaction, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var tx domain.Transaction
	var cashAmount, changeAmount sql.NullInt64
	var customerName, customerAddress, customerPhone, notes sql.NullString
	err = pgTx.QueryRowContext(ctx, `
		SELECT t.id, t.transaction_code, t.user_id, COALESCE(u.username, ''), t.total_price,
			t.payment_method, t.is_online_order, t.cash_amount, t.change_amount,
			t.customer_name, t.customer_address, t.customer_phone, t.notes, t.created_at
		FROM transactions t
		LEFT JOIN users u ON u.id = t.user_id
		WHERE t.transaction_code = $1
	`, code).Scan(
		&tx.ID,
		&tx.Code,
		&tx.UserID,
		&tx.CashierUsername,
		&tx.TotalPrice,
		&tx.PaymentMethod,
		&tx.IsOnlineOrder,
		&cashAmount,
		&changeAmount,
		&customerName,
		&customerAddress,
		&customerPhone,
		&notes,
		&tx.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if cashAmount.Valid {
		tx.CashAmount = &cashAmount.Int64
	}
	if changeAmount.Valid {
		tx.ChangeAmount = &changeAmount.Int64
	}
	tx.CustomerName = customerName.String
	tx.CustomerAddress = customerAddress.String
	tx.CustomerPhone = customerPhone.String
	tx.Notes = notes.String
	tx.CreatedAt = tx.CreatedAt.UTC()

	rows, err := pgTx.QueryContext(ctx, `
		SELECT d.id, d.transaction_id, d.product_id, COALESCE(p.name, ''), d.quantity,
			d.price, d.subtotal, d.weight_grams
		FROM transaction_details d
		LEFT JOIN products p ON p.id = d.product_id
		WHERE d.transaction_id = $1
		ORDER BY d.id ASC
	`, tx.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	details := make([]domain.TransactionDetail, 0, 8)
	for rows.Next() {
		var detail domain.TransactionDetail
		var weight sql.NullInt32
		if err := rows.Scan(&detail.ID, &detail.TransactionID, &detail.ProductID, &detail.ProductName,
			&detail.Quantity, &detail.Price, &detail.Subtotal, &weight); err != nil {
			return nil, err
		}
		if weight.Valid {
			w := int(weight.Int32)
			detail.WeightGrams = &w
		}
		details = append(details, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	tx.Details = details

	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.TransactionSummary, error) {
	username := strings.ToLower(strings.TrimSpace(filter.Username))
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.transaction_code, COALESCE(u.username, ''), t.total_price, t.created_at
		FROM transactions t
		LEFT JOIN users u ON u.id = t.user_id
		WHERE ($1 = '' OR u.username = $1)
			AND ($2::timestamptz IS NULL OR t.created_at >= $2)
			AND ($3::timestamptz IS NULL OR t.created_at < $3)
		ORDER BY t.created_at DESC, t.id DESC
	`, username, nullTime(filter.From), nullTime(filter.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.TransactionSummary, 0, 64)
	for rows.Next() {
		var item domain.TransactionSummary
		if err := rows.Scan(&item.TransactionCode, &item.Cashier, &item.TotalPrice, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteTransaction relies on ON DELETE CASCADE to drop the details in the
// same statement as the header.
func (s *Store) DeleteTransaction(ctx context.Context, code string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE transaction_code = $1`, code)
	if err != nil {
		return fmt.Errorf("%w: delete transaction: %w", store.ErrPersistence, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password, role, active, created_at
		FROM users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func classifyWriteError(op string, err error) error {
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %s", store.ErrDuplicateCode, op)
	case isForeignKeyViolation(err):
		return fmt.Errorf("%w: %s references a missing row", store.ErrInvalidTransaction, op)
	default:
		return fmt.Errorf("%w: %s: %w", store.ErrPersistence, op, err)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullInt(val *int) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
