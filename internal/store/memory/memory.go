package memory

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"basreng/backend/internal/domain"
	"basreng/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	products        map[int64]domain.Product
	usersByUsername map[string]domain.UserAccount
	transactions    map[string]*domain.Transaction
	nextTxID        int64
	nextDetailID    int64

	// failDetailAt makes CreateTransaction fail while staging the Nth detail
	// (1-based). Zero disables it. Only set by this package's tests.
	failDetailAt int
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD, falling back to dev defaults.
func seedUsers(logger *zap.Logger) (map[string]domain.UserAccount, error) {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logger.Warn("memory store using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		id       int64
		username string
		password string
		role     string
	}{
		{1, "admin", adminPwd, domain.RoleAdmin},
		{2, "kasir", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %s: %w", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			ID:        u.id,
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded(logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	users, err := seedUsers(logger)
	if err != nil {
		return nil, err
	}

	products := []domain.Product{
		{ID: 1, Name: "Basreng Original", Price: 15000, WeightGrams: 500},
		{ID: 2, Name: "Basreng Pedas Daun Jeruk", Price: 16000, WeightGrams: 500},
		{ID: 3, Name: "Basreng Balado", Price: 16000, WeightGrams: 500},
		{ID: 4, Name: "Basreng Stik Keju", Price: 17000, WeightGrams: 500},
	}
	productMap := make(map[int64]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}

	return &Store{
		products:        productMap,
		usersByUsername: users,
		transactions:    make(map[string]*domain.Transaction),
	}, nil
}

// CreateTransaction stages the header and all details before touching any
// shared state, then publishes them together under the write lock.
func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.Code == "" || len(tx.Details) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.transactions[tx.Code]; exists {
		return nil, store.ErrDuplicateCode
	}
	cashier, ok := s.userByID(tx.UserID)
	if !ok {
		return nil, fmt.Errorf("%w: user %d does not exist", store.ErrInvalidTransaction, tx.UserID)
	}

	txID := s.nextTxID + 1
	detailID := s.nextDetailID
	staged := make([]domain.TransactionDetail, 0, len(tx.Details))
	for i, detail := range tx.Details {
		if s.failDetailAt == i+1 {
			return nil, fmt.Errorf("%w: detail %d not written", store.ErrPersistence, i+1)
		}
		product, exists := s.products[detail.ProductID]
		if !exists {
			return nil, fmt.Errorf("%w: product %d does not exist", store.ErrInvalidTransaction, detail.ProductID)
		}
		detailID++
		detail.ID = detailID
		detail.TransactionID = txID
		detail.ProductName = product.Name
		staged = append(staged, detail)
	}

	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.ID = txID
	tx.CashierUsername = cashier.Username
	tx.Details = staged

	s.nextTxID = txID
	s.nextDetailID = detailID
	s.transactions[tx.Code] = cloneTransaction(&tx)

	return cloneTransaction(&tx), nil
}

func (s *Store) FindTransactionByCode(_ context.Context, code string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) ListTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.TransactionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	username := strings.ToLower(strings.TrimSpace(filter.Username))
	items := make([]*domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		if username != "" && tx.CashierUsername != username {
			continue
		}
		if filter.From != nil && tx.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !tx.CreatedAt.Before(*filter.To) {
			continue
		}
		items = append(items, tx)
	}
	slices.SortFunc(items, func(a, b *domain.Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	out := make([]domain.TransactionSummary, 0, len(items))
	for _, tx := range items {
		out = append(out, domain.TransactionSummary{
			TransactionCode: tx.Code,
			Cashier:         tx.CashierUsername,
			TotalPrice:      tx.TotalPrice,
			CreatedAt:       tx.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) DeleteTransaction(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[code]; !ok {
		return store.ErrNotFound
	}
	delete(s.transactions, code)
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmp.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) userByID(id int64) (domain.UserAccount, bool) {
	for _, user := range s.usersByUsername {
		if user.ID == id {
			return user, true
		}
	}
	return domain.UserAccount{}, false
}

func cloneTransaction(src *domain.Transaction) *domain.Transaction {
	if src == nil {
		return nil
	}
	dup := *src
	dup.CashAmount = cloneInt64(src.CashAmount)
	dup.ChangeAmount = cloneInt64(src.ChangeAmount)
	dup.Details = make([]domain.TransactionDetail, len(src.Details))
	for i, detail := range src.Details {
		if detail.WeightGrams != nil {
			w := *detail.WeightGrams
			detail.WeightGrams = &w
		}
		dup.Details[i] = detail
	}
	return &dup
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
