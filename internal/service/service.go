package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"basreng/backend/internal/cache"
	"basreng/backend/internal/domain"
	"basreng/backend/internal/pricing"
	"basreng/backend/internal/store"
)

var ErrForbidden = errors.New("admin role required")

const (
	receiptDateLayout = "02-01-2006"
	listDateLayout    = "2006-01-02"
	listTimeLayout    = "15:04"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// CodeGenerator mints candidate transaction codes. Uniqueness is checked by
// the repository, not by the generator.
type CodeGenerator interface {
	Next() string
}

type Options struct {
	Location        *time.Location
	ReceiptTTL      time.Duration
	MaxCodeAttempts int
	Now             func() time.Time
}

type Service struct {
	repo            store.Repository
	receipts        cache.ReceiptCache
	codes           CodeGenerator
	logger          *zap.Logger
	loc             *time.Location
	receiptTTL      time.Duration
	maxCodeAttempts int
	now             func() time.Time
}

func New(repo store.Repository, receipts cache.ReceiptCache, codes CodeGenerator, logger *zap.Logger, opts Options) *Service {
	if receipts == nil {
		receipts = cache.NoopReceiptCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.ReceiptTTL <= 0 {
		opts.ReceiptTTL = 5 * time.Minute
	}
	if opts.MaxCodeAttempts < 1 {
		opts.MaxCodeAttempts = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:            repo,
		receipts:        receipts,
		codes:           codes,
		logger:          logger,
		loc:             opts.Location,
		receiptTTL:      opts.ReceiptTTL,
		maxCodeAttempts: opts.MaxCodeAttempts,
		now:             opts.Now,
	}
}

func (s *Service) CreateTransaction(ctx context.Context, req domain.CreateTransactionRequest) (domain.CreateTransactionResponse, error) {
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if err := validateCreateRequest(req); err != nil {
		return domain.CreateTransactionResponse{}, err
	}

	userID := req.UserID
	if userID == 0 {
		if actor, ok := ActorFromContext(ctx); ok {
			userID = actor.ID
		}
	}
	if userID <= 0 {
		return domain.CreateTransactionResponse{}, fmt.Errorf("%w: user_id is required", store.ErrInvalidTransaction)
	}

	discount := pricing.ComputeDiscount(req.TransactionDetails, bool(req.IsReseller))
	subtotal := pricing.Subtotal(req.TransactionDetails)
	totalPrice := pricing.TotalPrice(subtotal, discount.DiscountAmount)

	tx := domain.Transaction{
		UserID:        userID,
		TotalPrice:    totalPrice,
		PaymentMethod: req.PaymentMethod,
		IsOnlineOrder: bool(req.IsOnlineOrder),
		CreatedAt:     s.now().UTC(),
		Details:       make([]domain.TransactionDetail, 0, len(req.TransactionDetails)),
	}
	if req.PaymentMethod == domain.PaymentCash && req.CashAmount != nil {
		cash := *req.CashAmount
		change := cash - totalPrice
		tx.CashAmount = &cash
		tx.ChangeAmount = &change
	}
	if tx.IsOnlineOrder {
		tx.CustomerName = strings.TrimSpace(req.CustomerName)
		tx.CustomerAddress = strings.TrimSpace(req.CustomerAddress)
		tx.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
		tx.Notes = strings.TrimSpace(req.Notes)
	}
	for _, line := range req.TransactionDetails {
		detail := domain.TransactionDetail{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     line.Price,
			Subtotal:  line.Price * int64(line.Quantity),
		}
		if line.WeightGrams != nil {
			w := *line.WeightGrams
			detail.WeightGrams = &w
		}
		tx.Details = append(tx.Details, detail)
	}

	created, err := s.persistWithFreshCode(ctx, tx)
	if err != nil {
		return domain.CreateTransactionResponse{}, err
	}

	s.logger.Info("transaction created",
		zap.String("transaction_code", created.Code),
		zap.Int64("user_id", created.UserID),
		zap.Int64("total_price", created.TotalPrice),
		zap.Int64("discount_amount", discount.DiscountAmount),
		zap.Int64("total_grams", discount.TotalGrams),
		zap.String("payment_method", created.PaymentMethod),
		zap.Int("lines", len(created.Details)),
	)

	return domain.CreateTransactionResponse{
		Message:         "Transaction created successfully",
		TransactionCode: created.Code,
		TotalPrice:      created.TotalPrice,
		DiscountAmount:  discount.DiscountAmount,
		ChangeAmount:    created.ChangeAmount,
	}, nil
}

// persistWithFreshCode retries with a new code whenever the repository reports
// a collision, up to the configured attempt limit.
func (s *Service) persistWithFreshCode(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	for attempt := 1; ; attempt++ {
		tx.Code = s.codes.Next()
		created, err := s.repo.CreateTransaction(ctx, tx)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, store.ErrDuplicateCode) {
			if errors.Is(err, store.ErrPersistence) {
				s.logger.Error("transaction write failed", zap.String("transaction_code", tx.Code), zap.Error(err))
			}
			return nil, err
		}
		if attempt >= s.maxCodeAttempts {
			s.logger.Error("transaction code collisions exhausted retries",
				zap.String("transaction_code", tx.Code),
				zap.Int("attempts", attempt),
			)
			return nil, err
		}
		s.logger.Warn("transaction code collision, retrying",
			zap.String("transaction_code", tx.Code),
			zap.Int("attempt", attempt),
		)
	}
}

// Per-line caps keep price*quantity and the gram totals far from int64
// overflow even for carts that fill the request body limit.
const (
	maxLineQuantity    = 100_000
	maxUnitPrice       = 1_000_000_000
	maxUnitWeightGrams = 100_000
)

func validateCreateRequest(req domain.CreateTransactionRequest) error {
	if len(req.TransactionDetails) == 0 {
		return fmt.Errorf("%w: transaction_details must not be empty", store.ErrInvalidTransaction)
	}
	for i, line := range req.TransactionDetails {
		switch {
		case line.ProductID <= 0:
			return fmt.Errorf("%w: line %d: product_id must be positive", store.ErrInvalidTransaction, i+1)
		case line.Quantity <= 0:
			return fmt.Errorf("%w: line %d: quantity must be positive", store.ErrInvalidTransaction, i+1)
		case line.Price < 0:
			return fmt.Errorf("%w: line %d: price must not be negative", store.ErrInvalidTransaction, i+1)
		case line.WeightGrams != nil && *line.WeightGrams < 0:
			return fmt.Errorf("%w: line %d: weight_grams must not be negative", store.ErrInvalidTransaction, i+1)
		case line.Quantity > maxLineQuantity:
			return fmt.Errorf("%w: line %d: quantity exceeds %d", store.ErrInvalidTransaction, i+1, maxLineQuantity)
		case line.Price > maxUnitPrice:
			return fmt.Errorf("%w: line %d: price exceeds %d", store.ErrInvalidTransaction, i+1, maxUnitPrice)
		case line.WeightGrams != nil && *line.WeightGrams > maxUnitWeightGrams:
			return fmt.Errorf("%w: line %d: weight_grams exceeds %d", store.ErrInvalidTransaction, i+1, maxUnitWeightGrams)
		}
	}
	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return fmt.Errorf("%w: unsupported payment_method %q", store.ErrInvalidTransaction, req.PaymentMethod)
	}
	if req.CashAmount != nil && *req.CashAmount < 0 {
		return fmt.Errorf("%w: cash_amount must not be negative", store.ErrInvalidTransaction)
	}
	return nil
}

// GetReceipt rebuilds the printable receipt of a stored sale. The discount is
// re-derived with the reseller tiers always applied and then bounded by the
// gap between the line subtotal and the stored total, which stays
// authoritative.
func (s *Service) GetReceipt(ctx context.Context, code string) (domain.Receipt, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Receipt{}, fmt.Errorf("%w: transaction_code is required", store.ErrInvalidTransaction)
	}

	if cached, ok, err := s.receipts.Get(ctx, code); err != nil {
		s.logger.Warn("receipt cache read failed", zap.String("transaction_code", code), zap.Error(err))
	} else if ok {
		return *cached, nil
	}

	tx, err := s.repo.FindTransactionByCode(ctx, code)
	if err != nil {
		return domain.Receipt{}, err
	}

	lines := pricing.LinesFromDetails(tx.Details)
	subtotal := pricing.Subtotal(lines)
	recomputed := pricing.ComputeDiscount(lines, true)

	receipt := domain.Receipt{
		TransactionCode: tx.Code,
		Cashier:         tx.CashierUsername,
		Products:        make([]domain.ReceiptLine, 0, len(tx.Details)),
		TotalPrice:      tx.TotalPrice,
		DiscountAmount:  pricing.ClampDisplayedDiscount(recomputed.DiscountAmount, subtotal, tx.TotalPrice),
		PaymentMethod:   tx.PaymentMethod,
		CashAmount:      valueOrZero(tx.CashAmount),
		ChangeAmount:    valueOrZero(tx.ChangeAmount),
		IsOnlineOrder:   tx.IsOnlineOrder,
		CustomerName:    tx.CustomerName,
		CustomerAddress: tx.CustomerAddress,
		CustomerPhone:   tx.CustomerPhone,
		Notes:           tx.Notes,
		Date:            tx.CreatedAt.In(s.loc).Format(receiptDateLayout),
	}
	for _, detail := range tx.Details {
		receipt.Products = append(receipt.Products, domain.ReceiptLine{
			ProductName: detail.ProductName,
			Quantity:    detail.Quantity,
			Price:       detail.Price,
			Subtotal:    detail.Price * int64(detail.Quantity),
		})
	}

	if err := s.receipts.Set(ctx, code, &receipt, s.receiptTTL); err != nil {
		s.logger.Warn("receipt cache write failed", zap.String("transaction_code", code), zap.Error(err))
	}

	return receipt, nil
}

func (s *Service) ListTransactions(ctx context.Context, query domain.TransactionListQuery) ([]domain.TransactionSummary, error) {
	filter, err := s.resolveFilter(query)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range items {
		local := items[i].CreatedAt.In(s.loc)
		items[i].Date = local.Format(listDateLayout)
		items[i].Time = local.Format(listTimeLayout)
	}
	return items, nil
}

// resolveFilter turns calendar days in the business timezone into a
// half-open instant range.
func (s *Service) resolveFilter(query domain.TransactionListQuery) (domain.TransactionFilter, error) {
	filter := domain.TransactionFilter{Username: strings.TrimSpace(query.Username)}

	start := strings.ToLower(strings.TrimSpace(query.StartDate))
	end := strings.TrimSpace(query.EndDate)

	if start == "today" {
		today := startOfDay(s.now().In(s.loc))
		tomorrow := today.AddDate(0, 0, 1)
		filter.From = &today
		if end == "" {
			filter.To = &tomorrow
		}
	} else if start != "" {
		day, err := time.ParseInLocation(listDateLayout, start, s.loc)
		if err != nil {
			return domain.TransactionFilter{}, fmt.Errorf("%w: start_date must be YYYY-MM-DD or today", store.ErrInvalidTransaction)
		}
		filter.From = &day
	}

	if end != "" {
		day, err := time.ParseInLocation(listDateLayout, end, s.loc)
		if err != nil {
			return domain.TransactionFilter{}, fmt.Errorf("%w: end_date must be YYYY-MM-DD", store.ErrInvalidTransaction)
		}
		next := day.AddDate(0, 0, 1)
		filter.To = &next
	}

	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return domain.TransactionFilter{}, fmt.Errorf("%w: start_date is after end_date", store.ErrInvalidTransaction)
	}
	return filter, nil
}

func (s *Service) GetTransaction(ctx context.Context, code string) (domain.TransactionView, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.TransactionView{}, fmt.Errorf("%w: transaction_code is required", store.ErrInvalidTransaction)
	}

	tx, err := s.repo.FindTransactionByCode(ctx, code)
	if err != nil {
		return domain.TransactionView{}, err
	}
	details := tx.Details
	tx.Details = nil
	return domain.TransactionView{Transaction: *tx, Details: details}, nil
}

func (s *Service) DeleteTransaction(ctx context.Context, code string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("%w: transaction_code is required", store.ErrInvalidTransaction)
	}

	if err := s.repo.DeleteTransaction(ctx, code); err != nil {
		return err
	}
	if err := s.receipts.Delete(ctx, code); err != nil {
		s.logger.Warn("receipt cache eviction failed", zap.String("transaction_code", code), zap.Error(err))
	}

	s.logger.Info("transaction deleted", zap.String("transaction_code", code), zap.String("actor", actor.Username))
	return nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func valueOrZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentQRIS, domain.PaymentTransfer, domain.PaymentCard, domain.PaymentEwallet, domain.PaymentOther:
		return true
	default:
		return false
	}
}
