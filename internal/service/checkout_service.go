package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-pos/internal/cart"
	"github.com/sakashimaa/go-pos/internal/clients"
	"github.com/sakashimaa/go-pos/internal/domain"
	"github.com/sakashimaa/go-pos/internal/repository"
	"github.com/sakashimaa/go-pos/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/go-pos/pkg/outbox/domain"
	"github.com/sakashimaa/go-pos/pkg/outbox/worker"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// SettlementState tracks where an attempt is in the checkout protocol.
type SettlementState string

const (
	StateIdle            SettlementState = "idle"
	StateReserving       SettlementState = "reserving"
	StateCharging        SettlementState = "charging"
	StateCommitting      SettlementState = "committing"
	StateSettled         SettlementState = "settled"
	StateRejectedStock   SettlementState = "rejected_stock"
	StateRejectedPayment SettlementState = "rejected_payment"
	StateAborted         SettlementState = "aborted"
)

type CompleteSaleRequest struct {
	IdempotencyKey string `json:"idempotency_key" validate:"required"`
	CustomerID     *int64 `json:"customer_id"`
	SalespersonID  *int64 `json:"salesperson_id"`
	PaymentMethod  string `json:"payment_method" validate:"required,oneof=cash card upi"`
	AmountPaid     string `json:"amount_paid" validate:"required"`
}

type SaleResult struct {
	State SettlementState
	Order *domain.Order
	// Change is the displayed cash change, floored at zero. The
	// charged total is never adjusted by that floor.
	Change   decimal.Decimal
	LowStock []int64
	Replayed bool
}

// StockCacheInvalidator drops cached product entries after their
// stock changed. Implemented by the cached catalog decorator.
type StockCacheInvalidator interface {
	Invalidate(ctx context.Context, ids ...int64)
}

type CheckoutService interface {
	CompleteSale(ctx context.Context, sessionID string, req *CompleteSaleRequest) (*SaleResult, error)
	Refund(ctx context.Context, orderID int64, itemIDs []int64, reason string) error
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
}

// attemptGuard rejects a second settlement attempt for a cart while
// one is still between Reserving and Committing.
type attemptGuard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func (g *attemptGuard) begin(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inFlight[id]; busy {
		return false
	}

	g.inFlight[id] = struct{}{}
	return true
}

func (g *attemptGuard) end(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.inFlight, id)
}

type checkoutService struct {
	pool        *pgxpool.Pool
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
	outboxRepo  worker.OutboxRepository
	terminal    TerminalService
	calc        cart.Calculator
	directory   clients.CustomerDirectory
	invalidator StockCacheInvalidator
	validate    *validator.Validate
	topic       string
	logger      *zap.Logger
	tracer      trace.Tracer
	attempts    attemptGuard
}

func NewCheckoutService(
	pool *pgxpool.Pool,
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
	outboxRepo worker.OutboxRepository,
	terminal TerminalService,
	calc cart.Calculator,
	directory clients.CustomerDirectory,
	invalidator StockCacheInvalidator,
	topic string,
	logger *zap.Logger,
) CheckoutService {
	return &checkoutService{
		pool:        pool,
		productRepo: productRepo,
		orderRepo:   orderRepo,
		outboxRepo:  outboxRepo,
		terminal:    terminal,
		calc:        calc,
		directory:   directory,
		invalidator: invalidator,
		validate:    validator.New(),
		topic:       topic,
		logger:      logger,
		tracer:      otel.Tracer("checkout_service"),
		attempts:    attemptGuard{inFlight: make(map[string]struct{})},
	}
}

// CompleteSale runs the atomic settlement protocol for one cart:
// reserve every line against live stock, charge the payment, persist
// the order and commit the stock decrements in a single transaction.
// A replayed idempotency key returns the original order and touches
// nothing.
func (s *checkoutService) CompleteSale(ctx context.Context, sessionID string, req *CompleteSaleRequest) (*SaleResult, error) {
	ctx, span := s.tracer.Start(ctx, "CheckoutService.CompleteSale")
	defer span.End()

	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("idempotency_key", req.IdempotencyKey),
	)

	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	amountPaid, err := decimal.NewFromString(req.AmountPaid)
	if err != nil {
		return nil, fmt.Errorf("invalid amount_paid: %w", err)
	}

	// A retried request for an already-settled attempt gets the
	// original order back, before any stock is touched.
	if existing, err := s.orderRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
		return s.replayResult(existing), nil
	} else if !errors.Is(err, repository.ErrOrderNotFound) {
		return nil, err
	}

	if !s.attempts.begin(sessionID) {
		return nil, ErrSettlementInProgress
	}
	defer s.attempts.end(sessionID)

	snapshot, err := s.terminal.SnapshotCart(sessionID)
	if err != nil {
		return nil, err
	}
	if len(snapshot) == 0 {
		return nil, ErrEmptyCart
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				cleanupCtx,
				s.logger,
				"Error rolling back transaction",
				zap.Error(err),
			)
		}
	}()

	// Reserving: take a hold per line. Any failure rolls the whole
	// transaction back, which releases every hold already taken.
	state := StateReserving
	span.SetAttributes(attribute.String("state", string(state)))

	reserved := make([]*repository.ReservedLine, 0, len(snapshot))
	var lowStock []int64
	for _, line := range snapshot {
		r, err := s.productRepo.Reserve(ctx, tx, line.ProductID, line.Quantity)
		if err != nil {
			if errors.Is(err, repository.ErrInsufficientStock) || errors.Is(err, repository.ErrProductNotFound) {
				mylogger.Warn(
					ctx,
					s.logger,
					"Settlement rejected at reservation",
					zap.Int64("product_id", line.ProductID),
					zap.Error(err),
				)

				return &SaleResult{State: StateRejectedStock}, &StockRejectionError{
					ProductID: line.ProductID,
					Err:       err,
				}
			}

			return &SaleResult{State: StateAborted}, err
		}

		reserved = append(reserved, r)
		if r.LowStock {
			lowStock = append(lowStock, r.ProductID)
		}
	}

	// Charging: totals come from the frozen snapshot with its captured
	// unit prices, not from the prices read at reservation time.
	state = StateCharging
	span.SetAttributes(attribute.String("state", string(state)))

	totals := s.calc.Calculate(snapshot)
	if amountPaid.LessThan(totals.Total) {
		mylogger.Warn(
			ctx,
			s.logger,
			"Settlement rejected: insufficient payment",
			zap.String("amount_paid", amountPaid.StringFixed(2)),
			zap.String("total", totals.Total.StringFixed(2)),
		)

		return &SaleResult{State: StateRejectedPayment}, ErrInsufficientPayment
	}

	change := amountPaid.Sub(totals.Total)
	displayChange := change
	if displayChange.IsNegative() {
		displayChange = decimal.Zero
	}

	// Committing: order, items, payment, outbox event and the stock
	// decrements land in the same transaction.
	state = StateCommitting
	span.SetAttributes(attribute.String("state", string(state)))

	order := &domain.Order{
		IdempotencyKey: req.IdempotencyKey,
		SalespersonID:  req.SalespersonID,
		Status:         domain.OrderStatusCompleted,
		Subtotal:       totals.Subtotal,
		Tax:            totals.Tax,
		Total:          totals.Total,
		Payment: &domain.Payment{
			Method:       domain.PaymentMethod(req.PaymentMethod),
			AmountPaid:   amountPaid,
			ChangeAmount: displayChange,
		},
	}

	s.annotateCustomer(ctx, order, req.CustomerID)

	for _, line := range snapshot {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			Price:     line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}

	if err := s.orderRepo.CreateOrder(ctx, tx, order); err != nil {
		if errors.Is(err, repository.ErrDuplicateIdempotencyKey) {
			// A concurrent retry with the same key won the race. Drop
			// our holds and hand back the winner's order.
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				mylogger.Warn(ctx, s.logger, "Rollback after duplicate key failed", zap.Error(rbErr))
			}

			existing, getErr := s.orderRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
			if getErr != nil {
				return nil, getErr
			}

			return s.replayResult(existing), nil
		}

		mylogger.Error(ctx, s.logger, "Failed to persist order", zap.Error(err))

		return &SaleResult{State: StateAborted}, fmt.Errorf("failed to persist order: %w", err)
	}

	if err := s.emitSaleCompleted(ctx, tx, order, lowStock); err != nil {
		return &SaleResult{State: StateAborted}, err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
		return &SaleResult{State: StateAborted}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	// Settled: only now does the cart go away.
	if err := s.terminal.ClearCart(sessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		mylogger.Warn(ctx, s.logger, "Failed to clear cart after settlement", zap.Error(err))
	}

	if s.invalidator != nil {
		ids := make([]int64, 0, len(reserved))
		for _, r := range reserved {
			ids = append(ids, r.ProductID)
		}
		s.invalidator.Invalidate(ctx, ids...)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Sale settled",
		zap.Int64("order_id", order.ID),
		zap.String("total", order.Total.StringFixed(2)),
	)

	return &SaleResult{
		State:    StateSettled,
		Order:    order,
		Change:   displayChange,
		LowStock: lowStock,
	}, nil
}

// annotateCustomer attaches directory info when available. An unknown
// customer or a directory outage degrades to a walk-in sale; the
// settlement never fails because of it.
func (s *checkoutService) annotateCustomer(ctx context.Context, order *domain.Order, customerID *int64) {
	if customerID == nil || s.directory == nil {
		return
	}

	customer, err := s.directory.GetCustomer(ctx, *customerID)
	if err != nil {
		mylogger.Warn(
			ctx,
			s.logger,
			"Customer lookup failed, proceeding as walk-in",
			zap.Int64("customer_id", *customerID),
			zap.Error(err),
		)

		return
	}

	order.CustomerID = &customer.ID
	order.CustomerName = customer.Name
}

func (s *checkoutService) emitSaleCompleted(ctx context.Context, tx pgx.Tx, order *domain.Order, lowStock []int64) error {
	lowStockSet := make(map[int64]bool, len(lowStock))
	for _, id := range lowStock {
		lowStockSet[id] = true
	}

	items := make([]domain.SaleItemEvent, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, domain.SaleItemEvent{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price.StringFixed(2),
			Quantity:  item.Quantity,
			LowStock:  lowStockSet[item.ProductID],
		})
	}

	event := domain.SaleCompletedEvent{
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		Items:         items,
		Subtotal:      order.Subtotal.StringFixed(2),
		Tax:           order.Tax.StringFixed(2),
		Total:         order.Total.StringFixed(2),
		PaymentMethod: string(order.Payment.Method),
		CompletedAt:   time.Now().UTC(),
	}

	return s.emitEvent(ctx, tx, "SaleCompleted", fmt.Sprintf("%d", order.ID), event)
}

func (s *checkoutService) emitEvent(ctx context.Context, tx pgx.Tx, eventType, aggregateID string, payload any) error {
	wrapper := map[string]any{
		"event":   eventType,
		"payload": payload,
	}

	wrapperBytes, err := json.Marshal(wrapper)
	if err != nil {
		return fmt.Errorf("failed to marshal wrapper: %w", err)
	}

	outboxEvent := &outboxDomain.OutboxEvent{
		AggregateType: "Order",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       wrapperBytes,
		Topic:         s.topic,
	}

	if err := s.outboxRepo.SaveOutboxEvent(ctx, tx, outboxEvent); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to save outbox event", zap.Error(err))
		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	return nil
}

// Refund marks the selected items returned and puts their quantities
// back on the shelf in one transaction.
func (s *checkoutService) Refund(ctx context.Context, orderID int64, itemIDs []int64, reason string) error {
	ctx, span := s.tracer.Start(ctx, "CheckoutService.Refund")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.Int("items_count", len(itemIDs)),
	)

	if len(itemIDs) == 0 {
		return fmt.Errorf("no items selected for refund")
	}

	if _, err := s.orderRepo.GetByID(ctx, orderID); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(cleanupCtx, s.logger, "Error rolling back transaction", zap.Error(err))
		}
	}()

	returned, err := s.orderRepo.MarkItemsReturned(ctx, tx, orderID, itemIDs)
	if err != nil {
		return err
	}
	if len(returned) == 0 {
		return fmt.Errorf("no refundable items matched")
	}

	items := make([]domain.SaleItemEvent, 0, len(returned))
	for _, item := range returned {
		if err := s.productRepo.Return(ctx, tx, item.ProductID, item.Quantity); err != nil {
			mylogger.Error(
				ctx,
				s.logger,
				"Failed to restock returned item",
				zap.Int64("product_id", item.ProductID),
				zap.Error(err),
			)

			return err
		}

		items = append(items, domain.SaleItemEvent{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price.StringFixed(2),
			Quantity:  item.Quantity,
		})
	}

	event := domain.SaleRefundedEvent{
		OrderID:    orderID,
		Items:      items,
		Reason:     reason,
		RefundedAt: time.Now().UTC(),
	}

	if err := s.emitEvent(ctx, tx, "SaleRefunded", fmt.Sprintf("%d", orderID), event); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if s.invalidator != nil {
		ids := make([]int64, 0, len(returned))
		for _, item := range returned {
			ids = append(ids, item.ProductID)
		}
		s.invalidator.Invalidate(ctx, ids...)
	}

	return nil
}

func (s *checkoutService) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			s.logger.Warn("order not found", zap.Int64("order_id", id))
			return nil, err
		}

		return nil, fmt.Errorf("error getting order: %w", err)
	}

	return order, nil
}

func (s *checkoutService) replayResult(order *domain.Order) *SaleResult {
	change := decimal.Zero
	if order.Payment != nil {
		change = order.Payment.ChangeAmount
	}

	return &SaleResult{
		State:    StateSettled,
		Order:    order,
		Change:   change,
		Replayed: true,
	}
}
