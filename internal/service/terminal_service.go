package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sakashimaa/go-pos/internal/cart"
	"github.com/sakashimaa/go-pos/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type CartOpAction string

const (
	CartOpAdd    CartOpAction = "add"
	CartOpSet    CartOpAction = "set"
	CartOpRemove CartOpAction = "remove"
	CartOpClear  CartOpAction = "clear"
)

type CartOp struct {
	Action    CartOpAction `json:"action" validate:"required,oneof=add set remove clear"`
	ProductID int64        `json:"product_id"`
	Quantity  int32        `json:"quantity"`
}

type CartView struct {
	Items    []cart.LineItem `json:"items"`
	Subtotal string          `json:"subtotal"`
	Tax      string          `json:"tax"`
	Total    string          `json:"total"`
}

type TerminalService interface {
	OpenSession(ctx context.Context) string
	CloseSession(ctx context.Context, sessionID string) error
	MutateCart(ctx context.Context, sessionID string, op CartOp) (*CartView, error)
	GetTotals(ctx context.Context, sessionID string) (*CartView, error)
	SnapshotCart(sessionID string) ([]cart.LineItem, error)
	ClearCart(sessionID string) error
}

type session struct {
	mu   sync.Mutex
	cart *cart.Cart
}

// terminalService owns one live cart per terminal session. The cart
// itself is single-owner; the per-session lock only serializes the
// operator's event stream against settlement snapshots.
type terminalService struct {
	mu       sync.RWMutex
	sessions map[string]*session

	catalog CatalogService
	calc    cart.Calculator
	logger  *zap.Logger
	tracer  trace.Tracer
}

func NewTerminalService(catalog CatalogService, calc cart.Calculator, logger *zap.Logger) TerminalService {
	return &terminalService{
		sessions: make(map[string]*session),
		catalog:  catalog,
		calc:     calc,
		logger:   logger,
		tracer:   otel.Tracer("terminal_service"),
	}
}

func (s *terminalService) OpenSession(ctx context.Context) string {
	id := uuid.NewString()

	s.mu.Lock()
	s.sessions[id] = &session{cart: cart.New(s.calc)}
	s.mu.Unlock()

	mylogger.Info(ctx, s.logger, "Terminal session opened", zap.String("session_id", id))

	return id
}

func (s *terminalService) CloseSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}

	delete(s.sessions, sessionID)
	mylogger.Info(ctx, s.logger, "Terminal session closed", zap.String("session_id", sessionID))

	return nil
}

func (s *terminalService) session(sessionID string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return sess, nil
}

// MutateCart applies one cart operation. Every quantity change is
// gated against a fresh stock read; a rejection leaves the cart
// untouched and reports the reason for UI feedback.
func (s *terminalService) MutateCart(ctx context.Context, sessionID string, op CartOp) (*CartView, error) {
	ctx, span := s.tracer.Start(ctx, "TerminalService.MutateCart")
	defer span.End()

	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("action", string(op.Action)),
		attribute.Int64("product_id", op.ProductID),
	)

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	switch op.Action {
	case CartOpAdd:
		existing, _ := sess.cart.Quantity(op.ProductID)
		if err := s.checkQuantity(ctx, op.ProductID, existing+op.Quantity); err != nil {
			return nil, err
		}

		product, err := s.catalog.FindByID(ctx, op.ProductID)
		if err != nil {
			return nil, err
		}

		if err := sess.cart.AddOrIncrement(op.ProductID, product.Name, product.Price, op.Quantity); err != nil {
			return nil, err
		}

	case CartOpSet:
		if err := s.checkQuantity(ctx, op.ProductID, op.Quantity); err != nil {
			return nil, err
		}

		if err := sess.cart.SetQuantity(op.ProductID, op.Quantity); err != nil {
			return nil, err
		}

	case CartOpRemove:
		if err := sess.cart.Remove(op.ProductID); err != nil {
			return nil, err
		}

	case CartOpClear:
		sess.cart.Clear()

	default:
		return nil, fmt.Errorf("unknown cart action: %s", op.Action)
	}

	return viewOf(sess.cart), nil
}

func (s *terminalService) GetTotals(ctx context.Context, sessionID string) (*CartView, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	return viewOf(sess.cart), nil
}

// SnapshotCart freezes the line items for a settlement attempt.
func (s *terminalService) SnapshotCart(sessionID string) ([]cart.LineItem, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	return sess.cart.LineItems(), nil
}

func (s *terminalService) ClearCart(sessionID string) error {
	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.cart.Clear()

	return nil
}

func (s *terminalService) checkQuantity(ctx context.Context, productID int64, candidate int32) error {
	available, err := s.catalog.AvailableStock(ctx, productID)
	if err != nil {
		return err
	}

	if res := cart.CheckQuantity(candidate, available); !res.OK {
		mylogger.Warn(
			ctx,
			s.logger,
			"Cart mutation rejected",
			zap.Int64("product_id", productID),
			zap.Int32("candidate", candidate),
			zap.String("reason", string(res.Reason)),
		)

		return &QuantityRejectedError{
			ProductID: productID,
			Candidate: candidate,
			Reason:    res.Reason,
		}
	}

	return nil
}

func viewOf(c *cart.Cart) *CartView {
	totals := c.Totals()

	return &CartView{
		Items:    c.LineItems(),
		Subtotal: totals.Subtotal.StringFixed(2),
		Tax:      totals.Tax.StringFixed(2),
		Total:    totals.Total.StringFixed(2),
	}
}
