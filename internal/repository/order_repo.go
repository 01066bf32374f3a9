package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-pos/internal/domain"
	"github.com/sakashimaa/go-pos/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderRepository interface {
	CreateOrder(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	MarkItemsReturned(ctx context.Context, tx pgx.Tx, orderID int64, itemIDs []int64) ([]domain.OrderItem, error)
}

type orderRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderRepository(pool *pgxpool.Pool, logger *zap.Logger) OrderRepository {
	return &orderRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("order_repository"),
	}
}

// CreateOrder persists the order header, its items and the payment
// record inside the caller's transaction. A second insert with the
// same idempotency key fails with ErrDuplicateIdempotencyKey so the
// caller can hand back the original order instead.
func (r *orderRepo) CreateOrder(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.CreateOrder")
	defer span.End()

	span.SetAttributes(
		attribute.String("idempotency_key", order.IdempotencyKey),
		attribute.Int("items_count", len(order.Items)),
	)

	queryOrder := `
		INSERT INTO orders (idempotency_key, customer_id, customer_name, salesperson_id,
			status, subtotal, tax, total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	if err := tx.QueryRow(
		ctx,
		queryOrder,
		order.IdempotencyKey,
		order.CustomerID,
		order.CustomerName,
		order.SalespersonID,
		string(order.Status),
		order.Subtotal,
		order.Tax,
		order.Total,
	).Scan(
		&order.ID,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		var pgError *pgconn.PgError
		if errors.As(err, &pgError) && pgError.Code == "23505" {
			return ErrDuplicateIdempotencyKey
		}

		span.RecordError(err)

		mylogger.Warn(
			ctx,
			r.logger,
			"Failed to insert order",
			zap.Error(err),
		)

		return err
	}

	queryItem := `
		INSERT INTO order_items (order_id, product_id, name, price, quantity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID

		if err := tx.QueryRow(
			ctx,
			queryItem,
			order.ID,
			item.ProductID,
			item.Name,
			item.Price,
			item.Quantity,
		).Scan(&item.ID); err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Failed to insert item",
				zap.Error(err),
			)

			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if order.Payment != nil {
		queryPayment := `
			INSERT INTO payments (order_id, method, amount_paid, change_amount, created_at)
			VALUES ($1, $2, $3, $4, NOW())
			RETURNING id, created_at
		`

		if err := tx.QueryRow(
			ctx,
			queryPayment,
			order.ID,
			string(order.Payment.Method),
			order.Payment.AmountPaid,
			order.Payment.ChangeAmount,
		).Scan(&order.Payment.ID, &order.Payment.CreatedAt); err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Failed to insert payment",
				zap.Error(err),
			)

			return fmt.Errorf("failed to insert payment: %w", err)
		}

		order.Payment.OrderID = order.ID
	}

	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", id),
	)

	return r.getOrder(ctx, `WHERE o.id = $1`, id)
}

func (r *orderRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByIdempotencyKey")
	defer span.End()

	span.SetAttributes(
		attribute.String("idempotency_key", key),
	)

	return r.getOrder(ctx, `WHERE o.idempotency_key = $1`, key)
}

func (r *orderRepo) getOrder(ctx context.Context, where string, arg any) (*domain.Order, error) {
	queryOrder := `
		SELECT o.id, o.idempotency_key, o.customer_id, o.customer_name, o.salesperson_id,
			o.status, o.subtotal, o.tax, o.total, o.created_at, o.updated_at
		FROM orders o ` + where

	var order domain.Order
	if err := r.pool.QueryRow(ctx, queryOrder, arg).Scan(
		&order.ID,
		&order.IdempotencyKey,
		&order.CustomerID,
		&order.CustomerName,
		&order.SalespersonID,
		&order.Status,
		&order.Subtotal,
		&order.Tax,
		&order.Total,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query order",
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	queryItems := `
		SELECT id, order_id, product_id, name, price, quantity, returned
		FROM order_items
		WHERE order_id = $1
		ORDER BY id ASC;
	`

	rows, err := r.pool.Query(ctx, queryItems, order.ID)
	if err != nil {
		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query order_items",
			zap.Error(err),
		)

		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Name,
			&item.Price,
			&item.Quantity,
			&item.Returned,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}

		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	queryPayment := `
		SELECT id, order_id, method, amount_paid, change_amount, created_at
		FROM payments
		WHERE order_id = $1;
	`

	var payment domain.Payment
	err = r.pool.QueryRow(ctx, queryPayment, order.ID).Scan(
		&payment.ID,
		&payment.OrderID,
		&payment.Method,
		&payment.AmountPaid,
		&payment.ChangeAmount,
		&payment.CreatedAt,
	)
	if err == nil {
		order.Payment = &payment
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to query payment: %w", err)
	}

	return &order, nil
}

// MarkItemsReturned flags the given items of an order as returned and
// reports the rows that actually changed, so the caller can restock
// exactly those quantities. Already-returned items are skipped.
func (r *orderRepo) MarkItemsReturned(ctx context.Context, tx pgx.Tx, orderID int64, itemIDs []int64) ([]domain.OrderItem, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.MarkItemsReturned")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.Int("items_count", len(itemIDs)),
	)

	query := `
		UPDATE order_items
		SET returned = TRUE
		WHERE order_id = $1 AND id = ANY($2) AND returned = FALSE
		RETURNING id, order_id, product_id, name, price, quantity, returned;
	`

	rows, err := tx.Query(ctx, query, orderID, itemIDs)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to mark items returned",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to mark items returned: %w", err)
	}
	defer rows.Close()

	var returned []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Name,
			&item.Price,
			&item.Quantity,
			&item.Returned,
		); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan returned item: %w", err)
		}

		returned = append(returned, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return returned, nil
}
