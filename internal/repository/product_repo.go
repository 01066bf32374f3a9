package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-pos/internal/domain"
	"github.com/sakashimaa/go-pos/pkg/mylogger"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ReservedLine is what a successful stock hold hands back to the
// settlement path: the authoritative price and name at reserve time
// plus the stock left after the hold.
type ReservedLine struct {
	ProductID int64
	Name      string
	Price     decimal.Decimal
	Remaining int32
	LowStock  bool
}

type ProductRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	List(ctx context.Context, limit, offset int64, search string) ([]domain.Product, int64, error)
	Reserve(ctx context.Context, tx pgx.Tx, id int64, quantity int32) (*ReservedLine, error)
	Return(ctx context.Context, tx pgx.Tx, id int64, quantity int32) error
}

type productRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewProductRepository(pool *pgxpool.Pool, logger *zap.Logger) ProductRepository {
	return &productRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("contract/product_repo"),
	}
}

func (r *productRepo) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.GetByID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
	)

	query := `
		SELECT id, name, description, price, stock_quantity,
		low_stock_threshold, category_id, sku, created_at, updated_at
		FROM products
		WHERE id = $1;
	`

	var res domain.Product
	if err := r.pool.QueryRow(ctx, query, id).
		Scan(&res.ID, &res.Name, &res.Description, &res.Price,
			&res.StockQuantity, &res.LowStockThreshold, &res.CategoryID,
			&res.Sku, &res.CreatedAt, &res.UpdatedAt,
		); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}

		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error get by id",
			zap.Int64("id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error getting product: %w", err)
	}

	return &res, nil
}

func (r *productRepo) List(ctx context.Context, limit, offset int64, search string) ([]domain.Product, int64, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.List")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("limit", limit),
		attribute.Int64("offset", offset),
		attribute.String("search", search),
	)

	var products []domain.Product
	var totalCount int64

	baseQuery := `SELECT id, name, description, price, stock_quantity,
		low_stock_threshold, category_id, sku, created_at, updated_at
		FROM products`
	countQuery := `SELECT COUNT(*) FROM products`

	var args []interface{}
	if search != "" {
		filter := " WHERE name ILIKE $1"
		baseQuery += filter
		countQuery += filter

		args = append(args, "%"+search+"%")
	}

	baseQuery += fmt.Sprintf(" ORDER BY name ASC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	queryArgs := append(args, limit, offset)

	rows, err := r.pool.Query(ctx, baseQuery, queryArgs...)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error getting products",
			zap.String("search", search),
			zap.Error(err),
		)

		return nil, 0, fmt.Errorf("error selecting products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Description,
			&p.Price,
			&p.StockQuantity,
			&p.LowStockThreshold,
			&p.CategoryID,
			&p.Sku,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Failed to scan rows",
				zap.Error(err),
			)

			return nil, 0, fmt.Errorf("error scanning rows: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)

		return nil, 0, fmt.Errorf("rows iteration error: %w", err)
	}

	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to count products",
			zap.Error(err),
		)

		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	return products, totalCount, nil
}

// Reserve holds quantity against the product's stock with a single
// conditional decrement. The WHERE guard makes concurrent holds on one
// product serialize on the row: two attempts can never together take
// more than what is on hand. Rolling the surrounding transaction back
// releases the hold, committing it makes the decrement durable.
func (r *productRepo) Reserve(ctx context.Context, tx pgx.Tx, id int64, quantity int32) (*ReservedLine, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Reserve")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
		attribute.Int("quantity", int(quantity)),
	)

	query := `
		UPDATE products
		SET stock_quantity = stock_quantity - $2, updated_at = NOW()
		WHERE id = $1
			AND stock_quantity >= $2
		RETURNING name, price, stock_quantity, low_stock_threshold;
	`

	var line ReservedLine
	var threshold int32

	err := tx.QueryRow(ctx, query, id, quantity).
		Scan(&line.Name, &line.Price, &line.Remaining, &threshold)
	if err == nil {
		line.ProductID = id
		line.LowStock = line.Remaining <= threshold
		return &line, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error reserving stock",
			zap.Int64("id", id),
			zap.Int32("quantity", quantity),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error reserving stock for product %d: %w", id, err)
	}

	// No row updated: tell a missing product apart from an empty shelf.
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).
		Scan(&exists); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error checking product %d: %w", id, err)
	}

	if !exists {
		mylogger.Warn(ctx, r.logger, "Product not found", zap.Int64("product_id", id))
		return nil, ErrProductNotFound
	}

	return nil, ErrInsufficientStock
}

func (r *productRepo) Return(ctx context.Context, tx pgx.Tx, id int64, quantity int32) error {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Return")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("id", id),
		attribute.Int("quantity", int(quantity)),
	)

	query := `
		UPDATE products
		SET stock_quantity = stock_quantity + $1, updated_at = NOW()
		WHERE id = $2
	`
	commandTag, err := tx.Exec(ctx, query, quantity, id)
	if err != nil {
		span.RecordError(err)
		mylogger.Warn(ctx, r.logger, "Failed to return stock", zap.Error(err))

		return err
	}

	if commandTag.RowsAffected() == 0 {
		mylogger.Warn(ctx, r.logger, "Product not found", zap.Int64("product_id", id))
		return ErrProductNotFound
	}

	return nil
}
