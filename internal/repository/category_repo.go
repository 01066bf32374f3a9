package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/go-pos/internal/domain"
	"github.com/sakashimaa/go-pos/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type CategoryRepository interface {
	Children(ctx context.Context, parentID *int64) ([]domain.CategoryNode, error)
	AncestorChain(ctx context.Context, leafID int64) ([]domain.CategoryNode, error)
}

type categoryRepo struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewCategoryRepository(pool *pgxpool.Pool, logger *zap.Logger) CategoryRepository {
	return &categoryRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("category_repository"),
	}
}

// Children lists the categories directly under a parent; a nil parent
// lists the roots.
func (r *categoryRepo) Children(ctx context.Context, parentID *int64) ([]domain.CategoryNode, error) {
	ctx, span := r.tracer.Start(ctx, "CategoryRepository.Children")
	defer span.End()

	query := `
		SELECT id, name, parent_id
		FROM categories
		WHERE parent_id = $1
		ORDER BY name ASC;
	`
	if parentID == nil {
		query = `
			SELECT id, name, parent_id
			FROM categories
			WHERE parent_id IS NULL
			ORDER BY name ASC;
		`
	}

	var rows pgx.Rows
	var err error

	if parentID == nil {
		rows, err = r.pool.Query(ctx, query)
	} else {
		span.SetAttributes(attribute.Int64("parent_id", *parentID))
		rows, err = r.pool.Query(ctx, query, *parentID)
	}
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query categories",
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var nodes []domain.CategoryNode
	for rows.Next() {
		var n domain.CategoryNode
		if err := rows.Scan(&n.ID, &n.Name, &n.ParentID); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}

		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return nodes, nil
}

// AncestorChain walks parent links from the leaf up to its root and
// returns the chain in root-to-leaf order.
func (r *categoryRepo) AncestorChain(ctx context.Context, leafID int64) ([]domain.CategoryNode, error) {
	ctx, span := r.tracer.Start(ctx, "CategoryRepository.AncestorChain")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("leaf_id", leafID),
	)

	query := `
		WITH RECURSIVE chain AS (
			SELECT id, name, parent_id, 1 AS depth
			FROM categories
			WHERE id = $1
			UNION ALL
			SELECT c.id, c.name, c.parent_id, chain.depth + 1
			FROM categories c
			JOIN chain ON chain.parent_id = c.id
		)
		SELECT id, name, parent_id
		FROM chain
		ORDER BY depth DESC;
	`

	rows, err := r.pool.Query(ctx, query, leafID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query ancestor chain",
			zap.Int64("leaf_id", leafID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to query ancestor chain: %w", err)
	}
	defer rows.Close()

	var chain []domain.CategoryNode
	for rows.Next() {
		var n domain.CategoryNode
		if err := rows.Scan(&n.ID, &n.Name, &n.ParentID); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan chain node: %w", err)
		}

		chain = append(chain, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	if len(chain) == 0 {
		return nil, ErrCategoryNotFound
	}

	return chain, nil
}
