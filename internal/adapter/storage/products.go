package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/niksmo/smart-catalog/internal/core/domain"
	"github.com/niksmo/smart-catalog/internal/core/port"
)

var _ port.ProductsReader = (*ProductsRepository)(nil)

type ProductsRepository struct {
	sqldb sqldb
}

func NewProductsRepository(sqldb sqldb) ProductsRepository {
	return ProductsRepository{sqldb}
}

// ReadProducts loads the whole products table ordered by id, which keeps
// the catalog order stable between restarts.
func (r ProductsRepository) ReadProducts(
	ctx context.Context,
) ([]domain.Product, error) {
	const op = "ProductsRepository.ReadProducts"
	log := slog.With("op", op)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	query := `
		SELECT name, category, price, rating, description
		FROM products
		ORDER BY id ASC;`

	rows, err := r.sqldb.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to query: %w", op, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", "err", err)
		}
	}()

	var vs []domain.Product
	for rows.Next() {
		var v domain.Product
		err := rows.Scan(
			&v.Name, &v.Category, &v.Price, &v.Rating, &v.Description,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to scan: %w", op, err)
		}
		vs = append(vs, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("products are read", "nProducts", len(vs))
	return vs, nil
}
