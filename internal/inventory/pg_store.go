package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-resilient-orders/internal/stock"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const productCols = `id, name, price::text, quantity`

type PGStore struct{ DB *pgxpool.Pool }

func scanProduct(row pgx.Row) (stock.Product, error) {
	var (
		p     stock.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &price, &p.Quantity); err != nil {
		return stock.Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return stock.Product{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	p.Price = d
	return p, nil
}

func (s *PGStore) List(ctx context.Context) ([]stock.Product, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+productCols+` FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []stock.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PGStore) Get(ctx context.Context, id int64) (stock.Product, error) {
	p, err := scanProduct(s.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return stock.Product{}, notFound(id)
	}
	return p, err
}

func (s *PGStore) Create(ctx context.Context, in ProductInput) (stock.Product, error) {
	return scanProduct(s.DB.QueryRow(ctx, `
		INSERT INTO products(name, price, quantity)
		VALUES ($1, $2::numeric, $3)
		RETURNING `+productCols,
		strings.TrimSpace(in.Name), in.Price.String(), in.Quantity))
}

func (s *PGStore) Update(ctx context.Context, id int64, in ProductInput) (stock.Product, error) {
	p, err := scanProduct(s.DB.QueryRow(ctx, `
		UPDATE products SET name=$2, price=$3::numeric, quantity=$4, updated_at=now()
		WHERE id=$1
		RETURNING `+productCols,
		id, strings.TrimSpace(in.Name), in.Price.String(), in.Quantity))
	if errors.Is(err, pgx.ErrNoRows) {
		return stock.Product{}, notFound(id)
	}
	return p, err
}

func (s *PGStore) Delete(ctx context.Context, id int64) error {
	ct, err := s.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

// Reduce records the reservation key and decrements in one transaction.
// The conditional UPDATE keeps quantity from going negative under
// concurrent reservations without an explicit row lock.
func (s *PGStore) Reduce(ctx context.Context, id int64, qty int, key string) (stock.Product, bool, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return stock.Product{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if key != "" {
		ct, err := tx.Exec(ctx, `
			INSERT INTO stock_reservations(reservation_key, product_id, quantity)
			VALUES ($1, $2, $3)
			ON CONFLICT (reservation_key) DO NOTHING`, key, id, qty)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return stock.Product{}, false, notFound(id)
		}
		if err != nil {
			return stock.Product{}, false, err
		}
		if ct.RowsAffected() == 0 {
			var owner int64
			if err := tx.QueryRow(ctx,
				`SELECT product_id FROM stock_reservations WHERE reservation_key = $1`, key).Scan(&owner); err != nil {
				return stock.Product{}, false, err
			}
			_ = tx.Rollback(ctx)
			if owner != id {
				return stock.Product{}, false, reservationMismatch(key, owner, id)
			}
			p, err := s.Get(ctx, id)
			return p, false, err
		}
	}

	p, err := scanProduct(tx.QueryRow(ctx, `
		UPDATE products SET quantity = quantity - $2, updated_at = now()
		WHERE id = $1 AND quantity >= $2
		RETURNING `+productCols, id, qty))
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		cur, gerr := s.Get(ctx, id)
		if gerr != nil {
			return stock.Product{}, false, gerr
		}
		return stock.Product{}, false, insufficient(id, cur.Quantity, qty)
	}
	if err != nil {
		return stock.Product{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return stock.Product{}, false, err
	}
	return p, true, nil
}
