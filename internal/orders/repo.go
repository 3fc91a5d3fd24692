package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repository interface {
	// Save inserts o with a fresh ID and creation time, both written back to o.
	Save(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (Order, error)
	List(ctx context.Context) ([]Order, error)
}

type Repo struct{ DB *pgxpool.Pool }

const orderCols = `id::text, product_id, quantity, total_amount::text, status, created_at`

func (r *Repo) Save(ctx context.Context, o *Order) error {
	id := uuid.NewString()
	err := r.DB.QueryRow(ctx, `
		INSERT INTO orders(id, product_id, quantity, total_amount, status)
		VALUES ($1, $2, $3, $4::numeric, $5)
		RETURNING created_at`,
		id, o.ProductID, o.Quantity, o.TotalAmount.String(), string(o.Status),
	).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	o.ID = id
	return nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		total  string
		status string
	)
	if err := row.Scan(&o.ID, &o.ProductID, &o.Quantity, &total, &status, &o.CreatedAt); err != nil {
		return Order{}, err
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return Order{}, fmt.Errorf("parse total %q: %w", total, err)
	}
	o.TotalAmount = d
	o.Status = Status(status)
	return o, nil
}

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Order{}, ErrOrderNotFound
	}
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}

func (r *Repo) List(ctx context.Context) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderCols+` FROM orders ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type MemoryRepo struct {
	mu     sync.RWMutex
	orders map[string]Order
	seq    []string
	now    func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{orders: make(map[string]Order), now: time.Now}
}

func (r *MemoryRepo) Save(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o.ID = uuid.NewString()
	o.CreatedAt = r.now().UTC()
	r.orders[o.ID] = *o
	r.seq = append(r.seq, o.ID)
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (r *MemoryRepo) List(_ context.Context) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Order, 0, len(r.seq))
	for _, id := range r.seq {
		out = append(out, r.orders[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
