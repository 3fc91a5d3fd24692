package inventory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ariefcatur/go-resilient-orders/internal/stock"
)

type MemoryStore struct {
	mu           sync.Mutex
	seq          int64
	products     map[int64]stock.Product
	reservations map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:     make(map[int64]stock.Product),
		reservations: make(map[string]int64),
	}
}

func (s *MemoryStore) List(_ context.Context) ([]stock.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]stock.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (stock.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return stock.Product{}, notFound(id)
	}
	return p, nil
}

func (s *MemoryStore) Create(_ context.Context, in ProductInput) (stock.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	p := stock.Product{ID: s.seq, Name: strings.TrimSpace(in.Name), Price: in.Price, Quantity: in.Quantity}
	s.products[p.ID] = p
	return p, nil
}

func (s *MemoryStore) Update(_ context.Context, id int64, in ProductInput) (stock.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return stock.Product{}, notFound(id)
	}
	p := stock.Product{ID: id, Name: strings.TrimSpace(in.Name), Price: in.Price, Quantity: in.Quantity}
	s.products[id] = p
	return p, nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return notFound(id)
	}
	delete(s.products, id)
	for k, pid := range s.reservations {
		if pid == id {
			delete(s.reservations, k)
		}
	}
	return nil
}

func (s *MemoryStore) Reduce(_ context.Context, id int64, qty int, key string) (stock.Product, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return stock.Product{}, false, notFound(id)
	}
	if key != "" {
		if owner, seen := s.reservations[key]; seen {
			if owner != id {
				return stock.Product{}, false, reservationMismatch(key, owner, id)
			}
			return p, false, nil
		}
	}
	if p.Quantity < qty {
		return stock.Product{}, false, insufficient(id, p.Quantity, qty)
	}
	p.Quantity -= qty
	s.products[id] = p
	if key != "" {
		s.reservations[key] = id
	}
	return p, true, nil
}
