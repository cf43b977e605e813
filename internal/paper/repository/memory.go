package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/paperdesk/paperdesk/internal/paper"
)

var (
	ErrNotFound = errors.New("paper not found")
	ErrTooLarge = errors.New("paper document too large")
)

// Repository is the paper registry: it owns papers, assigns ids and indexes
// papers by owner. Deleting a paper deletes its attachment set with it.
type Repository interface {
	Create(ctx context.Context, owner string) (*paper.Paper, error)
	Get(ctx context.Context, id int64) (*paper.Paper, error)
	List(ctx context.Context) ([]*paper.Paper, error)
	ListFor(ctx context.Context, owner string) ([]*paper.Paper, error)
	Save(ctx context.Context, p *paper.Paper) error
	Delete(ctx context.Context, id int64) error
}

// MemoryRepo is the in-process registry. Stored papers are never handed out
// directly; callers always receive clones.
type MemoryRepo struct {
	mu      sync.RWMutex
	store   map[int64]*paper.Paper
	lastID  int64
	nowFunc func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[int64]*paper.Paper), nowFunc: time.Now}
}

// Create assigns the next id: one above the highest id ever issued, which is
// max(existing)+1 unless the top paper was deleted. Ids are never reused.
func (m *MemoryRepo) Create(_ context.Context, owner string) (*paper.Paper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID++
	p := paper.New(m.lastID, owner, m.nowFunc().UTC())
	m.store[p.ID] = p
	return p.Clone(), nil
}

func (m *MemoryRepo) Get(_ context.Context, id int64) (*paper.Paper, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.store[id]; ok {
		return p.Clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) List(_ context.Context) ([]*paper.Paper, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*paper.Paper, 0, len(m.store))
	for _, p := range m.store {
		out = append(out, p.Clone())
	}
	sortByID(out)
	return out, nil
}

func (m *MemoryRepo) ListFor(_ context.Context, owner string) ([]*paper.Paper, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*paper.Paper{}
	for _, p := range m.store {
		if p.Owner == owner {
			out = append(out, p.Clone())
		}
	}
	sortByID(out)
	return out, nil
}

// Save replaces the stored paper. The owner of a stored paper cannot change.
func (m *MemoryRepo) Save(_ context.Context, p *paper.Paper) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[p.ID]
	if !ok {
		return ErrNotFound
	}
	c := p.Clone()
	c.Owner = cur.Owner
	c.CreatedAt = cur.CreatedAt
	m.store[p.ID] = c
	return nil
}

func (m *MemoryRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func sortByID(ps []*paper.Paper) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
}
