package document

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. It backs the memory database type and
// the package tests.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[Collection]map[string]Fields
	newID  func() string
	closed bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithIDGenerator replaces the uuid id generator.
func WithIDGenerator(fn func() string) MemoryOption {
	return func(s *MemoryStore) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		data:  make(map[Collection]map[string]Fields),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) checkOpen(op string) error {
	if s.closed {
		return Errorf(BackendUnavailable, op, "memory store is closed")
	}
	return nil
}

func ctxErr(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return Wrap(BackendUnavailable, op, err)
	}
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, c Collection, fields Fields) (string, error) {
	const op = "memory create"
	if err := ctxErr(ctx, op); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(op); err != nil {
		return "", err
	}
	coll, ok := s.data[c]
	if !ok {
		coll = make(map[string]Fields)
		s.data[c] = coll
	}
	id := s.newID()
	if _, exists := coll[id]; exists {
		return "", Errorf(Conflict, op, "id %s already exists in %s", id, c)
	}
	coll[id] = fields.Clone()
	return id, nil
}

func (s *MemoryStore) Get(ctx context.Context, c Collection, id string) (Record, error) {
	const op = "memory get"
	if err := ctxErr(ctx, op); err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(op); err != nil {
		return Record{}, err
	}
	f, ok := s.data[c][id]
	if !ok {
		return Record{}, Errorf(NotFound, op, "%s/%s not found", c, id)
	}
	return Record{ID: id, Fields: f.Clone()}, nil
}

func (s *MemoryStore) Merge(ctx context.Context, c Collection, id string, fields Fields) error {
	const op = "memory merge"
	if err := ctxErr(ctx, op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(op); err != nil {
		return err
	}
	current, ok := s.data[c][id]
	if !ok {
		return Errorf(NotFound, op, "%s/%s not found", c, id)
	}
	for k, v := range fields {
		current[k] = cloneValue(v)
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, c Collection, id string) error {
	const op = "memory delete"
	if err := ctxErr(ctx, op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(op); err != nil {
		return err
	}
	if _, ok := s.data[c][id]; !ok {
		return Errorf(NotFound, op, "%s/%s not found", c, id)
	}
	delete(s.data[c], id)
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, c Collection, q Query) ([]Record, error) {
	const op = "memory find"
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(op); err != nil {
		return nil, err
	}

	records := make([]Record, 0)
	for id, f := range s.data[c] {
		if q.OrderBy != "" && !f.Has(q.OrderBy) {
			continue
		}
		if !matches(f, q.Where) {
			continue
		}
		records = append(records, Record{ID: id, Fields: f})
	}

	sort.Slice(records, func(i, j int) bool {
		if q.OrderBy == "" {
			return records[i].ID < records[j].ID
		}
		return compareKeys(records[i].Fields[q.OrderBy], records[i].ID, records[j].Fields[q.OrderBy], records[j].ID) < 0
	})

	if q.OrderBy != "" {
		records = clip(records, q)
	}

	if q.Limit > 0 && len(records) > q.Limit {
		if q.LimitToLast {
			records = records[len(records)-q.Limit:]
		} else {
			records = records[:q.Limit]
		}
	}

	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = Record{ID: r.ID, Fields: r.Fields.Clone()}
	}
	return out, nil
}

// clip drops sorted records outside the inclusive [StartAt, EndAt] range.
func clip(records []Record, q Query) []Record {
	lo, hi := 0, len(records)
	if q.StartAt != nil {
		lo = sort.Search(len(records), func(i int) bool {
			return compareKeys(records[i].Fields[q.OrderBy], records[i].ID, q.StartAt.Value, q.StartAt.ID) >= 0
		})
	}
	if q.EndAt != nil {
		hi = sort.Search(len(records), func(i int) bool {
			return compareKeys(records[i].Fields[q.OrderBy], records[i].ID, q.EndAt.Value, q.EndAt.ID) > 0
		})
	}
	if lo >= hi {
		return records[:0]
	}
	return records[lo:hi]
}

func (s *MemoryStore) Commit(ctx context.Context, b *Batch) error {
	const op = "memory commit"
	if b.Len() == 0 {
		return nil
	}
	if err := ctxErr(ctx, op); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(op); err != nil {
		return err
	}
	for _, u := range b.Updates() {
		if _, ok := s.data[u.Collection][u.ID]; !ok {
			return Errorf(NotFound, op, "%s/%s not found", u.Collection, u.ID)
		}
	}
	for _, u := range b.Updates() {
		current := s.data[u.Collection][u.ID]
		for k, v := range u.Fields {
			current[k] = cloneValue(v)
		}
	}
	return nil
}

// HealthCheck fails once the store is closed.
func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("memory store is closed")
	}
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
