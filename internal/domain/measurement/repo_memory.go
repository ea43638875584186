package measurement

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// extractionRepoMemory keeps extractions in process memory, newest last.
type extractionRepoMemory struct {
	mu    sync.RWMutex
	items []*Extraction
	byID  map[uuid.UUID]*Extraction
}

func NewExtractionRepoMemory() ExtractionRepository {
	return &extractionRepoMemory{byID: make(map[uuid.UUID]*Extraction)}
}

func (r *extractionRepoMemory) Create(_ context.Context, e *Extraction) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	stored := *e
	stored.Values = e.Values.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, &stored)
	r.byID[stored.ID] = &stored
	return nil
}

func (r *extractionRepoMemory) GetByID(_ context.Context, id uuid.UUID) (*Extraction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyExtraction(e), nil
}

func (r *extractionRepoMemory) List(ctx context.Context, limit, offset int) ([]*Extraction, int, error) {
	return r.filter(func(*Extraction) bool { return true }, limit, offset), r.count(nil), nil
}

func (r *extractionRepoMemory) ListByInstance(ctx context.Context, instanceID string, limit, offset int) ([]*Extraction, int, error) {
	match := func(e *Extraction) bool { return e.InstanceID == instanceID }
	return r.filter(match, limit, offset), r.count(match), nil
}

func (r *extractionRepoMemory) count(match func(*Extraction) bool) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if match == nil {
		return len(r.items)
	}
	n := 0
	for _, e := range r.items {
		if match(e) {
			n++
		}
	}
	return n
}

// filter walks newest first.
func (r *extractionRepoMemory) filter(match func(*Extraction) bool, limit, offset int) []*Extraction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Extraction
	skipped := 0
	for i := len(r.items) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.items[i]
		if !match(e) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, copyExtraction(e))
	}
	return out
}

func (r *extractionRepoMemory) Ping(context.Context) error { return nil }

func copyExtraction(e *Extraction) *Extraction {
	c := *e
	c.Values = e.Values.Clone()
	return &c
}
