package remote

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/models"
	"github.com/google/uuid"
)

// ErrOffline is the cause reported by Memory while it is switched off.
var ErrOffline = errors.New("memory backend switched off")

type memRecord struct {
	seq uint64
	doc models.Document
}

type memWatcher struct {
	coll models.Collection
	q    Query
	fn   func([]models.Document)
}

// Memory is an in-process Store. SetAvailable(false) makes every call fail
// with common.ErrRemoteUnavailable, which is how outages are simulated.
type Memory struct {
	mu       sync.Mutex
	data     map[models.Collection]map[string]*memRecord
	seq      uint64
	watchers map[uint64]*memWatcher
	wseq     uint64
	down     atomic.Bool
	calls    atomic.Int64
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		data:     make(map[models.Collection]map[string]*memRecord),
		watchers: make(map[uint64]*memWatcher),
	}
}

// SetAvailable switches the simulated connection on or off.
func (m *Memory) SetAvailable(ok bool) { m.down.Store(!ok) }

// Calls counts operations attempted against the backend.
func (m *Memory) Calls() int64 { return m.calls.Load() }

func (m *Memory) check(op string) error {
	m.calls.Add(1)
	if m.down.Load() {
		return unavailable(op, ErrOffline)
	}
	return nil
}

func (m *Memory) Create(ctx context.Context, coll models.Collection, doc models.Document) (string, error) {
	if err := m.check("create"); err != nil {
		return "", err
	}
	if err := validate(coll, Query{}); err != nil {
		return "", err
	}
	stored, err := normalize(doc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	id := stored.ID()
	if id == "" {
		id = uuid.NewString()
		stored[models.AttrID] = id
	}

	m.mu.Lock()
	m.put(coll, id, stored)
	m.mu.Unlock()

	m.notify(coll)
	return id, nil
}

func (m *Memory) Get(ctx context.Context, coll models.Collection, id string) (models.Document, error) {
	if err := m.check("get"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.data[coll][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", common.ErrNotFound, coll, id)
	}
	return rec.doc.Clone(), nil
}

func (m *Memory) Merge(ctx context.Context, coll models.Collection, id string, doc models.Document) error {
	if err := m.check("merge"); err != nil {
		return err
	}
	if err := validate(coll, Query{}); err != nil {
		return err
	}
	patch, err := normalize(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	m.mu.Lock()
	merged := patch
	if rec, ok := m.data[coll][id]; ok {
		merged = rec.doc.Merge(patch)
	}
	merged[models.AttrID] = id
	m.put(coll, id, merged)
	m.mu.Unlock()

	m.notify(coll)
	return nil
}

func (m *Memory) Delete(ctx context.Context, coll models.Collection, id string) error {
	if err := m.check("delete"); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.data[coll], id)
	m.mu.Unlock()

	m.notify(coll)
	return nil
}

func (m *Memory) DeleteBatch(ctx context.Context, coll models.Collection, ids []string) error {
	if err := m.check("delete batch"); err != nil {
		return err
	}
	m.mu.Lock()
	for _, id := range ids {
		delete(m.data[coll], id)
	}
	m.mu.Unlock()

	m.notify(coll)
	return nil
}

func (m *Memory) Query(ctx context.Context, coll models.Collection, q Query) ([]models.Document, error) {
	if err := m.check("query"); err != nil {
		return nil, err
	}
	if err := validate(coll, q); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run(coll, q), nil
}

func (m *Memory) Watch(ctx context.Context, coll models.Collection, q Query, fn func([]models.Document)) (func(), error) {
	if err := m.check("watch"); err != nil {
		return nil, err
	}
	if err := validate(coll, q); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.wseq++
	key := m.wseq
	m.watchers[key] = &memWatcher{coll: coll, q: q, fn: fn}
	initial := m.run(coll, q)
	m.mu.Unlock()

	fn(initial)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers, key)
			m.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
	return stop, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return m.check("ping")
}

func (m *Memory) Close() error { return nil }

// put must be called with mu held.
func (m *Memory) put(coll models.Collection, id string, doc models.Document) {
	recs, ok := m.data[coll]
	if !ok {
		recs = make(map[string]*memRecord)
		m.data[coll] = recs
	}
	if rec, ok := recs[id]; ok {
		rec.doc = doc
		return
	}
	m.seq++
	recs[id] = &memRecord{seq: m.seq, doc: doc}
}

// run must be called with mu held.
func (m *Memory) run(coll models.Collection, q Query) []models.Document {
	recs := make([]*memRecord, 0, len(m.data[coll]))
	for _, rec := range m.data[coll] {
		if matches(rec.doc, q.Filters) {
			recs = append(recs, rec)
		}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if q.OrderBy == "" {
			return recs[i].seq < recs[j].seq
		}
		c := compare(recs[i].doc[q.OrderBy], recs[j].doc[q.OrderBy])
		if c == 0 && q.Desc {
			return recs[i].seq > recs[j].seq
		}
		if c == 0 {
			return recs[i].seq < recs[j].seq
		}
		if q.Desc {
			return c > 0
		}
		return c < 0
	})

	if q.Limit > 0 && len(recs) > q.Limit {
		recs = recs[:q.Limit]
	}

	out := make([]models.Document, len(recs))
	for i, rec := range recs {
		out[i] = rec.doc.Clone()
	}
	return out
}

func (m *Memory) notify(coll models.Collection) {
	type delivery struct {
		fn   func([]models.Document)
		docs []models.Document
	}

	m.mu.Lock()
	var pending []delivery
	for _, w := range m.watchers {
		if w.coll == coll {
			pending = append(pending, delivery{fn: w.fn, docs: m.run(coll, w.q)})
		}
	}
	m.mu.Unlock()

	for _, d := range pending {
		d.fn(d.docs)
	}
}

func matches(doc models.Document, filters []Filter) bool {
	for _, f := range filters {
		v, ok := doc[f.Attr]
		if !ok || !reflect.DeepEqual(v, normalizeValue(f.Value)) {
			return false
		}
	}
	return true
}

func compare(a, b any) int {
	switch av := a.(type) {
	case string:
		bv, _ := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case float64:
		bv, _ := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case nil:
		if b == nil {
			return 0
		}
		return -1
	default:
		return 0
	}
}
