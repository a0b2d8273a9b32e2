package dummydb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolgate/core"
)

var errUnsupportedOrdering = errors.New("only createdAt and updatedAt orderings are supported")

type documentStore struct {
	db *documentTables
}

var _ core.DocumentStore = (*documentStore)(nil) // interface compliance check

func NewDocumentStore(db *DB) core.DocumentStore {
	return &documentStore{db: db.docs}
}

func (store *documentStore) table(collection string) map[string]*core.Document {
	t, ok := store.db.tables[collection]
	if !ok {
		t = make(map[string]*core.Document)
		store.db.tables[collection] = t
	}
	return t
}

func copyDoc(d *core.Document) core.Document {
	data := make(map[string]interface{}, len(d.Data))
	for k, v := range d.Data {
		data[k] = v
	}
	doc := *d
	doc.Data = data
	return doc
}

func orderKey(d core.Document, field string) time.Time {
	if field == core.FieldUpdatedAt {
		return d.UpdatedAt
	}
	return d.CreatedAt
}

func (store *documentStore) Query(
	_ context.Context,
	collection string,
	ordering core.DBOrdering,
	limit int,
	startAfter core.Cursor,
) (core.QueryResult, error) {
	if ordering.Field != core.FieldCreatedAt && ordering.Field != core.FieldUpdatedAt {
		return core.QueryResult{}, errors.Wrap(errUnsupportedOrdering, ordering.String())
	}

	var (
		afterTs time.Time
		afterID string
	)
	if startAfter != "" {
		var err error
		if afterTs, afterID, err = core.DecodeCursor(startAfter); err != nil {
			return core.QueryResult{}, errors.Wrap(err, "decoding cursor")
		}
	}

	store.db.RLock()
	docs := make([]core.Document, 0, len(store.db.tables[collection]))
	for _, d := range store.db.tables[collection] {
		docs = append(docs, copyDoc(d))
	}
	store.db.RUnlock()

	// less reports whether (ts, id) comes before (ts2, id2) in the requested order
	less := func(ts time.Time, id string, ts2 time.Time, id2 string) bool {
		if ts.Equal(ts2) {
			if ordering.Ascending {
				return id < id2
			}
			return id > id2
		}
		if ordering.Ascending {
			return ts.Before(ts2)
		}
		return ts.After(ts2)
	}
	sort.Slice(docs, func(i, j int) bool {
		return less(orderKey(docs[i], ordering.Field), docs[i].ID, orderKey(docs[j], ordering.Field), docs[j].ID)
	})

	res := core.QueryResult{Rows: make([]core.Document, 0, limit)}
	for _, d := range docs {
		if startAfter != "" && !less(afterTs, afterID, orderKey(d, ordering.Field), d.ID) {
			continue
		}
		if limit > 0 && len(res.Rows) >= limit {
			break
		}
		d.Cursor = core.EncodeCursor(orderKey(d, ordering.Field), d.ID)
		res.Rows = append(res.Rows, d)
	}
	if n := len(res.Rows); n > 0 {
		res.LastCursor = res.Rows[n-1].Cursor
	}
	return res, nil
}

func (store *documentStore) GetByID(_ context.Context, collection, id string) (core.Document, error) {
	store.db.RLock()
	defer store.db.RUnlock()

	if d, ok := store.db.tables[collection][id]; ok {
		doc := copyDoc(d)
		doc.Cursor = core.EncodeCursor(doc.CreatedAt, doc.ID)
		return doc, nil
	}
	return core.Document{}, core.ErrDocumentNotFound
}

func (store *documentStore) Insert(_ context.Context, collection string, payload map[string]interface{}) (string, error) {
	store.db.Lock()
	defer store.db.Unlock()

	ts := now()
	d := &core.Document{
		ID:        uuid.New().String(),
		Data:      make(map[string]interface{}, len(payload)),
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	for k, v := range payload {
		d.Data[k] = v
	}
	store.table(collection)[d.ID] = d
	return d.ID, nil
}

func (store *documentStore) Patch(_ context.Context, collection, id string, partial map[string]interface{}) error {
	store.db.Lock()
	defer store.db.Unlock()

	d, ok := store.db.tables[collection][id]
	if !ok {
		return core.ErrDocumentNotFound
	}
	for k, v := range partial {
		d.Data[k] = v
	}
	d.UpdatedAt = now()
	return nil
}

func (store *documentStore) Remove(_ context.Context, collection, id string) error {
	store.db.Lock()
	defer store.db.Unlock()

	if _, ok := store.db.tables[collection][id]; !ok {
		return core.ErrDocumentNotFound
	}
	delete(store.db.tables[collection], id)
	return nil
}

func (store *documentStore) QueryWhere(_ context.Context, collection string, filters []core.Filter) ([]core.Document, error) {
	store.db.RLock()
	defer store.db.RUnlock()

	docs := make([]core.Document, 0)
	for _, d := range store.db.tables[collection] {
		ok, err := matchAll(*d, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			doc := copyDoc(d)
			doc.Cursor = core.EncodeCursor(doc.CreatedAt, doc.ID)
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID > docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

func fieldValue(d core.Document, field string) interface{} {
	switch field {
	case core.FieldID:
		return d.ID
	case core.FieldCreatedAt:
		return d.CreatedAt
	case core.FieldUpdatedAt:
		return d.UpdatedAt
	}
	return d.Data[field]
}

func matchAll(d core.Document, filters []core.Filter) (bool, error) {
	for _, f := range filters {
		ok, err := match(fieldValue(d, f.Field), f.Op, f.Value)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func match(val interface{}, op string, want interface{}) (bool, error) {
	switch op {
	case "==":
		return equal(val, want), nil
	case "!=":
		return !equal(val, want), nil
	case "in":
		switch vals := want.(type) {
		case []interface{}:
			for _, w := range vals {
				if equal(val, w) {
					return true, nil
				}
			}
		case []string:
			for _, w := range vals {
				if equal(val, w) {
					return true, nil
				}
			}
		default:
			return false, errors.Errorf("operator in expects a list, got %T", want)
		}
		return false, nil
	case "<", "<=", ">", ">=":
		if val == nil {
			return false, nil
		}
		c := compare(val, want)
		switch op {
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	}
	return false, errors.Errorf("unsupported operator %q", op)
}

func equal(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compare(a, b interface{}) int {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			switch {
			case ta.Before(tb):
				return -1
			case ta.After(tb):
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
