package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolgate/core"
)

var (
	errUnsupportedOrdering = errors.New("only createdAt and updatedAt orderings are supported")
	errUnsupportedOperator = errors.New("unsupported filter operator")
)

type (
	documentRow struct {
		ID        string    `db:"id"`
		Data      []byte    `db:"data"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	// documentStore keeps every collection in the jsonb "documents" table.
	documentStore struct {
		db *sqlx.DB
	}
)

var _ core.DocumentStore = (*documentStore)(nil) // interface compliance check

func NewDocumentStore(db *sqlx.DB) core.DocumentStore {
	return &documentStore{db: db}
}

var orderColumns = map[string]string{
	core.FieldCreatedAt: "created_at",
	core.FieldUpdatedAt: "updated_at",
}

func (r documentRow) document(orderBy string) (core.Document, error) {
	doc := core.Document{
		ID:        r.ID,
		Data:      make(map[string]interface{}),
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &doc.Data); err != nil {
			return core.Document{}, errors.Wrap(err, "decoding document data")
		}
	}
	ts := doc.CreatedAt
	if orderBy == core.FieldUpdatedAt {
		ts = doc.UpdatedAt
	}
	doc.Cursor = core.EncodeCursor(ts, doc.ID)
	return doc, nil
}

// querySQL builds the ordered page query. Rows come strictly after the (timestamp, id) of startAfter.
func querySQL(collection string, ordering core.DBOrdering, limit int, startAfter core.Cursor) (string, []interface{}, error) {
	col, ok := orderColumns[ordering.Field]
	if !ok {
		return "", nil, errors.Wrap(errUnsupportedOrdering, ordering.String())
	}
	args := []interface{}{collection}
	q := "SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1"

	if startAfter != "" {
		ts, id, err := core.DecodeCursor(startAfter)
		if err != nil {
			return "", nil, errors.Wrap(err, "decoding cursor")
		}
		cmp := "<"
		if ordering.Ascending {
			cmp = ">"
		}
		args = append(args, ts, id)
		q += fmt.Sprintf(" AND (%s, id) %s ($2, $3::uuid)", col, cmp)
	}

	dir := "DESC"
	if ordering.Ascending {
		dir = "ASC"
	}
	q += fmt.Sprintf(" ORDER BY %s %s, id %s", col, dir, dir)
	if limit > 0 {
		args = append(args, limit)
		q += " LIMIT $" + strconv.Itoa(len(args))
	}
	return q, args, nil
}

func (store *documentStore) Query(
	ctx context.Context,
	collection string,
	ordering core.DBOrdering,
	limit int,
	startAfter core.Cursor,
) (core.QueryResult, error) {
	q, args, err := querySQL(collection, ordering, limit, startAfter)
	if err != nil {
		return core.QueryResult{}, err
	}

	var rows []documentRow
	if err = store.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return core.QueryResult{}, trapErr(err, "querying "+collection)
	}

	res := core.QueryResult{Rows: make([]core.Document, 0, len(rows))}
	for _, r := range rows {
		doc, err := r.document(ordering.Field)
		if err != nil {
			return core.QueryResult{}, err
		}
		res.Rows = append(res.Rows, doc)
	}
	if n := len(res.Rows); n > 0 {
		res.LastCursor = res.Rows[n-1].Cursor
	}
	return res, nil
}

func (store *documentStore) GetByID(ctx context.Context, collection, id string) (core.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return core.Document{}, core.ErrDocumentNotFound
	}
	var r documentRow
	err := store.db.GetContext(ctx, &r,
		"SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1 AND id = $2",
		collection, id,
	)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return core.Document{}, core.ErrDocumentNotFound
		}
		return core.Document{}, trapErr(err, "finding document")
	}
	return r.document(core.FieldCreatedAt)
}

func (store *documentStore) Insert(ctx context.Context, collection string, payload map[string]interface{}) (string, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "encoding document data")
	}
	id := uuid.New().String()
	_, err = store.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)",
		collection, id, data,
	)
	if err != nil {
		return "", trapErr(err, "inserting document")
	}
	return id, nil
}

func (store *documentStore) Patch(ctx context.Context, collection, id string, partial map[string]interface{}) error {
	if _, err := uuid.Parse(id); err != nil {
		return core.ErrDocumentNotFound
	}
	if partial == nil {
		partial = map[string]interface{}{}
	}
	data, err := json.Marshal(partial)
	if err != nil {
		return errors.Wrap(err, "encoding document data")
	}
	res, err := store.db.ExecContext(ctx,
		"UPDATE documents SET data = data || $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2",
		collection, id, data,
	)
	if err != nil {
		return trapErr(err, "patching document")
	}
	return expectOneRow(res)
}

func (store *documentStore) Remove(ctx context.Context, collection, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return core.ErrDocumentNotFound
	}
	res, err := store.db.ExecContext(ctx, "DELETE FROM documents WHERE collection = $1 AND id = $2", collection, id)
	if err != nil {
		return trapErr(err, "removing document")
	}
	return expectOneRow(res)
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func expectOneRow(res rowsAffecter) error {
	n, err := res.RowsAffected()
	if err != nil {
		return trapErr(err, "counting affected rows")
	}
	if n == 0 {
		return core.ErrDocumentNotFound
	}
	return nil
}

// filterSQL translates one filter clause, appending its parameters to args.
func filterSQL(f core.Filter, args []interface{}) (string, []interface{}, error) {
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	var (
		expr  string
		value = f.Value
	)
	switch f.Field {
	case core.FieldID:
		expr = "id::text"
	case core.FieldCreatedAt:
		expr = "created_at"
	case core.FieldUpdatedAt:
		expr = "updated_at"
	default:
		switch v := f.Value.(type) {
		case int, int32, int64, float32, float64:
			expr = "(data->>" + arg(f.Field) + ")::numeric"
		case time.Time:
			expr = "(data->>" + arg(f.Field) + ")::timestamptz"
		default:
			expr = "data->>" + arg(f.Field)
			if f.Op != "in" && v != nil {
				value = fmt.Sprint(v)
			}
		}
	}

	switch f.Op {
	case "==":
		return expr + " IS NOT DISTINCT FROM " + arg(value), args, nil
	case "!=":
		return expr + " IS DISTINCT FROM " + arg(value), args, nil
	case "<", "<=", ">", ">=":
		return expr + " " + f.Op + " " + arg(value), args, nil
	case "in":
		var vals []string
		switch list := f.Value.(type) {
		case []string:
			vals = list
		case []interface{}:
			for _, v := range list {
				vals = append(vals, fmt.Sprint(v))
			}
		default:
			return "", nil, errors.Errorf("operator in expects a list, got %T", f.Value)
		}
		return expr + " = ANY(" + arg(pq.Array(vals)) + ")", args, nil
	}
	return "", nil, errors.Wrap(errUnsupportedOperator, f.Op)
}

func queryWhereSQL(collection string, filters []core.Filter) (string, []interface{}, error) {
	args := []interface{}{collection}
	q := "SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1"
	for _, f := range filters {
		var (
			clause string
			err    error
		)
		if clause, args, err = filterSQL(f, args); err != nil {
			return "", nil, err
		}
		q += " AND " + clause
	}
	q += " ORDER BY created_at DESC, id DESC"
	return q, args, nil
}

func (store *documentStore) QueryWhere(ctx context.Context, collection string, filters []core.Filter) ([]core.Document, error) {
	q, args, err := queryWhereSQL(collection, filters)
	if err != nil {
		return nil, err
	}
	var rows []documentRow
	if err = store.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, trapErr(err, "querying "+collection)
	}
	docs := make([]core.Document, 0, len(rows))
	for _, r := range rows {
		doc, err := r.document(core.FieldCreatedAt)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
