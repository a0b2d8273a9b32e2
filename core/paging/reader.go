package paging

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolgate/core"
)

var (
	ErrFetchAlreadyInFlight = errors.New("a fetch is already in flight")
	// ErrDiscarded is returned for a fetch that completed after its reader was discarded.
	ErrDiscarded = errors.New("reader discarded")

	errInvalidDirection = errors.New("invalid direction")
	errInvalidPageSize  = errors.New("page size must be positive")
	errMissingStore     = errors.New("missing document store")
)

type Direction int

const (
	First Direction = iota
	Next
	Prev
)

var directionNames = map[Direction]string{First: "first", Next: "next", Prev: "prev"}

func (d Direction) String() string {
	if name, ok := directionNames[d]; ok {
		return name
	}
	return "unknown"
}

// ParseDirection parses first, next or prev. The empty string means First.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return First, nil
	case "next":
		return Next, nil
	case "prev", "previous":
		return Prev, nil
	}
	return First, errors.Wrap(errInvalidDirection, s)
}

type (
	// Querier is the part of core.DocumentStore the reader needs.
	Querier interface {
		Query(ctx context.Context, collection string, ordering core.DBOrdering, limit int, startAfter core.Cursor) (core.QueryResult, error)
	}

	// Query describes what a Reader pages through.
	// Filter, if set, is applied to each fetched page, so filtered pages may hold fewer than PageSize rows.
	Query struct {
		Collection string
		PageSize   int
		Filter     func(core.Document) bool
	}

	Result struct {
		Page    int             `json:"page"`
		Rows    []core.Document `json:"rows"`
		HasNext bool            `json:"has_next"`
		HasPrev bool            `json:"has_prev"`
	}

	// Reader pages through a collection ordered by createdAt descending.
	// At most one store fetch is in flight at any time; Prev is always answered from the cache.
	Reader struct {
		store   Querier
		query   Query
		metrics core.Metrics

		mu         sync.Mutex
		inFlight   bool
		generation uint64
		pageNumber int // 0 until the first page is loaded
		cache      *Cache
	}
)

var ordering = core.DBOrdering{Field: core.FieldCreatedAt, Ascending: false}

func NewReader(store Querier, q Query, metrics core.Metrics) (*Reader, error) {
	if store == nil {
		return nil, errMissingStore
	}
	if q.PageSize <= 0 {
		return nil, errInvalidPageSize
	}
	if metrics == nil {
		metrics = core.NopMetrics()
	}
	return &Reader{
		store:   store,
		query:   q,
		metrics: metrics,
		cache:   NewCache(),
	}, nil
}

func (r *Reader) Query() Query { return r.query }

// PageNumber returns the current page number, 0 if nothing was loaded yet.
func (r *Reader) PageNumber() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pageNumber
}

// CachedPages returns the number of pages held in the cache.
func (r *Reader) CachedPages() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Len()
}

// Fetch moves the reader in direction dir and returns the resulting page.
// Next without a stored end cursor and Prev on page 1 are no-ops returning the current page.
// A call made while another fetch is pending fails with ErrFetchAlreadyInFlight.
func (r *Reader) Fetch(ctx context.Context, dir Direction) (Result, error) {
	r.mu.Lock()
	if r.inFlight {
		r.mu.Unlock()
		r.metrics.FetchRejected(r.query.Collection)
		return Result{}, ErrFetchAlreadyInFlight
	}

	var (
		target     int
		startAfter core.Cursor
	)
	switch dir {
	case First:
		r.cache.Reset()
		r.pageNumber = 0
		target = 1
	case Next:
		cur, ok := r.cache.Get(r.pageNumber)
		if !ok || !cur.HasNext() {
			defer r.mu.Unlock()
			return r.current(), nil
		}
		if next, ok := r.cache.Get(r.pageNumber + 1); ok {
			defer r.mu.Unlock()
			r.pageNumber = next.Number
			r.metrics.PageFetched(r.query.Collection, dir.String(), true)
			return r.current(), nil
		}
		target, startAfter = r.pageNumber+1, cur.EndCursor
	case Prev:
		defer r.mu.Unlock()
		if r.pageNumber <= 1 {
			return r.current(), nil
		}
		if _, ok := r.cache.Get(r.pageNumber - 1); ok {
			r.pageNumber--
			r.metrics.PageFetched(r.query.Collection, dir.String(), true)
		}
		return r.current(), nil
	default:
		r.mu.Unlock()
		return Result{}, errInvalidDirection
	}

	r.inFlight = true
	gen := r.generation
	r.mu.Unlock()

	page, err := r.fetchPage(ctx, target, startAfter)

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.generation {
		return Result{}, ErrDiscarded
	}
	r.inFlight = false
	if err != nil {
		return Result{}, err
	}
	r.cache.Put(page)
	r.pageNumber = page.Number
	r.metrics.PageFetched(r.query.Collection, dir.String(), false)
	return r.current(), nil
}

// fetchPage asks for one row more than the page size to learn whether a next page exists.
func (r *Reader) fetchPage(ctx context.Context, number int, startAfter core.Cursor) (Page, error) {
	res, err := r.store.Query(ctx, r.query.Collection, ordering, r.query.PageSize+1, startAfter)
	if err != nil {
		return Page{}, errors.Wrapf(err, "fetching %s page %d", r.query.Collection, number)
	}

	rows := res.Rows
	page := Page{Number: number}
	if len(rows) > r.query.PageSize {
		rows = rows[:r.query.PageSize]
		page.EndCursor = rows[len(rows)-1].Cursor
	}
	if r.query.Filter != nil {
		filtered := make([]core.Document, 0, len(rows))
		for _, row := range rows {
			if r.query.Filter(row) {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}
	page.Rows = rows
	return page, nil
}

// current must be called with r.mu held.
func (r *Reader) current() Result {
	res := Result{Page: r.pageNumber, Rows: []core.Document{}}
	if p, ok := r.cache.Get(r.pageNumber); ok {
		res.Rows = p.Rows
		res.HasNext = p.HasNext()
	}
	res.HasPrev = r.pageNumber > 1
	return res
}

// Discard drops every cached page. Results of fetches still pending are ignored.
func (r *Reader) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.inFlight = false
	r.pageNumber = 0
	r.cache.Reset()
}
