package echoapi

import (
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/trezcool/schoolgate/core"
	"github.com/trezcool/schoolgate/core/access"
	"github.com/trezcool/schoolgate/core/paging"
	"github.com/trezcool/schoolgate/core/profile"
	"github.com/trezcool/schoolgate/core/session"
)

type (
	// registry holds the live sessions. A session idle for longer than the configured timeout expires.
	registry struct {
		c *gocache.Cache
	}

	sessionEntry struct {
		id      string
		machine *session.Machine

		mu      sync.Mutex
		readers map[string]readerEntry // {collection: reader}
	}

	// readerEntry remembers what a reader was built for, so a stale one can be replaced.
	// The row filter of a reader depends on the owner's role.
	readerEntry struct {
		reader    *paging.Reader
		ownerID   string
		ownerRole profile.Role
		pageSize  int
	}
)

func newRegistry(idle time.Duration) *registry {
	c := gocache.New(idle, time.Minute)
	c.OnEvicted(func(_ string, v interface{}) {
		if e, ok := v.(*sessionEntry); ok {
			e.discardReaders()
		}
	})
	return &registry{c: c}
}

func (r *registry) create(m *session.Machine) *sessionEntry {
	e := &sessionEntry{
		id:      uuid.NewString(),
		machine: m,
		readers: make(map[string]readerEntry),
	}
	r.c.SetDefault(e.id, e)
	return e
}

// get returns the session and resets its idle timer.
func (r *registry) get(id string) (*sessionEntry, bool) {
	v, ok := r.c.Get(id)
	if !ok {
		return nil, false
	}
	r.c.SetDefault(id, v)
	return v.(*sessionEntry), true
}

func (r *registry) len() int { return r.c.ItemCount() }

// flush drops every session, discarding their readers.
func (r *registry) flush() {
	for id := range r.c.Items() {
		r.c.Delete(id)
	}
}

// reader returns the reader of collection for owner, replacing the current one
// when it was built for another profile, role or page size.
func (e *sessionEntry) reader(
	store paging.Querier,
	metrics core.Metrics,
	collection string,
	owner profile.Profile,
	pageSize int,
) (*paging.Reader, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if re, ok := e.readers[collection]; ok {
		if re.ownerID == owner.ID && re.ownerRole == owner.Role && re.pageSize == pageSize {
			return re.reader, nil
		}
		re.reader.Discard()
		delete(e.readers, collection)
	}

	q := paging.Query{Collection: collection, PageSize: pageSize, Filter: access.RowFilter(owner, collection)}
	rdr, err := paging.NewReader(store, q, metrics)
	if err != nil {
		return nil, err
	}
	e.readers[collection] = readerEntry{reader: rdr, ownerID: owner.ID, ownerRole: owner.Role, pageSize: pageSize}
	return rdr, nil
}

// discardReaders drops every reader; results of their pending fetches are ignored.
func (e *sessionEntry) discardReaders() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for collection, re := range e.readers {
		re.reader.Discard()
		delete(e.readers, collection)
	}
}
