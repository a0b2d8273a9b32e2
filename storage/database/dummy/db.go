package dummydb

import (
	"sync"
	"time"

	"github.com/trezcool/schoolgate/core"
	"github.com/trezcool/schoolgate/core/profile"
)

var NowFunc = func() time.Time { return time.Now().UTC() } // mockable

type (
	// DB is an in-memory stand-in for the remote document store.
	DB struct {
		profiles *profileTable
		docs     *documentTables
	}

	profileTable struct {
		sync.RWMutex
		table map[string]*profile.Profile
	}

	documentTables struct {
		sync.RWMutex
		tables map[string]map[string]*core.Document // {collection: {id: doc}}
	}
)

func Open() (*DB, error) {
	db := &DB{
		profiles: &profileTable{table: make(map[string]*profile.Profile)},
		docs:     &documentTables{tables: make(map[string]map[string]*core.Document)},
	}
	return db, nil
}

func now() time.Time { return NowFunc().UTC() }
