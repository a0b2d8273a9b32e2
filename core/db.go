package core

import (
	"context"
	"time"
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// Collections served by the document store. Profiles live in "users" behind profile.Repository.
const (
	CollectionUsers      = "users"
	CollectionStudents   = "students"
	CollectionTeachers   = "teachers"
	CollectionClasses    = "classes"
	CollectionSchedule   = "schedule"
	CollectionAttendance = "attendance"
	CollectionGrades     = "grades"
	CollectionFees       = "fees"

	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldID        = "id"
)

var Collections = []string{
	CollectionStudents,
	CollectionTeachers,
	CollectionClasses,
	CollectionSchedule,
	CollectionAttendance,
	CollectionGrades,
	CollectionFees,
}

func IsCollection(name string) bool {
	for _, c := range Collections {
		if c == name {
			return true
		}
	}
	return false
}

// Cursor is an opaque marker identifying a document's position in the createdAt ordering.
// The empty Cursor means "no cursor".
type Cursor string

type (
	Document struct {
		ID        string                 `json:"id"`
		Data      map[string]interface{} `json:"data"`
		CreatedAt time.Time              `json:"created_at"`
		UpdatedAt time.Time              `json:"updated_at"`
		Cursor    Cursor                 `json:"-"`
	}

	QueryResult struct {
		Rows       []Document
		LastCursor Cursor
	}

	// Filter is one (field, op, value) clause of DocumentStore.QueryWhere.
	// Supported ops: ==, !=, <, <=, >, >=, in.
	Filter struct {
		Field string
		Op    string
		Value interface{}
	}

	// DocumentStore is the generic data-access surface of the remote document store.
	// Timestamps are stamped by the store, never by callers.
	DocumentStore interface {
		// Query returns up to limit documents ordered by ordering (ties broken by id in the same direction),
		// starting strictly after startAfter when it is set.
		Query(ctx context.Context, collection string, ordering DBOrdering, limit int, startAfter Cursor) (QueryResult, error)
		GetByID(ctx context.Context, collection, id string) (Document, error)
		Insert(ctx context.Context, collection string, payload map[string]interface{}) (string, error)
		Patch(ctx context.Context, collection, id string, partial map[string]interface{}) error
		Remove(ctx context.Context, collection, id string) error
		QueryWhere(ctx context.Context, collection string, filters []Filter) ([]Document, error)
	}
)

// Field returns the string value of a document field, or "" if it is missing or not a string.
func (d Document) Field(name string) string {
	if name == FieldID {
		return d.ID
	}
	if s, ok := d.Data[name].(string); ok {
		return s
	}
	return ""
}
