// Package remote defines the tabular data store the task manager persists to.
package remote

import (
	"context"
	"errors"
)

// Table names
const (
	Projects       = "projects"
	Tasks          = "tasks"
	ProjectMembers = "project_members"
	Profiles       = "profiles"
	Notifications  = "notifications"
)

var (
	// ErrNotFound is returned when a filter matches no row where one was required
	ErrNotFound = errors.New("remote: not found")
	// ErrConflict is returned when an insert violates a unique constraint
	ErrConflict = errors.New("remote: conflict")
)

// Row is a single record keyed by column name
type Row map[string]any

// Op is a filter comparison
type Op int

const (
	Eq Op = iota
	In
)

// Cond is one column condition. Value is a []string for In.
type Cond struct {
	Column string
	Op     Op
	Value  any
}

// Filter is a conjunction of conditions
type Filter []Cond

// Where starts a filter with an equality condition
func Where(column string, value any) Filter {
	return Filter{{Column: column, Op: Eq, Value: value}}
}

// And adds an equality condition
func (f Filter) And(column string, value any) Filter {
	return append(f, Cond{Column: column, Op: Eq, Value: value})
}

// WhereIn starts a filter with a membership condition
func WhereIn(column string, values []string) Filter {
	return Filter{{Column: column, Op: In, Value: values}}
}

// Order sorts a query result by a column
type Order struct {
	Column string
	Desc   bool
}

// Query selects rows
type Query struct {
	Filter Filter
	Order  []Order
	Limit  int
}

// Store is the remote collaborator. Every call may fail; callers treat
// failures according to the operation's sync policy.
type Store interface {
	Select(ctx context.Context, table string, q Query) ([]Row, error)
	// Insert stores row and returns it as stored, with generated columns filled in
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table string, f Filter, patch Row) error
	Delete(ctx context.Context, table string, f Filter) error
	// Upsert inserts row or replaces the existing row with the same id
	Upsert(ctx context.Context, table string, row Row) (Row, error)
	// Subscribe delivers rows inserted into table that match f until ctx is done
	Subscribe(ctx context.Context, table string, f Filter) (<-chan Row, error)
}
