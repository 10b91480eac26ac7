package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Collection names used by the application.
const (
	CollectionProfiles  = "profiles"
	CollectionUsernames = "usernames"
	CollectionContacts  = "contacts"
	CollectionSignals   = "signals"
)

type serverTimestamp struct{}

// ServerTimestamp is a field value that the store replaces with its own clock at write time.
var ServerTimestamp any = serverTimestamp{}

// Fields is the body of a document.
type Fields map[string]any

// Document is one keyed record of a collection.
type Document struct {
	ID     string
	Fields Fields
}

// FilterOp is the comparison applied by a Filter.
type FilterOp string

const (
	OpEq            FilterOp = "=="
	OpArrayContains FilterOp = "array-contains"
)

// Filter restricts a query to documents whose Field matches Value.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// Query selects documents of a collection. All filters must match.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
}

// Where returns a copy of q with an equality filter appended.
func (q Query) Where(field string, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: OpEq, Value: value})
	return q
}

// WhereContains returns a copy of q with an array-contains filter appended.
func (q Query) WhereContains(field string, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: OpArrayContains, Value: value})
	return q
}

// Order returns a copy of q ordered by field.
func (q Query) Order(field string, desc bool) Query {
	q.OrderBy = field
	q.Desc = desc
	return q
}

func (q Query) String() string {
	parts := make([]string, 0, len(q.Filters)+1)
	for _, f := range q.Filters {
		parts = append(parts, fmt.Sprintf("%s %s %v", f.Field, f.Op, f.Value))
	}
	if q.OrderBy != "" {
		dir := "asc"
		if q.Desc {
			dir = "desc"
		}
		parts = append(parts, "order by "+q.OrderBy+" "+dir)
	}
	return strings.Join(parts, ", ")
}

// OpKind is the kind of a batched write.
type OpKind int

const (
	OpCreate OpKind = iota
	OpUpdate
	OpDelete
)

// Op is one write of an atomic batch.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Fields     Fields
}

// ChangeKind tells how a document changed relative to the previous snapshot.
type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is a single document change inside a Snapshot.
type Change struct {
	Kind     ChangeKind
	Document Document
}

// Snapshot is delivered to a subscriber. The first one a subscriber sees carries every
// matching document as Added; Initial is set on it.
type Snapshot struct {
	Initial bool
	Changes []Change
}

// Subscription is the handle of a live listener. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a plain function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() { f() }

// Store is the document store the domain services are written against.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	// Create fails with apperrors.ErrAlreadyExists when id is taken. An empty id asks the
	// store to allocate one.
	Create(ctx context.Context, collection, id string, fields Fields) (string, error)
	Update(ctx context.Context, collection, id string, fields Fields) error
	Delete(ctx context.Context, collection, id string) error
	// Batch applies every op or none of them.
	Batch(ctx context.Context, ops []Op) error
	Subscribe(ctx context.Context, collection string, q Query, fn func(Snapshot)) (Subscription, error)
	Close() error
}

// Matches reports whether fields satisfy every filter of q.
func Matches(fields Fields, q Query) bool {
	for _, f := range q.Filters {
		v, ok := fields[f.Field]
		if !ok {
			return false
		}
		switch f.Op {
		case OpEq:
			if !equalValues(v, f.Value) {
				return false
			}
		case OpArrayContains:
			if !containsValue(v, f.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// SortDocuments orders docs by q.OrderBy. Documents missing the field sort last.
func SortDocuments(docs []Document, q Query) {
	if q.OrderBy == "" {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i].Fields[q.OrderBy], docs[j].Fields[q.OrderBy]
		if a == nil || b == nil {
			return a != nil
		}
		c := compareValues(a, b)
		if q.Desc {
			return c > 0
		}
		return c < 0
	})
}

func equalValues(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	default:
		return fmt.Sprint(a) == fmt.Sprint(b)
	}
}

func containsValue(arr, v any) bool {
	switch items := arr.(type) {
	case []string:
		for _, item := range items {
			if equalValues(item, v) {
				return true
			}
		}
	case []any:
		for _, item := range items {
			if equalValues(item, v) {
				return true
			}
		}
	}
	return false
}

func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case int64:
		if bv, ok := b.(int64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
