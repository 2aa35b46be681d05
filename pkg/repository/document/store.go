package document

import (
	"context"
	"time"
)

// Fields is the field map of a record.
type Fields map[string]any

// Clone returns a copy of f. Slices and nested maps are copied as well.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

// String returns the string value of key, or "" when absent or of another type.
func (f Fields) String(key string) string {
	s, _ := f[key].(string)
	return s
}

// Has reports whether key is present, whatever its value.
func (f Fields) Has(key string) bool {
	_, ok := f[key]
	return ok
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		return map[string]any(Fields(t).Clone())
	case Fields:
		return t.Clone()
	default:
		return v
	}
}

// Record is a stored document and its store assigned id.
type Record struct {
	ID     string
	Fields Fields
}

// Operator is a filter operator.
type Operator string

const (
	OpEqual         Operator = "=="
	OpArrayContains Operator = "array-contains"
)

// Condition filters records on a single field.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

// Equal matches records whose field equals value.
func Equal(field string, value any) Condition {
	return Condition{Field: field, Op: OpEqual, Value: value}
}

// ArrayContains matches records whose array field holds value.
func ArrayContains(field string, value any) Condition {
	return Condition{Field: field, Op: OpArrayContains, Value: value}
}

// Boundary is an inclusive range edge: the order field value of a record and
// its id, which breaks ties.
type Boundary struct {
	ID    string
	Value any
}

// BoundaryOf builds the boundary of r for ordering by field.
func BoundaryOf(r Record, field string) *Boundary {
	return &Boundary{ID: r.ID, Value: r.Fields[field]}
}

// Query describes an ordered range read.
//
// When OrderBy is set, records lacking that field are excluded and results are
// sorted ascending by (OrderBy, id). StartAt and EndAt are inclusive. With
// LimitToLast the Limit records closest to the end of the range are returned,
// still in ascending order.
type Query struct {
	Where       []Condition
	OrderBy     string
	StartAt     *Boundary
	EndAt       *Boundary
	Limit       int
	LimitToLast bool
}

// Validate checks the query is well formed.
func (q Query) Validate() error {
	if q.Limit < 0 {
		return Errorf(InvalidArgument, "query", "negative limit %d", q.Limit)
	}
	if q.OrderBy == "" && (q.StartAt != nil || q.EndAt != nil || q.LimitToLast) {
		return Errorf(InvalidArgument, "query", "range bounds require an order field")
	}
	if q.LimitToLast && q.Limit == 0 {
		return Errorf(InvalidArgument, "query", "limit to last requires a limit")
	}
	for _, c := range q.Where {
		if c.Field == "" {
			return Errorf(InvalidArgument, "query", "condition without field")
		}
		if c.Op != OpEqual && c.Op != OpArrayContains {
			return Errorf(InvalidArgument, "query", "unsupported operator %q", c.Op)
		}
	}
	return nil
}

// Update is one merge inside a Batch.
type Update struct {
	Collection Collection
	ID         string
	Fields     Fields
}

// Batch groups merges that commit atomically: all apply or none do.
type Batch struct {
	updates []Update
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Update queues a merge of fields into the record c/id.
func (b *Batch) Update(c Collection, id string, fields Fields) *Batch {
	b.updates = append(b.updates, Update{Collection: c, ID: id, Fields: fields.Clone()})
	return b
}

// Updates returns the queued merges.
func (b *Batch) Updates() []Update {
	return b.updates
}

// Len returns the number of queued merges.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.updates)
}

// Store is the document database contract used by the catalog.
//
// Get, Merge and Delete return a NotFound error for missing records. Commit
// applies every update of a batch or none; a missing target fails the whole
// batch with NotFound.
type Store interface {
	Create(ctx context.Context, c Collection, fields Fields) (string, error)
	Get(ctx context.Context, c Collection, id string) (Record, error)
	Merge(ctx context.Context, c Collection, id string, fields Fields) error
	Delete(ctx context.Context, c Collection, id string) error
	Find(ctx context.Context, c Collection, q Query) ([]Record, error)
	Commit(ctx context.Context, b *Batch) error
}

// Clock returns the current time. Services take one so tests can pin it.
type Clock func() time.Time

// SystemClock returns time.Now in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}
