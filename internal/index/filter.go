package index

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedFilter is returned for conditions on fields the backend does
// not index, or with a match kind the field does not support.
var ErrUnsupportedFilter = errors.New("unsupported filter")

// Field enumerates the payload fields a filter may constrain.
type Field string

const (
	FieldCategory   Field = "category"
	FieldSourceType Field = "source_type"
	FieldTags       Field = "tags"
)

// MatchKind selects how a condition compares its values.
type MatchKind int

const (
	// MatchEquals requires the field to equal the single value.
	MatchEquals MatchKind = iota
	// MatchAny requires the field (a list) to contain at least one value.
	MatchAny
)

func (k MatchKind) String() string {
	switch k {
	case MatchEquals:
		return "equals"
	case MatchAny:
		return "any"
	default:
		return fmt.Sprintf("MatchKind(%d)", int(k))
	}
}

// Condition is one predicate of a filter.
type Condition struct {
	Field  Field
	Kind   MatchKind
	Values []string
}

// Filter is a conjunction: every condition must hold.
type Filter struct {
	Must []Condition
}

// MatchCategory matches payloads whose category equals v.
func MatchCategory(v string) Condition {
	return Condition{Field: FieldCategory, Kind: MatchEquals, Values: []string{v}}
}

// MatchSourceType matches payloads whose source type equals v.
func MatchSourceType(v string) Condition {
	return Condition{Field: FieldSourceType, Kind: MatchEquals, Values: []string{v}}
}

// MatchAnyTag matches payloads carrying at least one of tags.
func MatchAnyTag(tags ...string) Condition {
	return Condition{Field: FieldTags, Kind: MatchAny, Values: tags}
}

// NewFilter returns a filter over conds, or nil when there are none.
func NewFilter(conds ...Condition) *Filter {
	if len(conds) == 0 {
		return nil
	}
	return &Filter{Must: conds}
}

// Validate checks every condition against the fixed set of indexed fields.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	for _, c := range f.Must {
		if len(c.Values) == 0 {
			return fmt.Errorf("%w: condition on %s has no values", ErrUnsupportedFilter, c.Field)
		}
		switch c.Field {
		case FieldCategory, FieldSourceType:
			if c.Kind != MatchEquals || len(c.Values) != 1 {
				return fmt.Errorf("%w: %s supports a single equality value", ErrUnsupportedFilter, c.Field)
			}
		case FieldTags:
			if c.Kind != MatchAny {
				return fmt.Errorf("%w: tags supports membership matching only", ErrUnsupportedFilter)
			}
		default:
			return fmt.Errorf("%w: field %q is not indexed", ErrUnsupportedFilter, c.Field)
		}
	}
	return nil
}

func (f *Filter) String() string {
	if f == nil || len(f.Must) == 0 {
		return "none"
	}
	parts := make([]string, len(f.Must))
	for i, c := range f.Must {
		parts[i] = fmt.Sprintf("%s %s [%s]", c.Field, c.Kind, strings.Join(c.Values, ","))
	}
	return strings.Join(parts, " AND ")
}

// sqlPredicate renders the filter as SQL over the points table. Tag
// membership is a subquery against point_tags so that the tag index is used.
func (f *Filter) sqlPredicate(collection string) (string, []any) {
	if f == nil {
		return "", nil
	}
	var clauses []string
	var args []any
	for _, c := range f.Must {
		switch c.Field {
		case FieldCategory:
			clauses = append(clauses, "category = ?")
			args = append(args, c.Values[0])
		case FieldSourceType:
			clauses = append(clauses, "source_type = ?")
			args = append(args, c.Values[0])
		case FieldTags:
			clauses = append(clauses, `id IN (SELECT point_id FROM point_tags WHERE collection = ? AND tag IN (?`+
				strings.Repeat(",?", len(c.Values)-1)+`))`)
			args = append(args, collection)
			for _, v := range c.Values {
				args = append(args, v)
			}
		}
	}
	return strings.Join(clauses, " AND "), args
}
