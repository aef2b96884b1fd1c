package vectorindex

import (
	"fmt"
	"strings"
)

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
)

// Condition matches one payload field. Path may be nested with dots
// ("user_metadata.tag"). Range operators compare numerically.
type Condition struct {
	Path  string `json:"path"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// Filter is a boolean conjunction of conditions over point payloads.
type Filter struct {
	Must []Condition `json:"must,omitempty"`
}

// Eq appends an equality condition and returns the filter for chaining.
func (f *Filter) Eq(path string, value any) *Filter {
	f.Must = append(f.Must, Condition{Path: path, Op: OpEq, Value: value})
	return f
}

// Range appends a range condition.
func (f *Filter) Range(path string, op Op, value any) *Filter {
	f.Must = append(f.Must, Condition{Path: path, Op: op, Value: value})
	return f
}

// IsEmpty reports whether the filter has no conditions.
func (f *Filter) IsEmpty() bool {
	return f == nil || len(f.Must) == 0
}

// SQL compiles the filter into a conjunction over the payload jsonb column.
// Returns the WHERE fragment and its positional arguments.
func (f *Filter) SQL() (string, []any, error) {
	if f.IsEmpty() {
		return "", nil, nil
	}

	clauses := make([]string, 0, len(f.Must))
	args := make([]any, 0, len(f.Must))

	for _, cond := range f.Must {
		expr, err := payloadExpr(cond.Path)
		if err != nil {
			return "", nil, err
		}

		switch cond.Op {
		case OpEq:
			clauses = append(clauses, fmt.Sprintf("%s = ?", expr))
			args = append(args, fmt.Sprint(cond.Value))
		case OpGt, OpGte, OpLt, OpLte:
			clauses = append(clauses, fmt.Sprintf("(%s)::numeric %s ?", expr, sqlOp(cond.Op)))
			args = append(args, cond.Value)
		default:
			return "", nil, fmt.Errorf("unsupported filter operator %q", cond.Op)
		}
	}

	return strings.Join(clauses, " AND "), args, nil
}

// payloadExpr builds the jsonb text-extraction expression for a dotted path.
// Path segments are validated so filters can never inject SQL.
func payloadExpr(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty filter path")
	}

	segments := strings.Split(path, ".")
	for _, seg := range segments {
		if seg == "" || !isIdentifier(seg) {
			return "", fmt.Errorf("invalid filter path %q", path)
		}
	}

	if len(segments) == 1 {
		return fmt.Sprintf("payload->>'%s'", segments[0]), nil
	}
	return fmt.Sprintf("payload#>>'{%s}'", strings.Join(segments, ",")), nil
}

func isIdentifier(s string) bool {
	for _, r := range s {
		ok := r == '_' ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return true
}

func sqlOp(op Op) string {
	switch op {
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	}
	return "="
}
