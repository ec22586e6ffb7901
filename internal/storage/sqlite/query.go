package sqlite

import (
	"errors"
	"strings"
)

// ErrNotFound is returned by write operations addressing a row that does not
// exist. Read operations report absence as (nil, nil) instead.
var ErrNotFound = errors.New("not found")

// Conj joins the conditions of a filtered search.
type Conj string

const (
	And Conj = "AND"
	Or  Conj = "OR"
)

// Cond is one equality predicate of a filtered search. Col must be registered
// for the searched table; Value is always a bound parameter.
type Cond struct {
	Col   Column
	Value interface{}
}

// Eq is shorthand for an equality condition.
func Eq(col Column, value interface{}) Cond {
	return Cond{Col: col, Value: value}
}

// buildWhere renders a validated WHERE fragment (with leading space) and its
// bound arguments. No conditions yields an empty fragment.
func buildWhere(t Table, conj Conj, conds []Cond) (string, []interface{}, error) {
	if err := CheckTable(t); err != nil {
		return "", nil, err
	}
	if len(conds) == 0 {
		return "", nil, nil
	}
	if conj != And && conj != Or {
		return "", nil, errors.New("conjunction must be And or Or")
	}

	var sb strings.Builder
	args := make([]interface{}, 0, len(conds))
	sb.WriteString(" WHERE ")
	for i, cond := range conds {
		if err := CheckColumn(t, cond.Col); err != nil {
			return "", nil, err
		}
		if i > 0 {
			sb.WriteString(" ")
			sb.WriteString(string(conj))
			sb.WriteString(" ")
		}
		sb.WriteString(string(cond.Col))
		sb.WriteString(" = ?")
		args = append(args, cond.Value)
	}
	return sb.String(), args, nil
}
