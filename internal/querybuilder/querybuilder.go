// Package querybuilder composes parameterised SELECT/INSERT/UPDATE/DELETE
// statements from table/column descriptors, numbering positional
// placeholders ($1, $2, ...) when the statement is built, in the order the
// bound values appear in the rendered SQL. Built statements carry their
// argument slice, ready for database/sql.
package querybuilder

import (
	"fmt"
	"strings"
)

// Comparator is one of the operators a WHERE condition may use.
type Comparator int

const (
	Equal Comparator = iota
	NotEqual
	Like
	In
	Is
)

func (c Comparator) sql() string {
	switch c {
	case NotEqual:
		return "!="
	case Like:
		return "LIKE"
	case In:
		return "IN"
	case Is:
		return "IS"
	default:
		return "="
	}
}

// Condition is one WHERE clause term: "column <op> placeholder-or-literal".
type Condition struct {
	Column     string
	Value      any // bound as a parameter unless Literal is set
	Literal    string
	Comparator Comparator
}

// Join is a single INNER JOIN clause with its ON conditions.
type Join struct {
	Table string
	Conds []Condition
}

// OrderBy is one ORDER BY term.
type OrderBy struct {
	Column    string
	Ascending bool
}

// Field is a SELECT column, optionally aliased.
type Field struct {
	Column string
	As     string
}

// Assignment is a column = value term used by UPDATE and INSERT.
type Assignment struct {
	Column string
	Value  any
}

// Builder accumulates the pieces of one statement; the Build* methods
// allocate the $N placeholders for the values given to Where/WhereOp/Set
// and to bound join conditions, in rendering order.
type Builder struct {
	table   string
	fields  []Field
	joins   []Join
	conds   []Condition
	orderBy []OrderBy
	assigns []Assignment

	args []any
}

// New starts a builder against the given table.
func New(table string) *Builder {
	return &Builder{table: table}
}

// Select adds columns (unaliased) to the SELECT list.
func (b *Builder) Select(columns ...string) *Builder {
	for _, c := range columns {
		b.fields = append(b.fields, Field{Column: c})
	}
	return b
}

// SelectAs adds one aliased column to the SELECT list.
func (b *Builder) SelectAs(column, as string) *Builder {
	b.fields = append(b.fields, Field{Column: column, As: as})
	return b
}

// Join adds an INNER JOIN with the given ON conditions.
func (b *Builder) Join(table string, conds ...Condition) *Builder {
	b.joins = append(b.joins, Join{Table: table, Conds: conds})
	return b
}

// Where adds an equality condition bound to a positional argument.
func (b *Builder) Where(column string, value any) *Builder {
	return b.WhereOp(column, value, Equal)
}

// WhereOp adds a condition using the given comparator, bound to a
// positional argument.
func (b *Builder) WhereOp(column string, value any, cmp Comparator) *Builder {
	b.conds = append(b.conds, Condition{Column: column, Value: value, Comparator: cmp})
	return b
}

// WhereRaw adds a condition whose right-hand side is an unparameterised SQL
// fragment (e.g. "NULL" for IS NULL, or a lower(...) expression).
func (b *Builder) WhereRaw(column, literal string, cmp Comparator) *Builder {
	b.conds = append(b.conds, Condition{Column: column, Literal: literal, Comparator: cmp})
	return b
}

// OrderBy adds one ORDER BY term.
func (b *Builder) OrderBy(column string, ascending bool) *Builder {
	b.orderBy = append(b.orderBy, OrderBy{Column: column, Ascending: ascending})
	return b
}

// Set adds one column assignment for INSERT/UPDATE, bound to a positional
// argument.
func (b *Builder) Set(column string, value any) *Builder {
	b.assigns = append(b.assigns, Assignment{Column: column, Value: value})
	return b
}

func (b *Builder) nextPlaceholder(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *Builder) whereClause() string {
	if len(b.conds) == 0 {
		return ""
	}
	parts := make([]string, len(b.conds))
	for i, c := range b.conds {
		rhs := c.Literal
		if rhs == "" {
			rhs = b.nextPlaceholder(c.Value)
		}
		parts[i] = fmt.Sprintf("%s %s %s", c.Column, c.Comparator.sql(), rhs)
	}
	return " WHERE " + strings.Join(parts, " AND ")
}

func (b *Builder) joinClause() string {
	if len(b.joins) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, j := range b.joins {
		sb.WriteString(" INNER JOIN ")
		sb.WriteString(j.Table)
		sb.WriteString(" ON ")
		onParts := make([]string, len(j.Conds))
		for i, c := range j.Conds {
			rhs := c.Literal
			if rhs == "" {
				rhs = b.nextPlaceholder(c.Value)
			}
			onParts[i] = fmt.Sprintf("%s %s %s", c.Column, c.Comparator.sql(), rhs)
		}
		sb.WriteString(strings.Join(onParts, " AND "))
	}
	return sb.String()
}

func (b *Builder) orderByClause() string {
	if len(b.orderBy) == 0 {
		return ""
	}
	parts := make([]string, len(b.orderBy))
	for i, o := range b.orderBy {
		dir := "ASC"
		if !o.Ascending {
			dir = "DESC"
		}
		parts[i] = fmt.Sprintf("%s %s", o.Column, dir)
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

// Result is a fully built statement plus its positional arguments, ready to
// pass to *sql.DB/*sql.Tx Query/Exec.
type Result struct {
	SQL  string
	Args []any
}

// BuildSelect renders "SELECT <fields> FROM <table> <joins> <where> <order>".
func (b *Builder) BuildSelect() Result {
	cols := make([]string, len(b.fields))
	for i, f := range b.fields {
		if f.As != "" {
			cols[i] = fmt.Sprintf("%s AS %s", f.Column, f.As)
		} else {
			cols[i] = f.Column
		}
	}
	joinSQL := b.joinClause()
	whereSQL := b.whereClause()
	orderSQL := b.orderByClause()
	sql := fmt.Sprintf("SELECT %s FROM %s%s%s%s", strings.Join(cols, ", "), b.table, joinSQL, whereSQL, orderSQL)
	return Result{SQL: sql, Args: b.args}
}

// BuildInsert renders "INSERT INTO <table> (cols) VALUES (placeholders)".
func (b *Builder) BuildInsert() Result {
	cols := make([]string, len(b.assigns))
	placeholders := make([]string, len(b.assigns))
	for i, a := range b.assigns {
		cols[i] = a.Column
		placeholders[i] = b.nextPlaceholder(a.Value)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", b.table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	return Result{SQL: sql, Args: b.args}
}

// BuildInsertReturningID appends RETURNING id to BuildInsert's output.
func (b *Builder) BuildInsertReturningID() Result {
	r := b.BuildInsert()
	r.SQL += " RETURNING id"
	return r
}

// BuildUpdate renders "UPDATE <table> SET col = $n, ... <where>".
func (b *Builder) BuildUpdate() Result {
	sets := make([]string, len(b.assigns))
	for i, a := range b.assigns {
		sets[i] = fmt.Sprintf("%s = %s", a.Column, b.nextPlaceholder(a.Value))
	}
	whereSQL := b.whereClause()
	sql := fmt.Sprintf("UPDATE %s SET %s%s", b.table, strings.Join(sets, ", "), whereSQL)
	return Result{SQL: sql, Args: b.args}
}

// BuildUpdateReturning appends a RETURNING clause of the given columns.
func (b *Builder) BuildUpdateReturning(columns ...string) Result {
	r := b.BuildUpdate()
	r.SQL += " RETURNING " + strings.Join(columns, ", ")
	return r
}

// BuildDelete renders "DELETE FROM <table> <where>".
func (b *Builder) BuildDelete() Result {
	whereSQL := b.whereClause()
	sql := fmt.Sprintf("DELETE FROM %s%s", b.table, whereSQL)
	return Result{SQL: sql, Args: b.args}
}

// SimpleSelect emits "SELECT <columns> FROM <table> WHERE ...<conds>" for
// the given conditions in one call, the short form for plain lookups.
func SimpleSelect(table string, columns []string, conds ...Condition) Result {
	b := New(table).Select(columns...)
	b.conds = conds
	return b.BuildSelect()
}
