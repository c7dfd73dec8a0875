package db

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
)

// Scanner is implemented by entities whose persisted fields can be
// enumerated for scanning and statement parameters.
type Scanner interface {
	Scan() []any
}

// Repository provides generic persistence for one entity type in one
// table. Column names come from "db" struct-tags on T; all tagged
// fields must be returned by t.Scan(), in declaration order.
type Repository[T Scanner] struct {
	conn  Tx
	Table string

	// Conflict key columns used by Upsert.
	key []string

	// Optional column stamped with now() on every upsert.
	Touch string

	// List of database column names for T.
	cols []string

	// Parametrized string inserted into VALUES-expressions with the
	// appropriate number of parameters. The number of struct fields for a
	// given Repository[T] is constant, such that this can be calculated
	// during creation.
	values string
}

func makeRepository[T Scanner](conn Tx, tbl string, key ...string) Repository[T] {
	// Determine database columns from struct tags
	rt := reflect.TypeFor[T]().Elem()
	cols := make([]string, 0, rt.NumField())

	for i := range rt.NumField() {
		f := rt.Field(i)
		if v, ok := f.Tag.Lookup("db"); ok {
			cols = append(cols, v)
		}
	}

	vals := make([]string, len(cols))
	for i := range cols {
		vals[i] = fmt.Sprintf("$%d", i+1)
	}

	return Repository[T]{conn, tbl, key, "", cols, strings.Join(vals, ",")}
}

// Instantiate concrete value for T. Direct instantiation is not
// possible in cases where T is a pointer type.
func (r *Repository[T]) getT() T {
	var t T

	rt := reflect.TypeOf(t)
	if rt.Kind() == reflect.Ptr {
		t = reflect.New(rt.Elem()).Interface().(T)
	}

	return t
}

func (r *Repository[T]) WithTx(tx Tx) *Repository[T] {
	return &Repository[T]{tx, r.Table, r.key, r.Touch, r.cols, r.values}
}

func (r *Repository[T]) columns() string {
	return strings.Join(r.cols, ",")
}

// keyWhere builds the WHERE-clause matching the conflict key, with
// placeholders starting at $1.
func (r *Repository[T]) keyWhere() string {
	parts := make([]string, len(r.key))
	for i, k := range r.key {
		parts[i] = fmt.Sprintf("%s = $%d", k, i+1)
	}

	return strings.Join(parts, " and ")
}

func (r *Repository[T]) Get(ctx context.Context, key ...any) (T, error) {
	log.Debug("Getting entity", "tbl", r.Table, "key", key)
	stmt := fmt.Sprintf("select %s from %s where %s", r.columns(), r.Table, r.keyWhere())

	t := r.getT()

	row := r.conn.QueryRowContext(ctx, stmt, key...)
	if err := row.Scan(t.Scan()...); err != nil {
		log.Debug("Get failed", "tbl", r.Table, "key", key, "err", err)
		return t, err
	}

	return t, nil
}

// GetAllWhere returns all entities matching the given WHERE-clause.
// where may be empty to select the whole table.
func (r *Repository[T]) GetAllWhere(ctx context.Context, where string, args ...any) ([]T, error) {
	log.Debug("Getting entities", "tbl", r.Table, "where", where)
	stmt := fmt.Sprintf("select %s from %s", r.columns(), r.Table)
	if where != "" {
		stmt += " where " + where
	}

	rows, err := r.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		log.Error("Get all failed", "tbl", r.Table, "stmt", stmt, "err", err)
		return nil, err
	}
	defer rows.Close()

	var s []T
	for rows.Next() {
		t := r.getT()

		if err := rows.Scan(t.Scan()...); err != nil {
			log.Error("Get all scan failed", "tbl", r.Table, "stmt", stmt, "err", err)
			return nil, err
		}

		s = append(s, t)
	}

	log.Debug("Get all complete", "tbl", r.Table, "entities", len(s))
	return s, rows.Err()
}

func (r *Repository[T]) Create(ctx context.Context, t T) error {
	log.Debug("Creating entity", "tbl", r.Table)
	stmt := fmt.Sprintf("insert into %s (%s) values (%s)", r.Table, r.columns(), r.values)

	if _, err := r.conn.ExecContext(ctx, stmt, t.Scan()...); err != nil {
		log.Error("Create failed", "tbl", r.Table, "stmt", stmt, "err", err)
		return err
	}

	return nil
}

// Upsert inserts the entity or, on a conflict with the repository's key
// columns, updates every non-key column from the new values. Rows are
// never deleted implicitly.
func (r *Repository[T]) Upsert(ctx context.Context, t T) error {
	log.Debug("Upserting entity", "tbl", r.Table)

	set := make([]string, 0, len(r.cols))
	for _, c := range r.cols {
		if slices.Contains(r.key, c) {
			continue
		}
		set = append(set, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	if r.Touch != "" {
		set = append(set, fmt.Sprintf("%s = now()", r.Touch))
	}

	stmt := fmt.Sprintf(
		"insert into %s (%s) values (%s) on conflict (%s) do update set %s",
		r.Table, r.columns(), r.values, strings.Join(r.key, ","), strings.Join(set, ", "),
	)

	if _, err := r.conn.ExecContext(ctx, stmt, t.Scan()...); err != nil {
		log.Error("Upsert failed", "tbl", r.Table, "stmt", stmt, "err", err)
		return err
	}

	return nil
}

func (r *Repository[T]) Delete(ctx context.Context, key ...any) error {
	log.Debug("Deleting entity", "tbl", r.Table, "key", key)
	stmt := fmt.Sprintf("delete from %s where %s", r.Table, r.keyWhere())

	if _, err := r.conn.ExecContext(ctx, stmt, key...); err != nil {
		log.Error("Delete failed", "tbl", r.Table, "key", key, "err", err)
		return err
	}

	return nil
}

// DeleteWhere deletes all entities matching the given WHERE-clause and
// returns the number of deleted rows.
func (r *Repository[T]) DeleteWhere(ctx context.Context, where string, args ...any) (int64, error) {
	log.Debug("Deleting entities", "tbl", r.Table, "where", where)
	stmt := fmt.Sprintf("delete from %s where %s", r.Table, where)

	res, err := r.conn.ExecContext(ctx, stmt, args...)
	if err != nil {
		log.Error("Delete failed", "tbl", r.Table, "stmt", stmt, "err", err)
		return 0, err
	}

	n, _ := res.RowsAffected()
	log.Debug("Delete complete", "tbl", r.Table, "rows", n)
	return n, nil
}
