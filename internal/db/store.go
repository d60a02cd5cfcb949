package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/tgienger/apolo/internal/remote"
)

var _ remote.Store = (*DB)(nil)

// Select returns the rows of table matching q
func (db *DB) Select(ctx context.Context, tableName string, q remote.Query) ([]remote.Row, error) {
	t, err := lookup(tableName)
	if err != nil {
		return nil, err
	}

	query := "SELECT " + strings.Join(t.columns, ", ") + " FROM " + t.name
	where, args, err := t.where(q.Filter)
	if err != nil {
		return nil, err
	}
	query += where

	if len(q.Order) > 0 {
		var parts []string
		for _, o := range q.Order {
			if err := t.check(o.Column); err != nil {
				return nil, err
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts = append(parts, o.Column+" "+dir)
		}
		query += " ORDER BY " + strings.Join(parts, ", ")
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", t.name, err)
	}
	defer rows.Close()

	var out []remote.Row
	for rows.Next() {
		values := make([]any, len(t.columns))
		ptrs := make([]any, len(t.columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(remote.Row, len(t.columns))
		for i, col := range t.columns {
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Insert stores row, generating id and created_at where the table has them
func (db *DB) Insert(ctx context.Context, tableName string, row remote.Row) (remote.Row, error) {
	t, err := lookup(tableName)
	if err != nil {
		return nil, err
	}
	row = t.withDefaults(row)

	cols, args, err := t.encode(row)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.name, strings.Join(cols, ", "), placeholders(len(cols)))
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("insert %s: %w", t.name, translate(err))
	}

	stored, err := db.reread(ctx, t, row)
	if err != nil {
		return nil, err
	}
	db.publish(t.name, stored)
	return stored, nil
}

// Upsert inserts row or replaces the columns it carries on an id conflict
func (db *DB) Upsert(ctx context.Context, tableName string, row remote.Row) (remote.Row, error) {
	t, err := lookup(tableName)
	if err != nil {
		return nil, err
	}
	if !t.hasID {
		return nil, fmt.Errorf("upsert %s: table has no id column", t.name)
	}
	row = t.withDefaults(row)

	cols, args, err := t.encode(row)
	if err != nil {
		return nil, err
	}
	var sets []string
	for _, c := range cols {
		if c != "id" {
			sets = append(sets, c+" = excluded."+c)
		}
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.name, strings.Join(cols, ", "), placeholders(len(cols)))
	if len(sets) > 0 {
		query += " ON CONFLICT(id) DO UPDATE SET " + strings.Join(sets, ", ")
	} else {
		query += " ON CONFLICT(id) DO NOTHING"
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("upsert %s: %w", t.name, translate(err))
	}
	return db.reread(ctx, t, row)
}

// Update applies patch to every row matching f
func (db *DB) Update(ctx context.Context, tableName string, f remote.Filter, patch remote.Row) error {
	t, err := lookup(tableName)
	if err != nil {
		return err
	}
	if len(patch) == 0 {
		return nil
	}
	cols, args, err := t.encode(patch)
	if err != nil {
		return err
	}
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	where, whereArgs, err := t.where(f)
	if err != nil {
		return err
	}
	query := "UPDATE " + t.name + " SET " + strings.Join(sets, ", ") + where
	if _, err := db.ExecContext(ctx, query, append(args, whereArgs...)...); err != nil {
		return fmt.Errorf("update %s: %w", t.name, translate(err))
	}
	return nil
}

// Delete removes every row matching f
func (db *DB) Delete(ctx context.Context, tableName string, f remote.Filter) error {
	t, err := lookup(tableName)
	if err != nil {
		return err
	}
	if len(f) == 0 {
		return fmt.Errorf("delete %s: refusing to delete without a filter", t.name)
	}
	where, args, err := t.where(f)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM "+t.name+where, args...); err != nil {
		return fmt.Errorf("delete %s: %w", t.name, err)
	}
	return nil
}

// reread returns the stored version of a freshly written row
func (db *DB) reread(ctx context.Context, t table, row remote.Row) (remote.Row, error) {
	var f remote.Filter
	if t.hasID {
		f = remote.Where("id", row["id"])
	} else {
		f = remote.Where("project_id", row["project_id"]).And("user_id", row["user_id"])
	}
	rows, err := db.Select(ctx, t.name, remote.Query{Filter: f, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", t.name, remote.ErrNotFound)
	}
	return rows[0], nil
}

func (t table) withDefaults(row remote.Row) remote.Row {
	out := make(remote.Row, len(row)+2)
	for k, v := range row {
		out[k] = v
	}
	if t.hasID {
		if id, _ := out["id"].(string); id == "" {
			out["id"] = uuid.NewString()
		}
	}
	if t.createdAt != "" {
		if _, ok := out[t.createdAt]; !ok {
			out[t.createdAt] = time.Now().UnixMilli()
		}
	}
	return out
}

// encode returns the row's columns in a stable order with driver-ready values
func (t table) encode(row remote.Row) ([]string, []any, error) {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	slices.Sort(cols)
	if err := t.check(cols...); err != nil {
		return nil, nil, err
	}

	args := make([]any, len(cols))
	for i, c := range cols {
		v := row[c]
		switch {
		case v == nil:
		case t.json[c]:
			switch v.(type) {
			case string, []byte:
			default:
				b, err := json.Marshal(v)
				if err != nil {
					return nil, nil, fmt.Errorf("encode %s.%s: %w", t.name, c, err)
				}
				v = string(b)
			}
		default:
			if tv, ok := v.(time.Time); ok {
				v = tv.UnixMilli()
			}
		}
		args[i] = v
	}
	return cols, args, nil
}

func (t table) where(f remote.Filter) (string, []any, error) {
	if len(f) == 0 {
		return "", nil, nil
	}
	var parts []string
	var args []any
	for _, c := range f {
		if err := t.check(c.Column); err != nil {
			return "", nil, err
		}
		switch c.Op {
		case remote.Eq:
			if c.Value == nil {
				parts = append(parts, c.Column+" IS NULL")
				continue
			}
			parts = append(parts, c.Column+" = ?")
			args = append(args, c.Value)
		case remote.In:
			values, ok := c.Value.([]string)
			if !ok {
				return "", nil, fmt.Errorf("filter %s: IN expects []string", c.Column)
			}
			if len(values) == 0 {
				parts = append(parts, "0")
				continue
			}
			parts = append(parts, c.Column+" IN ("+placeholders(len(values))+")")
			for _, v := range values {
				args = append(args, v)
			}
		default:
			return "", nil, fmt.Errorf("filter %s: unknown operator %d", c.Column, c.Op)
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// translate maps SQLite constraint errors onto remote sentinels
func translate(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", remote.ErrConflict, err)
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return remote.ErrNotFound
	}
	return err
}
