package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
)

// Column describes one column of a relation.
type Column struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Comment string `json:"comment"`
}

// Relation describes a table or view.
type Relation struct {
	// Kind is TABLE, VIEW or MATERIALIZED VIEW.
	Kind    string   `json:"kind"`
	Size    string   `json:"size,omitempty"`
	Comment string   `json:"comment"`
	Columns []Column `json:"columns"`
}

// Schema maps relation names to their descriptions. It is rendered into
// SQL-generation prompts as JSON.
type Schema map[string]Relation

// Tables returns the relation names in s.
func (s Schema) Tables() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

const pgRelations = `
SELECT c.relname,
       CASE c.relkind
         WHEN 'r' THEN 'TABLE'
         WHEN 'v' THEN 'VIEW'
         WHEN 'm' THEN 'MATERIALIZED VIEW'
         ELSE c.relkind::text
       END,
       pg_size_pretty(pg_total_relation_size(c.oid)),
       COALESCE(obj_description(c.oid, 'pg_class'), ''),
       c.oid
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = 'public'
  AND c.relkind IN ('r', 'v', 'm')
ORDER BY 2, 1`

const pgColumns = `
SELECT a.attname,
       pg_catalog.format_type(a.atttypid, a.atttypmod),
       COALESCE(col_description(a.attrelid, a.attnum), '')
FROM pg_attribute a
WHERE a.attrelid = $1 AND a.attnum > 0 AND NOT a.attisdropped
ORDER BY a.attnum`

const sqliteRelations = `
SELECT name, upper(type)
FROM sqlite_master
WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
ORDER BY type, name`

const sqliteColumns = `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`

// DescribeSchema lists the tables and views of the public schema
// (PostgreSQL) or the main database (SQLite) with their columns.
func (d *DB) DescribeSchema(ctx context.Context) (Schema, error) {
	schema := make(Schema)
	err := d.withConn(ctx, func(ctx context.Context, c *sql.Conn) error {
		if d.dialect == Postgres {
			return describePostgres(ctx, c, schema)
		}
		return describeSQLite(ctx, c, schema)
	})
	if err != nil {
		return nil, fmt.Errorf("describe schema: %w", err)
	}
	return schema, nil
}

func describePostgres(ctx context.Context, c *sql.Conn, schema Schema) error {
	type rel struct {
		name string
		oid  uint32
		Relation
	}

	rows, err := c.QueryContext(ctx, pgRelations)
	if err != nil {
		return queryError(err)
	}
	var rels []rel
	for rows.Next() {
		var r rel
		if err := rows.Scan(&r.name, &r.Kind, &r.Size, &r.Comment, &r.oid); err != nil {
			rows.Close()
			return queryError(err)
		}
		rels = append(rels, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return queryError(err)
	}

	for _, r := range rels {
		cols, err := c.QueryContext(ctx, pgColumns, r.oid)
		if err != nil {
			return queryError(err)
		}
		r.Columns = []Column{}
		for cols.Next() {
			var col Column
			if err := cols.Scan(&col.Name, &col.Type, &col.Comment); err != nil {
				cols.Close()
				return queryError(err)
			}
			r.Columns = append(r.Columns, col)
		}
		cols.Close()
		if err := cols.Err(); err != nil {
			return queryError(err)
		}
		schema[r.name] = r.Relation
	}
	return nil
}

func describeSQLite(ctx context.Context, c *sql.Conn, schema Schema) error {
	rows, err := c.QueryContext(ctx, sqliteRelations)
	if err != nil {
		return queryError(err)
	}
	var names, kinds []string
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			rows.Close()
			return queryError(err)
		}
		names = append(names, name)
		kinds = append(kinds, kind)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return queryError(err)
	}

	for i, name := range names {
		cols, err := c.QueryContext(ctx, sqliteColumns, name)
		if err != nil {
			return queryError(err)
		}
		rel := Relation{Kind: kinds[i], Columns: []Column{}}
		for cols.Next() {
			var col Column
			if err := cols.Scan(&col.Name, &col.Type); err != nil {
				cols.Close()
				return queryError(err)
			}
			rel.Columns = append(rel.Columns, col)
		}
		cols.Close()
		if err := cols.Err(); err != nil {
			return queryError(err)
		}
		schema[name] = rel
	}
	return nil
}
