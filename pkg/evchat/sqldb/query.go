package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	// ErrEmptyQuery indicates nothing but whitespace or comments was left
	// after stripping fences.
	ErrEmptyQuery = errors.New("empty query")

	// ErrNotReadOnly indicates a statement other than a single
	// SELECT/WITH query.
	ErrNotReadOnly = errors.New("query is not read-only")
)

// writeKeywords may not appear outside literals and comments.
var writeKeywords = map[string]bool{
	"insert": true, "update": true, "delete": true, "merge": true,
	"create": true, "alter": true, "drop": true, "truncate": true,
	"grant": true, "revoke": true, "copy": true, "call": true,
	"attach": true, "detach": true, "pragma": true, "vacuum": true,
	"reindex": true, "lock": true,
	"set": true, "do": true, "into": true,
}

// StripFences extracts the SQL from a model reply that may wrap it in a
// Markdown code block such as ```sql ... ```.
func StripFences(reply string) string {
	s := strings.TrimSpace(reply)
	i := strings.Index(s, "```")
	if i < 0 {
		return s
	}
	rest := s[i+3:]
	if j := strings.Index(rest, "```"); j >= 0 {
		rest = rest[:j]
	}
	rest = strings.TrimLeft(rest, " \t")
	for _, tag := range []string{"postgresql", "postgres", "sqlite", "sql"} {
		if len(rest) > len(tag) && strings.EqualFold(rest[:len(tag)], tag) && unicode.IsSpace(rune(rest[len(tag)])) {
			rest = rest[len(tag):]
			break
		}
	}
	return strings.TrimSpace(rest)
}

// CheckReadOnly accepts exactly one SELECT or WITH statement, optionally
// followed by a semicolon. Keywords inside string literals, quoted
// identifiers and comments are ignored.
func CheckReadOnly(query string) error {
	code := stripLiteralsAndComments(query)
	code = strings.TrimSpace(code)
	code = strings.TrimSuffix(code, ";")
	if strings.TrimSpace(code) == "" {
		return ErrEmptyQuery
	}
	if strings.Contains(code, ";") {
		return fmt.Errorf("%w: multiple statements", ErrNotReadOnly)
	}

	words := strings.FieldsFunc(strings.ToLower(code), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	if len(words) == 0 || (words[0] != "select" && words[0] != "with") {
		return fmt.Errorf("%w: must start with SELECT or WITH", ErrNotReadOnly)
	}
	for _, w := range words {
		if writeKeywords[w] {
			return fmt.Errorf("%w: contains %s", ErrNotReadOnly, strings.ToUpper(w))
		}
	}
	return nil
}

// stripLiteralsAndComments blanks out '...' literals, "..." identifiers,
// -- line comments and /* */ block comments.
func stripLiteralsAndComments(q string) string {
	var b strings.Builder
	b.Grow(len(q))
	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case c == '\'' || c == '"':
			for i++; i < len(q); i++ {
				if q[i] == c {
					if i+1 < len(q) && q[i+1] == c {
						i++
						continue
					}
					break
				}
			}
			b.WriteByte(' ')
		case c == '-' && i+1 < len(q) && q[i+1] == '-':
			for i < len(q) && q[i] != '\n' {
				i++
			}
			b.WriteByte('\n')
		case c == '/' && i+1 < len(q) && q[i+1] == '*':
			end := strings.Index(q[i+2:], "*/")
			if end < 0 {
				i = len(q)
			} else {
				i += end + 3
			}
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Execute strips fences from query, checks it is read-only and runs it on
// a dedicated connection. PostgreSQL queries run inside a READ ONLY
// transaction that is always rolled back.
//
// Values are converted to JSON-friendly types: []byte becomes string,
// NUMERIC/DECIMAL become float64, DATE becomes "2006-01-02" and other
// times RFC 3339.
func (d *DB) Execute(ctx context.Context, query string) ([]Row, error) {
	query = StripFences(query)
	if err := CheckReadOnly(query); err != nil {
		return nil, err
	}

	start := time.Now()
	var rows []Row
	err := d.withConn(ctx, func(ctx context.Context, c *sql.Conn) error {
		if d.dialect != Postgres {
			var err error
			rows, err = d.query(ctx, c, query)
			return err
		}

		tx, err := c.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			return upstream("begin", err)
		}
		defer func() { _ = tx.Rollback() }()
		rows, err = d.query(ctx, tx, query)
		return err
	})
	if err != nil {
		return nil, err
	}

	d.logger.Debug("query executed",
		"dialect", d.dialect,
		"rows", len(rows),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rows, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (d *DB) query(ctx context.Context, q queryer, query string) ([]Row, error) {
	rs, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, queryError(err)
	}
	defer rs.Close()

	types, err := rs.ColumnTypes()
	if err != nil {
		return nil, queryError(err)
	}

	out := make([]Row, 0)
	for rs.Next() {
		if d.opts.MaxRows > 0 && len(out) == d.opts.MaxRows {
			d.logger.Warn("query result truncated", "max_rows", d.opts.MaxRows)
			break
		}
		values := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, queryError(err)
		}
		row := make(Row, len(types))
		for i, ct := range types {
			row[ct.Name()] = normalize(values[i], ct.DatabaseTypeName())
		}
		out = append(out, row)
	}
	if err := rs.Err(); err != nil {
		return nil, queryError(err)
	}
	return out, nil
}

// queryError keeps SQL errors (bad column, syntax) permanent and marks
// connection failures as upstream.
func queryError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || isConnError(err) {
		return upstream("query", err)
	}
	return fmt.Errorf("query: %w", err)
}

func normalize(v any, dbType string) any {
	dbType = strings.ToUpper(dbType)
	switch val := v.(type) {
	case []byte:
		return normalize(string(val), dbType)
	case string:
		if dbType == "NUMERIC" || dbType == "DECIMAL" {
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				return f
			}
		}
		return val
	case time.Time:
		if dbType == "DATE" {
			return val.Format(time.DateOnly)
		}
		return val.Format(time.RFC3339Nano)
	default:
		return v
	}
}
