package sqldb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"plain", "SELECT 1", "SELECT 1"},
		{"sql fence", "```sql\nSELECT 1\n```", "SELECT 1"},
		{"uppercase tag", "```SQL\nSELECT 1;\n```", "SELECT 1;"},
		{"bare fence", "```\nSELECT 1\n```", "SELECT 1"},
		{"single line", "```SELECT 1```", "SELECT 1"},
		{"surrounding prose", "Here you go:\n```sql\nSELECT a FROM t\n```\nEnjoy.", "SELECT a FROM t"},
		{"postgresql tag", "```postgresql\nSELECT 2\n```", "SELECT 2"},
		{"unterminated", "```sql\nSELECT 3", "SELECT 3"},
		{"column named sqlx kept", "```\nsqlx_id\n```", "sqlx_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.reply))
		})
	}
}

func TestCheckReadOnly(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  error
	}{
		{"select", "SELECT car_id FROM ev_battery", nil},
		{"lowercase with semicolon", "select 1;", nil},
		{"cte", "WITH x AS (SELECT 1 AS a) SELECT a FROM x", nil},
		{"keyword in literal", "SELECT car_id FROM ev_battery WHERE note = 'delete me'", nil},
		{"keyword in quoted identifier", `SELECT "update" FROM t`, nil},
		{"keyword in comment", "SELECT 1 -- drop table later\n", nil},
		{"keyword in block comment", "SELECT /* insert */ 1", nil},
		{"offset is not set", "SELECT a FROM t LIMIT 30 OFFSET 10", nil},
		{"replace function", "SELECT replace(car_type, 'EV', '') FROM t", nil},
		{"leading comment", "-- top\nSELECT 1", nil},
		{"empty", "   ", ErrEmptyQuery},
		{"comment only", "-- nothing", ErrEmptyQuery},
		{"delete", "DELETE FROM t", ErrNotReadOnly},
		{"two statements", "SELECT 1; SELECT 2", ErrNotReadOnly},
		{"data-modifying cte", "WITH d AS (DELETE FROM t RETURNING *) SELECT * FROM d", ErrNotReadOnly},
		{"select into", "SELECT * INTO backup FROM t", ErrNotReadOnly},
		{"for update", "SELECT * FROM t FOR UPDATE", ErrNotReadOnly},
		{"pragma", "PRAGMA table_info(t)", ErrNotReadOnly},
		{"escaped quote", "SELECT 'it''s' ; DROP TABLE t", ErrNotReadOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckReadOnly(tt.query)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNormalize(t *testing.T) {
	ts := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	assert.Equal(t, "abc", normalize([]byte("abc"), "BYTEA"))
	assert.Equal(t, 12.5, normalize("12.50", "NUMERIC"))
	assert.Equal(t, 7.0, normalize([]byte("7"), "decimal"))
	assert.Equal(t, "NaN-ish", normalize("NaN-ish", "NUMERIC"))
	assert.Equal(t, "12.50", normalize("12.50", "TEXT"))
	assert.Equal(t, "2024-05-01", normalize(ts, "DATE"))
	assert.Equal(t, "2024-05-01T09:30:00Z", normalize(ts, "TIMESTAMPTZ"))
	assert.Equal(t, int64(3), normalize(int64(3), "INT8"))
	assert.Nil(t, normalize(nil, "TEXT"))
}
