// Package gateway serves read-only SQL queries against the Ciqual
// store. Failures never surface as errors: every outcome is a list of
// rows, with failures shaped as a single error row, so the calling
// agent always handles one response shape.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/zzgael/ciqual-mcp/pkg/ciqual/config"
	"github.com/zzgael/ciqual-mcp/pkg/ciqual/store"
)

// Row is an ordered column→value mapping. JSON marshaling preserves
// the result set's column order.
type Row struct {
	columns []string
	values  []any
}

// Columns returns the row's column names in result order.
func (r Row) Columns() []string {
	return r.columns
}

// Get returns the value of the first column with the given name.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.columns {
		if c == column {
			return r.values[i], true
		}
	}
	return nil, false
}

// Err returns the error message of an error-shaped row, or "".
func (r Row) Err() string {
	if len(r.columns) == 1 && r.columns[0] == "error" {
		if msg, ok := r.values[0].(string); ok {
			return msg
		}
	}
	return ""
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func errorRow(msg string) []Row {
	return []Row{{columns: []string{"error"}, values: []any{msg}}}
}

// Gateway executes queries against the finished store. It never opens
// a writable handle.
type Gateway struct {
	dbPath string
	logger *zap.Logger
}

// New creates a gateway bound to the configured store path.
func New(cfg config.Config, logger *zap.Logger) *Gateway {
	return &Gateway{dbPath: cfg.DBPath, logger: logger}
}

// Query runs a read-only SQL statement and returns its rows. Any
// failure — rejected statement, missing store, execution error — comes
// back as a single error row instead of an error.
func (g *Gateway) Query(ctx context.Context, sqlText string) []Row {
	if _, err := os.Stat(g.dbPath); err != nil {
		g.logger.Warn("store not found", zap.String("path", g.dbPath))
		return errorRow("Database not initialized. Please run the server first to download data.")
	}

	if !isReadOnly(sqlText) {
		return errorRow("Only SELECT queries are allowed for safety.")
	}

	db, err := store.OpenReadOnly(ctx, g.dbPath)
	if err != nil {
		g.logger.Error("open read-only store", zap.Error(err))
		return errorRow("Database error: " + err.Error())
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		g.logger.Error("query failed", zap.Error(err))
		return errorRow(describeError(err))
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return errorRow("SQL error: " + err.Error())
	}

	var results []Row
	for rows.Next() {
		values := make([]any, len(columns))
		dests := make([]any, len(columns))
		for i := range values {
			dests[i] = &values[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return errorRow("SQL error: " + err.Error())
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		results = append(results, Row{columns: columns, values: values})
	}
	if err := rows.Err(); err != nil {
		return errorRow(describeError(err))
	}

	g.logger.Debug("query served", zap.Int("rows", len(results)))
	if results == nil {
		results = []Row{}
	}
	return results
}

// isReadOnly accepts only statements whose first word is a read-only
// query keyword. Everything else is rejected before touching the store.
func isReadOnly(sqlText string) bool {
	fields := strings.Fields(strings.ToLower(sqlText))
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "select", "with":
		return true
	}
	return false
}

func describeError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such table"):
		return "Table not found. Available tables: foods, nutrients, composition, foods_fts, food_groups"
	case strings.Contains(msg, "read-only") || strings.Contains(msg, "readonly") || strings.Contains(msg, "query_only"):
		return "Database is read-only. Only SELECT queries are allowed."
	default:
		return "SQL error: " + msg
	}
}
