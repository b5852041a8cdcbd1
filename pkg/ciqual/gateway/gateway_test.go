package gateway

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zzgael/ciqual-mcp/pkg/ciqual/config"
	"github.com/zzgael/ciqual-mcp/pkg/ciqual/store"
)

func seededGateway(t *testing.T) *Gateway {
	t.Helper()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "ciqual.db")

	s, err := store.Open(context.Background(), cfg.DBPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load(context.Background(), 1000, func(l *store.Loader) error {
		if err := l.UpsertNutrient(328, "Energie (kcal/100g)", "Energy (kcal/100g)", "kcal/100g"); err != nil {
			return err
		}
		if err := l.UpsertFood(1000, "Blé tendre", "Soft wheat", ""); err != nil {
			return err
		}
		if err := l.AddComposition(1000, 328, 339, "A"); err != nil {
			return err
		}
		return l.RebuildSearchIndex()
	})
	require.NoError(t, err)

	return New(cfg, zap.NewNop())
}

func TestQuerySelect(t *testing.T) {
	g := seededGateway(t)

	rows := g.Query(context.Background(), "SELECT alim_code, alim_nom_eng FROM foods ORDER BY alim_code")
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].Err())

	code, ok := rows[0].Get("alim_code")
	require.True(t, ok)
	assert.EqualValues(t, 1000, code)

	name, _ := rows[0].Get("alim_nom_eng")
	assert.Equal(t, "Soft wheat", name)
}

func TestQueryJoin(t *testing.T) {
	g := seededGateway(t)

	rows := g.Query(context.Background(), `
SELECT f.alim_nom_eng, n.const_nom_eng, c.teneur, n.unit
FROM foods f
JOIN composition c ON f.alim_code = c.alim_code
JOIN nutrients n ON c.const_code = n.const_code
WHERE f.alim_code = 1000`)
	require.Len(t, rows, 1)

	unit, _ := rows[0].Get("unit")
	assert.Equal(t, "kcal/100g", unit)
}

func TestQueryWithCTE(t *testing.T) {
	g := seededGateway(t)

	rows := g.Query(context.Background(), "WITH f AS (SELECT COUNT(*) AS n FROM foods) SELECT n FROM f")
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].Err())
}

func TestQueryRejectsWrites(t *testing.T) {
	g := seededGateway(t)

	for _, stmt := range []string{
		"INSERT INTO foods (alim_code) VALUES (42)",
		"update foods set alim_nom_fr='x'",
		"DELETE FROM foods",
		"DROP TABLE foods",
		"  \n\tPRAGMA journal_mode=DELETE",
		"",
	} {
		rows := g.Query(context.Background(), stmt)
		require.Len(t, rows, 1, "statement %q", stmt)
		assert.NotEmpty(t, rows[0].Err(), "statement %q must be rejected", stmt)
	}

	// Store content untouched.
	rows := g.Query(context.Background(), "SELECT COUNT(*) AS n FROM foods")
	require.Len(t, rows, 1)
	n, _ := rows[0].Get("n")
	assert.EqualValues(t, 1, n)
}

func TestQueryMissingStore(t *testing.T) {
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "absent.db")
	g := New(cfg, zap.NewNop())

	rows := g.Query(context.Background(), "SELECT 1")
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0].Err(), "not initialized")
}

func TestQueryUnknownTable(t *testing.T) {
	g := seededGateway(t)

	rows := g.Query(context.Background(), "SELECT * FROM no_such_thing")
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0].Err(), "Table not found")
	assert.Contains(t, rows[0].Err(), "foods_fts")
}

func TestQueryEmptyResult(t *testing.T) {
	g := seededGateway(t)

	rows := g.Query(context.Background(), "SELECT * FROM foods WHERE alim_code = -1")
	assert.NotNil(t, rows)
	assert.Len(t, rows, 0)
}

func TestQueryFullTextSearch(t *testing.T) {
	g := seededGateway(t)

	rows := g.Query(context.Background(), "SELECT alim_code FROM foods_fts WHERE foods_fts MATCH 'ble'")
	require.Len(t, rows, 1, "diacritic-insensitive match on 'Blé'")
}

func TestRowJSONPreservesColumnOrder(t *testing.T) {
	g := seededGateway(t)

	rows := g.Query(context.Background(), "SELECT alim_code, alim_nom_fr, alim_nom_eng FROM foods")
	require.Len(t, rows, 1)

	data, err := json.Marshal(rows[0])
	require.NoError(t, err)

	j := string(data)
	assert.Less(t, strings.Index(j, "alim_code"), strings.Index(j, "alim_nom_fr"))
	assert.Less(t, strings.Index(j, "alim_nom_fr"), strings.Index(j, "alim_nom_eng"))
}
