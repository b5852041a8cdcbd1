// Package mcpserver exposes the Ciqual store to MCP clients. The
// single `query` tool takes raw read-only SQL and returns rows as
// JSON, so an agent can pull a food's complete nutrition in one call.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/zzgael/ciqual-mcp/pkg/ciqual/config"
	"github.com/zzgael/ciqual-mcp/pkg/ciqual/gateway"
)

const queryToolDescription = `Execute SQL query on the ANSES Ciqual French food composition database.

IMPORTANT: Get ALL nutrients in ONE query! Don't make multiple queries for the same food.

EXAMPLE - Get complete nutrition for a food:
SELECT f.alim_nom_eng, n.const_nom_eng, c.teneur, n.unit
FROM foods f
JOIN composition c ON f.alim_code = c.alim_code
JOIN nutrients n ON c.const_code = n.const_code
WHERE f.alim_code = 23000;

SCHEMA:
- foods: 3,185+ foods with French/English names
  alim_code (PK), alim_nom_fr, alim_nom_eng, alim_grp_code
- nutrients: ~60 nutrients with units
  const_code (PK), const_nom_fr, const_nom_eng, unit
- composition: nutritional values per 100g
  alim_code, const_code, teneur (value), code_confiance (A/B/C/D)
- food_groups: grp_code (PK), grp_nom_fr, grp_nom_eng
- foods_fts: full-text search for fuzzy matching
  Use: WHERE foods_fts MATCH 'search term'

KEY NUTRIENT CODES:
Energy: 327 (kJ), 328 (kcal)
Macros: 25000 (protein g), 31000 (carbs g), 40000 (fat g), 34100 (fiber g), 32000 (sugars g)
Minerals: 10110 (sodium mg), 10200 (calcium mg), 10260 (iron mg), 10190 (potassium mg)
Vitamins: 55400 (vit C mg), 56400 (vit D µg), 51330 (vit B12 µg), 56310 (vit E mg)

The database is read-only. Use SELECT queries only.`

// Server wraps an mcp-go MCPServer around the query gateway.
type Server struct {
	mcp     *server.MCPServer
	gateway *gateway.Gateway
	logger  *zap.Logger
}

// New creates the MCP server and registers the query tool.
func New(cfg config.Config, gw *gateway.Gateway, logger *zap.Logger) *Server {
	s := &Server{
		mcp: server.NewMCPServer(
			cfg.ServerName,
			cfg.ServerVersion,
			server.WithToolCapabilities(true),
		),
		gateway: gw,
		logger:  logger,
	}

	tool := mcp.NewTool(
		"query",
		mcp.WithDescription(queryToolDescription),
		mcp.WithString(
			"sql",
			mcp.Required(),
			mcp.Description("A read-only SQL statement (SELECT or WITH)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.mcp.AddTool(tool, s.handleQuery)

	return s
}

func (s *Server) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sqlText, err := req.RequireString("sql")
	if err != nil {
		return nil, err
	}

	rows := s.gateway.Query(ctx, sqlText)
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("marshal query result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	s.logger.Info("serving MCP on stdio")
	return server.ServeStdio(s.mcp)
}

// ServeHTTP serves MCP over the streamable HTTP transport.
func (s *Server) ServeHTTP(addr string) error {
	s.logger.Info("serving MCP over HTTP", zap.String("addr", addr))
	httpServer := server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))
	return httpServer.Start(addr)
}
