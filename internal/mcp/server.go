// Package mcp exposes the dashboard to agents over the Model Context Protocol.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Nissan15/hackathon/internal/api"
	"github.com/Nissan15/hackathon/internal/domain"
)

// FactorLister lists the emission factor table.
type FactorLister interface {
	EmissionFactors(ctx context.Context) ([]domain.EmissionFactor, error)
}

// NewServer configures the campus carbon MCP server without starting it.
func NewServer(version string, reports api.ReportBuilder, recs api.Recommender, factors FactorLister) *server.MCPServer {
	s := server.NewMCPServer(
		"Campus Carbon",
		version,
		server.WithToolCapabilities(false),
	)

	h := &toolHandler{reports: reports, recs: recs, factors: factors}

	s.AddTool(mcp.NewTool("get_dashboard",
		mcp.WithDescription("Build the campus emissions dashboard for a date range. Dates are YYYY-MM-DD; omitted bounds default to the trailing window."),
		mcp.WithString("start_date", mcp.Description("First day of the range, inclusive.")),
		mcp.WithString("end_date", mcp.Description("Last day of the range, inclusive.")),
	), h.handleGetDashboard)

	s.AddTool(mcp.NewTool("get_equivalencies",
		mcp.WithDescription("Express the emissions of a date range as everyday equivalents."),
		mcp.WithString("start_date", mcp.Description("First day of the range, inclusive.")),
		mcp.WithString("end_date", mcp.Description("Last day of the range, inclusive.")),
	), h.handleGetEquivalencies)

	s.AddTool(mcp.NewTool("get_recommendations",
		mcp.WithDescription("Suggest reductions based on the largest all-time emission source."),
	), h.handleGetRecommendations)

	s.AddTool(mcp.NewTool("list_emission_factors",
		mcp.WithDescription("List the emission factor table in kg CO2e per raw unit."),
	), h.handleListFactors)

	return s
}

// ServeStdio runs the server on stdin and stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
