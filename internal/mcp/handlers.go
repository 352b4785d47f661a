package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Nissan15/hackathon/internal/api"
	"github.com/Nissan15/hackathon/internal/domain"
	"github.com/Nissan15/hackathon/internal/greenops"
)

type toolHandler struct {
	reports api.ReportBuilder
	recs    api.Recommender
	factors FactorLister
}

func (h *toolHandler) handleGetDashboard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := h.reports.Build(ctx, request.GetString("start_date", ""), request.GetString("end_date", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(report)
}

func (h *toolHandler) handleGetEquivalencies(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := h.reports.Build(ctx, request.GetString("start_date", ""), request.GetString("end_date", ""))
	if err != nil {
		return toolError(err), nil
	}
	out, err := greenops.FromTonnes(report.KPIs.TotalEmissions)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(api.EquivalencyResponse{
		StartDate:      domain.FormatDate(report.Range.Start),
		EndDate:        domain.FormatDate(report.Range.End),
		TotalEmissions: report.KPIs.TotalEmissions,
		Equivalencies:  out,
	})
}

func (h *toolHandler) handleGetRecommendations(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recs, err := h.recs.Recommendations(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(recs)
}

func (h *toolHandler) handleListFactors(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	factors, err := h.factors.EmissionFactors(ctx)
	if err != nil {
		return toolError(err), nil
	}
	views := make([]api.FactorView, 0, len(factors))
	for _, f := range factors {
		views = append(views, api.FactorView{SourceType: f.SourceType, Factor: f.Factor, Unit: f.Unit})
	}
	return jsonResult(views)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError reports failures to the client without internal details.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, domain.ErrInvalidDateFormat):
		return mcp.NewToolResultError("invalid date format, use YYYY-MM-DD")
	case errors.Is(err, domain.ErrStorageUnavailable):
		return mcp.NewToolResultError("database connection error")
	default:
		return mcp.NewToolResultError("internal error")
	}
}
