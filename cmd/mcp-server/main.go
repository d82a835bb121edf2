package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/pollwatch/internal/analytics"
	"github.com/patrickwarner/pollwatch/internal/config"
	"github.com/patrickwarner/pollwatch/internal/db"
	"github.com/patrickwarner/pollwatch/internal/incidents"
	"github.com/patrickwarner/pollwatch/internal/models"
	"github.com/patrickwarner/pollwatch/internal/observability"
	"github.com/patrickwarner/pollwatch/internal/reporting"
)

type ListVerifiedInput struct {
	IncidentType string `json:"incident_type,omitempty" jsonschema:"only return incidents of this type"`
	Limit        int    `json:"limit,omitempty" jsonschema:"maximum number of incidents to return, newest first"`
}

type ListVerifiedOutput struct {
	Incidents []models.Incident `json:"incidents"`
}

type SummaryInput struct {
	Days int `json:"days,omitempty" jsonschema:"reporting window in days (default 7, max 365)"`
}

type HistoryInput struct {
	IncidentID string `json:"incident_id" jsonschema:"incident UUID"`
}

type HistoryOutput struct {
	Events []analytics.Event `json:"events"`
}

// incidentTools holds the dependencies behind the read-only MCP tools.
type incidentTools struct {
	svc       *incidents.Service
	store     models.IncidentStore
	pg        *db.Postgres
	analytics *analytics.Analytics
	logger    *zap.Logger
	now       func() time.Time
}

// ListVerified returns what an anonymous client of the public list would see.
func (t *incidentTools) ListVerified(ctx context.Context, _ *mcp.CallToolRequest, input ListVerifiedInput) (*mcp.CallToolResult, ListVerifiedOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	list, err := t.svc.List(ctx, nil)
	if err != nil {
		return nil, ListVerifiedOutput{}, fmt.Errorf("list incidents: %w", err)
	}
	out := make([]models.Incident, 0, len(list))
	for _, inc := range list {
		if input.IncidentType != "" && string(inc.IncidentType) != input.IncidentType {
			continue
		}
		out = append(out, inc)
		if input.Limit > 0 && len(out) == input.Limit {
			break
		}
	}
	t.logger.Info("listed verified incidents", zap.Int("returned", len(out)))
	return nil, ListVerifiedOutput{Incidents: out}, nil
}

// Summary returns the moderation summary for the requested window.
func (t *incidentTools) Summary(ctx context.Context, _ *mcp.CallToolRequest, input SummaryInput) (*mcp.CallToolResult, reporting.ModerationSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	days := input.Days
	if days == 0 {
		days = reporting.DefaultDays
	}
	if t.pg != nil {
		s, err := reporting.GenerateModerationSummary(ctx, t.pg.DB, days)
		if err != nil {
			return nil, reporting.ModerationSummary{}, fmt.Errorf("moderation summary: %w", err)
		}
		return nil, *s, nil
	}
	list, err := t.store.Find(ctx, models.IncidentFilter{})
	if err != nil {
		return nil, reporting.ModerationSummary{}, fmt.Errorf("load incidents: %w", err)
	}
	return nil, *reporting.FromIncidents(list, days, t.now()), nil
}

// History returns the recorded lifecycle events for one incident.
func (t *incidentTools) History(ctx context.Context, _ *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, HistoryOutput, error) {
	events, err := t.analytics.EventsForIncident(ctx, input.IncidentID)
	if err != nil {
		return nil, HistoryOutput{}, fmt.Errorf("incident history: %w", err)
	}
	return nil, HistoryOutput{Events: events}, nil
}

func newMCPServer(t *incidentTools) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "pollwatch",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_verified_incidents",
		Description: "List verified election incident reports, newest first",
	}, t.ListVerified)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "incident_summary",
		Description: "Count incident reports per status, type and day over a recent window",
	}, t.Summary)
	if t.analytics != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "incident_history",
			Description: "Show the recorded lifecycle events (created, status changes, deletion) of one incident",
		}, t.History)
	}
	return server
}

func main() {
	logger, err := observability.InitStderrLogger("pollwatch-mcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Load()
	ctx := context.Background()

	tools := &incidentTools{logger: logger, now: time.Now}
	if cfg.StoreBackend == config.StoreBackendMemory {
		logger.Warn("in-memory store selected; tools will see an empty incident list")
		tools.store = models.NewInMemoryIncidentStore()
	} else {
		pg, err := db.InitPostgres(cfg.PostgresDSN, 5, 2, 30*time.Minute, 5*time.Minute)
		if err != nil {
			logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		}
		defer pg.Close()
		tools.pg, tools.store = pg, pg
	}
	tools.svc = incidents.NewService(tools.store, logger, nil)

	if cfg.AnalyticsEnabled {
		a, err := analytics.InitClickHouse(ctx, cfg.ClickHouseDSN, nil)
		if err != nil {
			logger.Warn("ClickHouse unavailable, incident_history disabled", zap.Error(err))
		} else {
			defer a.Close()
			tools.analytics = a
		}
	}

	server := newMCPServer(tools)

	var logBuffer bytes.Buffer
	transport := &mcp.LoggingTransport{
		Transport: &mcp.StdioTransport{},
		Writer:    &logBuffer,
	}

	logger.Info("MCP server running via stdio")
	if err := server.Run(ctx, transport); err != nil {
		logger.Fatal("Server error", zap.Error(err), zap.String("mcp_logs", logBuffer.String()))
	}
}
