// Command perflens-mcp exposes profiling sessions over the Model Context
// Protocol so MCP clients can run workloads and read analysis results.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/perflens/perflens/internal/adapter"
	"github.com/perflens/perflens/internal/analyze"
	"github.com/perflens/perflens/internal/logging"
	"github.com/perflens/perflens/internal/profile"
	"github.com/perflens/perflens/internal/session"
	"github.com/perflens/perflens/internal/store"
	"github.com/perflens/perflens/internal/workload"
)

// ProfileWorkloadInput is the input schema for the profile_workload tool.
type ProfileWorkloadInput struct {
	Workload string `json:"workload" jsonschema:"description=Workload to profile: fib, growth, pairs, lookup, or all"`
	Size     int    `json:"size,omitempty" jsonschema:"description=Workload size (0 uses the workload default)"`
	Database string `json:"database,omitempty" jsonschema:"description=Optional DuckDB path to persist the session"`
}

// AnalyzeReportInput is the input schema for the analyze_report tool.
type AnalyzeReportInput struct {
	Path      string `json:"path,omitempty" jsonschema:"description=Path to a JSON report file"`
	Database  string `json:"database,omitempty" jsonschema:"description=DuckDB session database path"`
	SessionID string `json:"session_id,omitempty" jsonschema:"description=Session ID to load (defaults to the most recent)"`
}

// ListSessionsInput is the input schema for the list_sessions tool.
type ListSessionsInput struct {
	Database string `json:"database" jsonschema:"description=DuckDB session database path"`
}

func main() {
	logger := logging.NewWithComponent(logging.Config{Level: "warn", Pretty: false}, "mcp")

	s := server.NewMCPServer(
		"Perflens Profiler",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	registerTool(s, logger, "profile_workload",
		"Profile a built-in demo workload with call timing, allocation tracking, and statement timing, then return the merged report and recommendations as JSON.",
		ProfileWorkloadInput{}, handleProfileWorkload(logger))
	registerTool(s, logger, "analyze_report",
		"Re-run pattern matching and recommendation synthesis on a saved report and return the recommendations as JSON.",
		AnalyzeReportInput{}, handleAnalyzeReport(logger))
	registerTool(s, logger, "list_sessions",
		"List the profiling sessions stored in a DuckDB database, most recent first.",
		ListSessionsInput{}, handleListSessions(logger))

	if err := server.ServeStdio(s); err != nil {
		logger.Error().Err(err).Msg("MCP server stopped")
		os.Exit(1)
	}
}

// generateInputSchema generates an inline JSON schema from a Go type; MCP
// clients expect no $ref/$defs indirection.
func generateInputSchema(inputType interface{}) ([]byte, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := reflector.Reflect(inputType)

	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	var schemaMap map[string]any
	if err := json.Unmarshal(schemaBytes, &schemaMap); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	delete(schemaMap, "$schema")
	delete(schemaMap, "$id")

	return json.Marshal(schemaMap)
}

func registerTool(s *server.MCPServer, logger zerolog.Logger, name, description string, inputType interface{}, handler server.ToolHandlerFunc) {
	schemaBytes, err := generateInputSchema(inputType)
	if err != nil {
		logger.Error().Err(err).Str("tool", name).Msg("Failed to generate input schema")
		return
	}
	s.AddTool(mcp.NewToolWithRawSchema(name, description, schemaBytes), handler)
}

// parseArguments unmarshals the request arguments into the typed input.
func parseArguments(request mcp.CallToolRequest, input interface{}) error {
	if request.Params.Arguments == nil {
		return nil
	}
	argBytes, err := json.Marshal(request.Params.Arguments)
	if err != nil {
		return fmt.Errorf("marshal arguments: %w", err)
	}
	if err := json.Unmarshal(argBytes, input); err != nil {
		return fmt.Errorf("parse arguments: %w", err)
	}
	return nil
}

func handleProfileWorkload(logger zerolog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var input ProfileWorkloadInput
		if err := parseArguments(request, &input); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if input.Workload == "" {
			input.Workload = "fib"
		}

		const samplePace = 50 * time.Millisecond

		timer := adapter.NewCallTimer()
		watcher := adapter.NewHeapWatch(samplePace, logger)
		lines := adapter.NewLineTimer()

		target, err := workload.BuildTarget(input.Workload, input.Size, 4096, samplePace, timer, lines)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		coord := session.New(logger)
		if err := coord.Run(target, timer, watcher, lines); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		report, err := coord.Report()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		recs, err := coord.Recommendations()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if input.Database != "" {
			db, err := store.Open(input.Database, logger)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			defer func() { _ = db.Close() }()
			if err := db.SaveSession(ctx, report, recs); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}

		reportJSON, err := profile.Encode(report)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		recsJSON, err := analyze.EncodeRecommendations(recs)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		text := fmt.Sprintf("Report:\n%s\n\nRecommendations:\n%s\n", reportJSON, recsJSON)
		return mcp.NewToolResultText(text), nil
	}
}

func handleAnalyzeReport(logger zerolog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var input AnalyzeReportInput
		if err := parseArguments(request, &input); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		report, err := resolveReport(ctx, input, logger)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		matcher := analyze.NewMatcher(analyze.DefaultThresholds(), logger)
		recs := analyze.Synthesize(matcher.Match(report))

		recsJSON, err := analyze.EncodeRecommendations(recs)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(recsJSON)), nil
	}
}

func resolveReport(ctx context.Context, input AnalyzeReportInput, logger zerolog.Logger) (*profile.Report, error) {
	switch {
	case input.Path != "":
		data, err := os.ReadFile(input.Path)
		if err != nil {
			return nil, fmt.Errorf("read report %s: %w", input.Path, err)
		}
		return profile.Decode(data)
	case input.Database != "":
		db, err := store.Open(input.Database, logger)
		if err != nil {
			return nil, err
		}
		defer func() { _ = db.Close() }()

		sessionID := input.SessionID
		if sessionID == "" {
			sessions, err := db.ListSessions(ctx)
			if err != nil {
				return nil, err
			}
			if len(sessions) == 0 {
				return nil, fmt.Errorf("no sessions in %s", input.Database)
			}
			sessionID = sessions[0].SessionID
		}
		return db.LoadReport(ctx, sessionID)
	}
	return nil, fmt.Errorf("either path or database is required")
}

func handleListSessions(logger zerolog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var input ListSessionsInput
		if err := parseArguments(request, &input); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if input.Database == "" {
			return mcp.NewToolResultError("database is required"), nil
		}

		db, err := store.Open(input.Database, logger)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		defer func() { _ = db.Close() }()

		sessions, err := db.ListSessions(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out, err := json.MarshalIndent(sessions, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}
