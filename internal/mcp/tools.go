package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jamaly87/code-reader/internal/search"
)

// Tool definitions for the MCP server
func (s *Server) getTools() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "search_code",
			Description: "Search an indexed repository using natural language queries. Use this tool when the user asks questions like 'where is...', 'find...', 'show me...', or any question about locating specific code, functions, classes, or logic. Returns ranked code chunks with file paths, line ranges and relevance scores. The repository must have been indexed first (see get_task_status to check).",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Natural language search query describing what code to find. Examples: 'JWT token validation', 'database connection setup', 'error handling for API requests'.",
					},
					"identifier": map[string]interface{}{
						"type":        "string",
						"description": "Identifier of the indexed repository; its latest version is searched",
					},
					"job_id": map[string]interface{}{
						"type":        "string",
						"description": "Task id of a specific index version, as an alternative to identifier",
					},
					"limit": map[string]interface{}{
						"type":        "number",
						"description": "Maximum number of results to return (default: 10)",
						"default":     10,
					},
					"min_score": map[string]interface{}{
						"type":        "number",
						"description": "Minimum similarity score between 0 and 1 (default: 0.7)",
						"default":     0.7,
					},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "get_task_status",
			Description: "Get the status and progress of an indexing task. Use this tool when: (1) the user asks whether a repository is indexed or 'ready', (2) checking progress of a running indexing task, (3) before search_code on a repository whose state is unknown. Returns status, file counts, batch progress and percent complete.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"identifier": map[string]interface{}{
						"type":        "string",
						"description": "Identifier of the repository; the latest version is reported",
					},
					"job_id": map[string]interface{}{
						"type":        "string",
						"description": "Task id, as an alternative to identifier",
					},
				},
			},
		},
	}
}

// Tool handlers

func (s *Server) handleSearchCode(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return errorResult("query is required and must be a string"), nil
	}

	q := search.Query{
		Query:    query,
		Limit:    search.DefaultLimit,
		MinScore: search.DefaultMinScore,
	}
	if id, ok := args["job_id"].(string); ok {
		q.JobID = id
	}
	if ident, ok := args["identifier"].(string); ok {
		q.Identifier = ident
	}
	if limit, ok := args["limit"].(float64); ok {
		q.Limit = int(limit)
	}
	if minScore, ok := args["min_score"].(float64); ok {
		q.MinScore = minScore
	}

	results, err := s.searcher.Search(ctx, q)
	if err != nil {
		return errorResult(fmt.Sprintf("search failed: %v", err)), nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: formatSearchResults(results),
			},
		},
	}, nil
}

func (s *Server) handleGetTaskStatus(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	jobID, _ := args["job_id"].(string)
	identifier, _ := args["identifier"].(string)
	if jobID == "" && identifier == "" {
		return errorResult("either job_id or identifier is required"), nil
	}

	job, err := s.jobs.Resolve(ctx, jobID, identifier)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to get task status: %v", err)), nil
	}

	status := map[string]interface{}{
		"jobId":           job.JobID,
		"identifier":      job.Identifier,
		"version":         job.Version,
		"status":          job.Status,
		"totalFiles":      job.Progress.TotalFiles,
		"processedFiles":  job.Progress.ProcessedFiles,
		"currentBatch":    job.Progress.CurrentBatch,
		"totalBatches":    job.Progress.TotalBatches,
		"percentComplete": job.Progress.PercentComplete(),
	}
	if job.Error != "" {
		status["error"] = job.Error
	}

	return successResult(status), nil
}

// Helper functions

func successResult(data interface{}) *mcp.CallToolResult {
	jsonData, _ := json.MarshalIndent(data, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(jsonData),
			},
		},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: fmt.Sprintf("Error: %s", message),
			},
		},
		IsError: true,
	}
}

func formatSearchResults(results []search.Result) string {
	if len(results) == 0 {
		return "No results found."
	}

	var output strings.Builder
	output.WriteString(fmt.Sprintf("Found %d results:\n\n", len(results)))

	for i, result := range results {
		output.WriteString(fmt.Sprintf("%d. %s:%d-%d (score: %.3f)\n",
			i+1, result.RelativePath, result.StartLine, result.EndLine, result.Score))
		output.WriteString("```\n")
		output.WriteString(result.Content)
		if !strings.HasSuffix(result.Content, "\n") {
			output.WriteString("\n")
		}
		output.WriteString("```\n\n")
	}
	return strings.TrimRight(output.String(), "\n") + "\n"
}
