package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/relfield/internal/fieldconfig"
	"github.com/kalambet/relfield/internal/jira"
	"github.com/kalambet/relfield/internal/metrics"
	"github.com/kalambet/relfield/internal/search"
	"github.com/kalambet/relfield/internal/surface"
	"github.com/kalambet/relfield/internal/validator"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Parser   validator.Parser
	Searcher search.Searcher
	Issues   surface.IssueFetcher
	Resolver fieldconfig.Resolver
	// FieldID is the field whose configuration scopes search_issues when no
	// jql argument is given.
	FieldID  string
	SiteURL  string
	PageSize int
	Metrics  *metrics.Metrics
}

// NewMCPServer creates an MCP server with the relfield tools registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"relfield",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("relfield: validate JQL, search Jira issues and read the related-issue field configuration."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("validate_jql",
			mcp.WithDescription("Validate a JQL query against Jira and report the first error, if any."),
			mcp.WithString("query", mcp.Description("JQL query to validate"), mcp.Required()),
		),
		mcpValidateJQL(deps),
	)

	s.AddTool(
		mcp.NewTool("search_issues",
			mcp.WithDescription("Search issues by summary or key, restricted by the field's configured JQL."),
			mcp.WithString("term", mcp.Description("Text typed by the user; empty lists all matching issues")),
			mcp.WithString("jql", mcp.Description("Base JQL filter; defaults to the field's configuration")),
		),
		mcpSearchIssues(deps),
	)

	s.AddTool(
		mcp.NewTool("get_issue",
			mcp.WithDescription("Fetch one issue by id or key."),
			mcp.WithString("key", mcp.Description("Issue id or key, e.g. PROJ-123"), mcp.Required()),
		),
		mcpGetIssue(deps),
	)

	s.AddTool(
		mcp.NewTool("get_field_configuration",
			mcp.WithDescription("Read the stored configuration (JQL and display name) of the field."),
			mcp.WithString("field_id", mcp.Description("Custom field id; defaults to the configured field")),
		),
		mcpGetFieldConfiguration(deps),
	)

	return s
}

func mcpValidateJQL(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		v := validator.New(deps.Parser, validator.Options{Metrics: deps.Metrics})
		defer v.Close()
		st := v.Validate(ctx, query)

		return mcpJSON(map[string]any{
			"query":  query,
			"valid":  st.Phase == validator.Valid,
			"phase":  st.Phase.String(),
			"reason": st.Reason,
		})
	}
}

func mcpSearchIssues(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		term := req.GetString("term", "")
		base := req.GetString("jql", "")
		if base == "" {
			cfg, err := fieldconfig.NewStore(deps.Resolver).Load(ctx, deps.FieldID)
			if err != nil {
				return mcpError(fmt.Sprintf("no base query: %v", err)), nil
			}
			base = cfg.JQL
		}

		c := search.New(deps.Searcher, search.Options{PageSize: deps.PageSize, Metrics: deps.Metrics})
		defer c.Close()
		items, err := c.Search(ctx, base, term)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if items == nil {
			items = []search.Item{}
		}
		return mcpJSON(items)
	}
}

func mcpGetIssue(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return mcpError("key is required"), nil
		}

		issue, err := deps.Issues.GetIssue(ctx, key)
		if errors.Is(err, jira.ErrNotFound) {
			return mcpError("issue not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("error loading issue details: %v", err)), nil
		}

		view := surface.IssueView{
			Key:      issue.Key,
			Summary:  issue.Fields.Summary,
			TypeName: issue.TypeName(),
		}
		if issue.Fields.IssueType != nil {
			view.IconURL = issue.Fields.IssueType.IconURL
		}
		if deps.SiteURL != "" {
			view.URL = surface.IssueURL(deps.SiteURL, issue.Key)
		}
		return mcpJSON(view)
	}
}

func mcpGetFieldConfiguration(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		fieldID := req.GetString("field_id", deps.FieldID)
		res, err := deps.Resolver.GetFieldConfiguration(ctx, fieldID)
		if err != nil {
			return mcpError(fmt.Sprintf("resolver failed: %v", err)), nil
		}
		if !res.Success {
			return mcpError(res.Error), nil
		}
		return mcpJSON(res.Configuration)
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
