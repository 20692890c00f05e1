package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"content-harvester/pkg/lifecycle"
	"content-harvester/pkg/process"
	"content-harvester/pkg/rules"
)

const (
	serverName    = "content-harvester"
	serverVersion = "1.0.0"
)

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	Service   *lifecycle.Service
	Rules     *rules.Repository
	Analyzer  *process.Analyzer
	ExportDir string
	Transport string // "stdio" or "sse"
	Port      int
	Logger    *logrus.Logger
}

// Server exposes the harvester operations as MCP tools
type Server struct {
	mcpServer  *server.MCPServer
	cfg        *ServerConfig
	log        *logrus.Entry
	jobManager *JobManager
	toolCount  int
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("Service is required")
	}
	if cfg.Rules == nil {
		return nil, fmt.Errorf("Rules is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = "./exports"
	}

	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithLogging(),
	)

	s := &Server{
		mcpServer:  mcpServer,
		cfg:        cfg,
		log:        cfg.Logger.WithField("component", "mcp"),
		jobManager: NewJobManager(),
	}

	s.registerTools()

	return s, nil
}

func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcpServer.AddTool(tool, handler)
	s.toolCount++
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	// Search
	s.addTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List the search engines results can be collected from"),
	), s.handleListSources)

	s.addTool(mcp.NewTool("search",
		mcp.WithDescription("Search one source for a keyword. With save=true the results are stored as crawl results."),
		mcp.WithString("keyword",
			mcp.Description("Search keyword (optional only for sources that allow browsing without one)"),
		),
		mcp.WithString("source",
			mcp.Required(),
			mcp.Description("Source name as returned by list_sources"),
		),
		mcp.WithNumber("page",
			mcp.Description("Page number, starting at 1 (default: 1)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 10, max: 100)"),
		),
		mcp.WithBoolean("save",
			mcp.Description("Persist the results as crawl results"),
		),
	), s.handleSearch)

	s.addTool(mcp.NewTool("collect_keywords",
		mcp.WithDescription("Start a background collection of several keywords across sources. Returns immediately with a job ID."),
		mcp.WithString("keywords",
			mcp.Required(),
			mcp.Description("Comma-separated keywords"),
		),
		mcp.WithString("sources",
			mcp.Description("Comma-separated sources (default: all)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Results per keyword and source (default: 10)"),
		),
		mcp.WithBoolean("depth_crawl",
			mcp.Description("Depth crawl every saved result"),
		),
	), s.handleCollectKeywords)

	// Detail extraction and rules
	s.addTool(mcp.NewTool("extract_detail",
		mcp.WithDescription("Fetch a page and extract its title, content, media and links"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL to extract"),
		),
		mcp.WithString("rule_id",
			mcp.Description("Site rule to apply (optional; heuristics are used otherwise)"),
		),
		mcp.WithString("raw_headers",
			mcp.Description("Extra request headers as a JSON object or 'Key: value' lines"),
		),
	), s.handleExtractDetail)

	s.addTool(mcp.NewTool("repair_rule",
		mcp.WithDescription("Re-derive the selectors of a site rule from a page whose title is known"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("A page of the rule's site"),
		),
		mcp.WithString("rule_id",
			mcp.Required(),
			mcp.Description("The rule to repair"),
		),
		mcp.WithString("expected_title",
			mcp.Required(),
			mcp.Description("The title the page is known to have"),
		),
	), s.handleRepairRule)

	s.addTool(mcp.NewTool("list_rules",
		mcp.WithDescription("List site rules"),
		mcp.WithString("keyword",
			mcp.Description("Filter by site name or URL"),
		),
		mcp.WithNumber("page",
			mcp.Description("Page number (default: 1)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Page size (default: 20)"),
		),
	), s.handleListRules)

	s.addTool(mcp.NewTool("create_rule",
		mcp.WithDescription("Create a site rule"),
		mcp.WithString("site_name", mcp.Required(), mcp.Description("Source name the rule applies to")),
		mcp.WithString("site_url", mcp.Required(), mcp.Description("Site home page")),
		mcp.WithString("title_selector", mcp.Required(), mcp.Description("CSS selector of the title")),
		mcp.WithString("content_selector", mcp.Required(), mcp.Description("CSS selector of the content")),
		mcp.WithString("raw_headers", mcp.Description("Request headers as a JSON object or 'Key: value' lines")),
		mcp.WithBoolean("is_active", mcp.Description("Whether the rule is used (default: true)")),
	), s.handleCreateRule)

	s.addTool(mcp.NewTool("update_rule",
		mcp.WithDescription("Replace a site rule"),
		mcp.WithString("rule_id", mcp.Required(), mcp.Description("The rule to update")),
		mcp.WithString("site_name", mcp.Required(), mcp.Description("Source name the rule applies to")),
		mcp.WithString("site_url", mcp.Required(), mcp.Description("Site home page")),
		mcp.WithString("title_selector", mcp.Required(), mcp.Description("CSS selector of the title")),
		mcp.WithString("content_selector", mcp.Required(), mcp.Description("CSS selector of the content")),
		mcp.WithString("raw_headers", mcp.Description("Request headers as a JSON object or 'Key: value' lines")),
		mcp.WithBoolean("is_active", mcp.Description("Whether the rule is used (default: true)")),
	), s.handleUpdateRule)

	s.addTool(mcp.NewTool("delete_rule",
		mcp.WithDescription("Delete a site rule"),
		mcp.WithString("rule_id", mcp.Required(), mcp.Description("The rule to delete")),
	), s.handleDeleteRule)

	// Crawl results
	s.addTool(mcp.NewTool("depth_crawl",
		mcp.WithDescription("Start a background depth crawl of crawl results. Returns immediately with a job ID."),
		mcp.WithString("ids",
			mcp.Required(),
			mcp.Description("Comma-separated crawl result IDs"),
		),
	), s.handleDepthCrawl)

	s.addTool(mcp.NewTool("recrawl",
		mcp.WithDescription("Depth crawl one result again, replacing its stored detail"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Crawl result ID")),
	), s.handleRecrawl)

	s.addTool(mcp.NewTool("get_job_status",
		mcp.WithDescription("Get the status of a background job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by depth_crawl or collect_keywords"),
		),
	), s.handleGetJobStatus)

	s.addTool(mcp.NewTool("store_results",
		mcp.WithDescription("Mark crawl results as stored"),
		mcp.WithString("ids", mcp.Required(), mcp.Description("Comma-separated crawl result IDs")),
	), s.handleStoreResults)

	s.addTool(mcp.NewTool("delete_results",
		mcp.WithDescription("Delete crawl results and their depth results"),
		mcp.WithString("ids", mcp.Required(), mcp.Description("Comma-separated crawl result IDs")),
	), s.handleDeleteResults)

	s.addTool(mcp.NewTool("list_results",
		mcp.WithDescription("List crawl results, newest first"),
		mcp.WithString("keyword", mcp.Description("Substring of keyword, title or summary")),
		mcp.WithString("source", mcp.Description("Only results from this source")),
		mcp.WithBoolean("depth_crawled", mcp.Description("Filter on depth crawl state")),
		mcp.WithBoolean("is_stored", mcp.Description("Filter on stored state")),
		mcp.WithNumber("page", mcp.Description("Page number (default: 1)")),
		mcp.WithNumber("limit", mcp.Description("Page size (default: 20, max: 100)")),
	), s.handleListResults)

	s.addTool(mcp.NewTool("get_result",
		mcp.WithDescription("Get a crawl result with its depth result"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Crawl result ID")),
	), s.handleGetResult)

	s.addTool(mcp.NewTool("update_result",
		mcp.WithDescription("Edit the keyword, title, summary, cover or stored flag of a crawl result"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Crawl result ID")),
		mcp.WithString("keyword", mcp.Description("New keyword")),
		mcp.WithString("title", mcp.Description("New title (cannot be empty)")),
		mcp.WithString("summary", mcp.Description("New summary")),
		mcp.WithString("cover", mcp.Description("New cover image URL")),
		mcp.WithBoolean("is_stored", mcp.Description("New stored flag")),
	), s.handleUpdateResult)

	s.addTool(mcp.NewTool("get_chunks",
		mcp.WithDescription("Split the markdown of a depth-crawled result into token-bounded chunks"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Crawl result ID")),
	), s.handleGetChunks)

	s.addTool(mcp.NewTool("stats",
		mcp.WithDescription("Totals, top keywords and results per day for the last week"),
	), s.handleStats)

	s.addTool(mcp.NewTool("export_results",
		mcp.WithDescription("Export crawl results to an xlsx workbook"),
		mcp.WithString("keyword", mcp.Description("Substring of keyword, title or summary")),
		mcp.WithString("source", mcp.Description("Only results from this source")),
	), s.handleExportResults)

	s.log.Infof("Registered %d MCP tools", s.toolCount)
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "stdio":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		sseServer := server.NewSSEServer(s.mcpServer)
		return sseServer.Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown cancels running jobs
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	s.jobManager.CancelAll()
	return nil
}
