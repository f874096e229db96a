package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rcliao/meridian/internal/distribution"
	"github.com/rcliao/meridian/internal/domain"
	"github.com/rcliao/meridian/internal/selection"
)

// ProjectStore is the project lookup the tools need. Both storage backends
// implement it.
type ProjectStore interface {
	CreateProject(project *domain.Project) error
	GetProject(id string) (*domain.Project, error)
}

// Server exposes distribution and context selection as MCP tools.
type Server struct {
	tasks       domain.TaskRepository
	agents      domain.AgentRepository
	projects    ProjectStore
	distributor *distribution.Service
	selector    *selection.IntelligentContextSelector
	headers     *selection.HeaderGenerator
	strategy    domain.DistributionStrategy
	logger      *slog.Logger
}

type Option func(*Server)

// WithDefaultStrategy sets the strategy used when distribute_tasks gets none.
func WithDefaultStrategy(st domain.DistributionStrategy) Option {
	return func(s *Server) { s.strategy = st }
}

func WithHeaderGenerator(g *selection.HeaderGenerator) Option {
	return func(s *Server) { s.headers = g }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func NewServer(tasks domain.TaskRepository, agents domain.AgentRepository, projects ProjectStore,
	distributor *distribution.Service, selector *selection.IntelligentContextSelector, opts ...Option) *Server {
	s := &Server{
		tasks:       tasks,
		agents:      agents,
		projects:    projects,
		distributor: distributor,
		selector:    selector,
		strategy:    domain.StrategyHybrid,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.headers == nil {
		s.headers = selection.NewHeaderGenerator(0)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// NewMCPServer builds an mcp-go server with every tool registered.
func NewMCPServer(name, version string, s *Server) *server.MCPServer {
	ms := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.Register(ms)
	return ms
}

// Register adds the tools to an existing MCP server.
func (s *Server) Register(ms *server.MCPServer) {
	ms.AddTool(createProjectTool(), s.handleCreateProject)
	ms.AddTool(createTaskTool(), s.handleCreateTask)
	ms.AddTool(registerAgentTool(), s.handleRegisterAgent)
	ms.AddTool(distributeTasksTool(), s.handleDistributeTasks)
	ms.AddTool(distributionAnalyticsTool(), s.handleDistributionAnalytics)
	ms.AddTool(selectContextTool(), s.handleSelectContext)
	ms.AddTool(selectionStatsTool(), s.handleSelectionStats)
	ms.AddTool(optimizeSelectionTool(), s.handleOptimizeSelection)
	ms.AddTool(recordToolUsageTool(), s.handleRecordToolUsage)
	ms.AddTool(endSessionTool(), s.handleEndSession)
}

// LoadContextPool refreshes the selector's pool from stored tasks, plus the
// project itself when projectID names a known project.
func (s *Server) LoadContextPool(ctx context.Context, projectID string) (int, error) {
	filter := domain.TaskFilter{}
	var project *domain.Project
	if projectID != "" {
		filter.ProjectID = &projectID
		if s.projects != nil {
			if p, err := s.projects.GetProject(projectID); err == nil {
				project = p
			}
		}
	}

	tasks, err := s.tasks.Find(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to load tasks: %w", err)
	}

	items := make([]selection.ContextItem, 0, len(tasks)+1)
	if project != nil {
		items = append(items, s.headers.ProjectContextItem(project))
	}
	for _, t := range tasks {
		items = append(items, s.headers.TaskContext(t, project))
	}
	if err := s.selector.LoadAvailableContexts(items); err != nil {
		return 0, fmt.Errorf("failed to load contexts: %w", err)
	}
	return len(items), nil
}

func jsonResult(v any) (*mcpgo.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcpgo.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcpgo.NewToolResultText(string(data)), nil
}

// render returns JSON when the caller asks for it and markdown otherwise.
func render(req mcpgo.CallToolRequest, v any, markdown func() string) (*mcpgo.CallToolResult, error) {
	if strings.EqualFold(req.GetString("format", "markdown"), "json") {
		return jsonResult(v)
	}
	return mcpgo.NewToolResultText(markdown()), nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func withFormat() mcpgo.ToolOption {
	return mcpgo.WithString("format",
		mcpgo.Description("Output format: markdown (default) or json"),
		mcpgo.Enum("markdown", "json"),
	)
}
