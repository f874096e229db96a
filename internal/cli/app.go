package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/rcliao/meridian/internal/config"
	"github.com/rcliao/meridian/internal/coordination"
	"github.com/rcliao/meridian/internal/distribution"
	"github.com/rcliao/meridian/internal/domain"
	"github.com/rcliao/meridian/internal/mcp"
	"github.com/rcliao/meridian/internal/search"
	"github.com/rcliao/meridian/internal/selection"
	"github.com/rcliao/meridian/internal/storage"
)

// app is the composition root shared by every command.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	tasks       domain.TaskRepository
	agents      domain.AgentRepository
	distributor *distribution.Service
	selector    *selection.IntelligentContextSelector
	server      *mcp.Server
	closeStore  func() error
}

// newApp loads the config at path and wires storage and services. Logs go to
// logOut so that stdout stays free for command output and the MCP transport.
func newApp(path string, logOut io.Writer) (*app, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return buildApp(cfg, logOut)
}

func buildApp(cfg *config.Config, logOut io.Writer) (*app, error) {
	logger, err := cfg.Log.NewLogger(logOut)
	if err != nil {
		return nil, err
	}
	selCfg, err := cfg.SelectorConfig()
	if err != nil {
		return nil, err
	}
	strategy, err := cfg.Strategy()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, closeStore: func() error { return nil }}

	var projects mcp.ProjectStore
	switch cfg.Storage.Driver {
	case "memory":
		store := storage.NewMemoryStorage()
		a.tasks, a.agents, projects = store.Tasks(), store.Agents(), store
	case "sqlite":
		store, err := storage.OpenSQLite(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		a.tasks, a.agents, projects = store.Tasks(), store.Agents(), store
		a.closeStore = store.Close
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	coord := coordination.NewService(a.tasks, a.agents, logger,
		coordination.WithUserID(cfg.Distribution.UserID),
	)
	a.distributor = distribution.NewService(a.tasks, a.agents, coord,
		distribution.WithUserID(cfg.Distribution.UserID),
		distribution.WithLogger(logger),
	)
	a.selector = selection.NewIntelligentContextSelector(selCfg,
		selection.WithMatcher(search.NewSemanticIndex(cfg.Selection.EmbeddingDimensions)),
		selection.WithPrioritizer(selection.NewContextPrioritizer(cfg.PrioritizerConfig())),
		selection.WithPredictor(selection.NewPatternPredictor(cfg.Selection.MaxPredictions)),
		selection.WithLogger(logger),
	)
	a.server = mcp.NewServer(a.tasks, a.agents, projects, a.distributor, a.selector,
		mcp.WithDefaultStrategy(strategy),
		mcp.WithHeaderGenerator(selection.NewHeaderGenerator(cfg.Selection.HeaderLength)),
		mcp.WithLogger(logger),
	)
	return a, nil
}

func (a *app) Close() error {
	return a.closeStore()
}
