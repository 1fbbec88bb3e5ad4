package api

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	"github.com/arre-ops/arre_server/cmd/config"
	"github.com/arre-ops/arre_server/cmd/utils"
	"github.com/arre-ops/arre_server/services/alerts"
	"github.com/arre-ops/arre_server/services/auth"
	"github.com/arre-ops/arre_server/services/autonomous"
	"github.com/arre-ops/arre_server/services/dedup"
	"github.com/arre-ops/arre_server/services/dispatch"
	"github.com/arre-ops/arre_server/services/flags"
	"github.com/arre-ops/arre_server/services/ingest"
	"github.com/arre-ops/arre_server/services/llm"
	"github.com/arre-ops/arre_server/services/matcher"
	"github.com/arre-ops/arre_server/services/selector"
	"github.com/arre-ops/arre_server/services/tasks"
	"github.com/arre-ops/arre_server/services/workspaces"
	"github.com/redis/go-redis/v9"
)

type ArreServer struct {
	cfg   config.Config
	db    *sql.DB
	redis *redis.Client
}

func NewArreServer(cfg config.Config, db *sql.DB, redisClient *redis.Client) *ArreServer {
	return &ArreServer{
		cfg:   cfg,
		db:    db,
		redis: redisClient,
	}
}

func (a *ArreServer) Run() error {
	router := http.NewServeMux()

	// Initialize storages
	flagStorage := flags.NewStorage(a.db)
	alertStorage := alerts.NewStorage(a.db)
	workspaceStorage := workspaces.NewStorage(a.db)

	if err := flagStorage.InitTables(); err != nil {
		log.Printf("Warning: Failed to initialize flag tables: %v", err)
	}
	if err := alertStorage.InitTables(); err != nil {
		log.Printf("Warning: Failed to initialize alert tables: %v", err)
	}
	if err := workspaceStorage.InitTables(); err != nil {
		log.Printf("Warning: Failed to initialize workspace tables: %v", err)
	}

	workspaceManager := workspaces.NewManager(workspaceStorage, a.cfg.DefaultWorkspace)
	if err := workspaceManager.Initialize(); err != nil {
		log.Printf("Warning: Workspace manager initialization failed: %v", err)
	}

	// Admin flags: snapshot store with a background refresher
	flagStore, err := flags.NewStore(context.Background(), flagStorage)
	if err != nil {
		return err
	}
	flagStore.StartRefresher(0)
	defer flagStore.Stop()

	// Outbound clients
	taskClient := tasks.NewClient(a.cfg.TaskStoreURL)
	agentClient := llm.NewClient(a.cfg.LLMAgentURL, a.cfg.LLMSelectTimeout, a.cfg.LLMPlanTimeout)

	// Routing components
	resolver := auth.NewResolver(a.cfg.AuthMode, a.cfg.APIToken, a.cfg.AdminToken)
	normalizer := ingest.NewNormalizer()
	triggerIndex := matcher.NewIndex(taskClient, a.cfg.MatcherStaleness)
	dedupWindow := dedup.NewWindow(a.redis)
	submitter := dispatch.NewSubmitter(taskClient)
	taskSelector := selector.NewSelector(taskClient, agentClient,
		a.cfg.VectorTopK, a.cfg.VectorCandidatePool, a.cfg.SimilarityFloor)
	launcher := autonomous.NewLauncher(agentClient, taskClient, submitter)

	engine := dispatch.NewEngine(flagStore, triggerIndex, dedupWindow, submitter,
		taskSelector, launcher, alertStorage, workspaceManager, a.cfg.AIDedupInterval)

	pool := dispatch.NewPool(engine, dispatch.PoolConfig{})
	pool.Start()
	defer pool.Shutdown()

	// Warm the trigger index so the first alert does not pay a full list.
	if err := triggerIndex.Refresh(context.Background()); err != nil {
		log.Printf("Warning: Initial trigger index refresh failed: %v", err)
	}

	// Initialize handlers
	flagHandler := flags.NewHandler(flagStore, resolver)
	alertHandler := alerts.NewHandler(alertStorage, resolver)
	workspaceHandler := workspaces.NewHandler(workspaceManager, resolver)
	dispatchHandler := dispatch.NewHandler(pool, normalizer, resolver, flagStore,
		alertStorage, a.cfg.ProcessDeadline, a.cfg.AutonomousDeadline)

	// Register routes

	// Health check
	utils.Endpoint(router, "GET", "/health", dispatchHandler.Health)

	// Alert ingestion
	utils.Endpoint(router, "POST", "/processAlert", dispatchHandler.ProcessAlert)

	// Admin flags
	utils.Endpoint(router, "POST", "/setFlags", flagHandler.SetFlags)
	utils.Endpoint(router, "POST", "/getAdminSettingsFlags", flagHandler.GetFlags)
	utils.Endpoint(router, "GET", "/getAdminSettingsFlags", flagHandler.GetFlags)

	// Alert records
	utils.Endpoint(router, "GET", "/v1/alerts", alertHandler.Search)
	utils.Endpoint(router, "GET", "/v1/alerts/stats", alertHandler.GetStats)
	utils.EndpointWithPathParams(router, "GET", "/v1/alerts/{id}", "id", alertHandler.GetByID)

	// Workspaces
	utils.Endpoint(router, "GET", "/v1/workspaces", workspaceHandler.List)
	utils.Endpoint(router, "POST", "/v1/workspaces", workspaceHandler.Create)
	utils.EndpointWithPathParams(router, "DELETE", "/v1/workspaces/{id}", "id", workspaceHandler.Delete)

	// Routing pool metrics
	utils.Endpoint(router, "GET", "/v1/dispatch/stats", dispatchHandler.GetStats)

	log.Printf(`
		ARRE listening on %s

		Available endpoints:
		  GET  /health
		  POST /processAlert
		  POST /setFlags
		  POST /getAdminSettingsFlags (GET alias available)
		  GET  /v1/alerts, /v1/alerts/{id}, /v1/alerts/stats
		  GET  /v1/workspaces
		  POST /v1/workspaces
		  GET  /v1/dispatch/stats
	`, a.cfg.ListenAddr)
	return http.ListenAndServe(a.cfg.ListenAddr, router)
}
