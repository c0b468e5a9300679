package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/botfleet/creditcore/internal/audit"
	"github.com/botfleet/creditcore/internal/config"
	"github.com/botfleet/creditcore/internal/httpserver"
	"github.com/botfleet/creditcore/internal/notifyqueue"
	"github.com/botfleet/creditcore/internal/platform"
	"github.com/botfleet/creditcore/internal/telemetry"
	"github.com/botfleet/creditcore/pkg/deletion"
	"github.com/botfleet/creditcore/pkg/fleet"
	"github.com/botfleet/creditcore/pkg/fleet/nodeagent"
	"github.com/botfleet/creditcore/pkg/gateway"
	"github.com/botfleet/creditcore/pkg/ledger"
	"github.com/botfleet/creditcore/pkg/meter"
	"github.com/botfleet/creditcore/pkg/notify"
	"github.com/botfleet/creditcore/pkg/payment"
	"github.com/botfleet/creditcore/pkg/snapshot"
	"github.com/botfleet/creditcore/pkg/vault"
)

const serviceVersion = "0.1.0"

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the appropriate mode (api or worker).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting creditcore",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, "creditcore", serviceVersion)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	deps, err := buildDeps(ctx, cfg, logger, db, rdb)
	if err != nil {
		return err
	}
	defer deps.auditWriter.Close()
	defer func() {
		if deps.nodeAgentClient != nil {
			if err := deps.nodeAgentClient.Close(); err != nil {
				logger.Error("closing node agent connection", "error", err)
			}
		}
	}()

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg, deps)
	case "worker":
		return runWorker(ctx, cfg, logger, deps)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// deps holds every domain component shared between api and worker modes,
// built once regardless of which mode is selected so that both a running
// API process and a running worker process see identical wiring.
type deps struct {
	auditWriter *audit.Writer

	ledgerStore *ledger.Store

	meterPipeline *meter.Pipeline

	rules             *gateway.RuleSet
	balanceExhausted  *gateway.BalanceExhaustedPublisher
	balanceCache      *gateway.BalanceCache
	gate              *gateway.Gate

	snapshotManager *snapshot.Manager
	objectStore     snapshot.ObjectStore

	nodeAgentClient *nodeagent.GRPCClient
	fleetStore      *fleet.Store
	fleetRegistry   *fleet.Registry
	nodeLost        *fleet.NodeLostPublisher
	orchestrator    *fleet.Orchestrator
	drainController *fleet.DrainController
	watchdog        *fleet.Watchdog

	paymentStore *payment.Store
	reconciler   *payment.Reconciler
	topupRunner  *payment.TopupRunner

	deletionExecutor *deletion.Executor

	vaultService *vault.Vault

	ledgerHandler    *ledger.Handler
	meterHandler     *meter.Handler
	gatewayHandler   *gateway.Handler
	snapshotHandler  *snapshot.Handler
	fleetHandler     *fleet.Handler
	paymentHandler   *payment.Handler
	deletionHandler  *deletion.Handler
	vaultHandler     *vault.Handler

	notifySink  notify.Sink
	notifyQueue *notifyqueue.Queue

	heartbeatWatchdogInterval time.Duration
	meterFlushInterval        time.Duration
	meterAggregateInterval    time.Duration
	meterPeriodLength         time.Duration
	meterLateArrivalGrace     time.Duration
	snapshotSweepInterval     time.Duration
	autoTopupInterval         time.Duration
}

// buildDeps constructs every domain component. Stores and services are
// built here, once, so api and worker modes share identical behavior for
// everything except which background loops and HTTP routes they run.
func buildDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) (*deps, error) {
	auditWriter := audit.NewWriter(db, logger)
	auditWriter.Start(ctx)

	notifySink := buildNotifySink(cfg, logger)
	notifyQueue := notifyqueue.NewQueue(db, rdb, notifySink, logger)

	// Module A/B: ledger.
	ledgerStore := ledger.NewStore(db)

	// Module C: meter pipeline.
	wal, err := meter.NewWAL(cfg.MeterWALPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening meter WAL: %w", err)
	}
	dlq, err := meter.NewDLQ(cfg.MeterDLQPath)
	if err != nil {
		return nil, fmt.Errorf("opening meter DLQ: %w", err)
	}
	meterStore := meter.NewStore(db)
	meterPipeline := meter.NewPipeline(wal, dlq, meterStore, rdb, logger, cfg.MeterMaxRetries)

	meterFlushInterval, err := time.ParseDuration(cfg.MeterFlushInterval)
	if err != nil {
		return nil, fmt.Errorf("parsing meter flush interval: %w", err)
	}
	meterAggregateInterval, err := time.ParseDuration(cfg.MeterAggregateInterval)
	if err != nil {
		return nil, fmt.Errorf("parsing meter aggregate interval: %w", err)
	}
	meterPeriodLength, err := time.ParseDuration(cfg.MeterPeriodLength)
	if err != nil {
		return nil, fmt.Errorf("parsing meter period length: %w", err)
	}
	meterLateArrivalGrace, err := time.ParseDuration(cfg.MeterLateArrivalGrace)
	if err != nil {
		return nil, fmt.Errorf("parsing meter late arrival grace: %w", err)
	}

	// Module E: gateway.
	rules, err := gateway.NewRuleSet(nil, cfg.GatewayDefaultMargin)
	if err != nil {
		return nil, fmt.Errorf("building gateway rule set: %w", err)
	}
	balanceExhausted := gateway.NewBalanceExhaustedPublisher()
	balanceCache := gateway.NewBalanceCache(rdb)
	gate := gateway.NewGate(ledgerStore, meterPipeline, rules, balanceExhausted, balanceCache, cfg.GatewayGraceBufferCents)

	balanceExhausted.Subscribe(func(ctx context.Context, tenantID uuid.UUID, newBalanceCents int64) {
		if err := notifySink.PostBillingAlert(ctx, notify.BillingAlert{
			TenantID: tenantID.String(),
			Title:    "tenant balance exhausted",
			Detail:   fmt.Sprintf("balance crossed to %d cents", newBalanceCents),
		}); err != nil {
			logger.Error("posting balance-exhausted alert", "error", err, "tenant_id", tenantID)
		}
	})

	// Module F: snapshot manager.
	objectStore, err := snapshot.NewFileObjectStore(cfg.SnapshotStorageRoot)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot object store: %w", err)
	}
	snapshotStore := snapshot.NewStore(db)
	snapshotManager := snapshot.NewManager(snapshotStore, objectStore, auditWriter, logger)

	snapshotSweepInterval, err := time.ParseDuration(cfg.SnapshotSweepInterval)
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot sweep interval: %w", err)
	}

	// Module G: fleet control. The client is constructed unconditionally;
	// an empty NodeAgentAddr simply fails every call with a dial error
	// that recovery and drain already handle as a per-item failure,
	// rather than risking a nil-interface panic on an unconfigured
	// deployment.
	if cfg.NodeAgentAddr == "" {
		logger.Warn("NODE_AGENT_ADDR not set; node agent RPCs will fail")
	}
	nodeAgentClient := nodeagent.NewGRPCClient(cfg.NodeAgentAddr, 10*time.Second)

	fleetStore := fleet.NewStore(db)
	fleetRegistry := fleet.NewRegistry(fleetStore, logger)
	nodeLost := fleet.NewNodeLostPublisher()
	orchestrator := fleet.NewOrchestrator(fleetStore, nodeAgentClient, logger)
	drainController := fleet.NewDrainController(fleetStore, nodeAgentClient, logger)

	nodeLost.Subscribe(orchestrator.OnNodeLost)
	nodeLost.Subscribe(func(ctx context.Context, nodeID string) {
		if err := notifySink.PostNodeLost(ctx, notify.NodeLostAlert{NodeID: nodeID, LastHeartbeatAt: time.Now().UTC()}); err != nil {
			logger.Error("posting node-lost alert", "error", err, "node_id", nodeID)
		}
	})

	heartbeatTimeout, err := time.ParseDuration(cfg.HeartbeatTimeout)
	if err != nil {
		return nil, fmt.Errorf("parsing heartbeat timeout: %w", err)
	}
	heartbeatWatchdogInterval, err := time.ParseDuration(cfg.HeartbeatWatchdogInterval)
	if err != nil {
		return nil, fmt.Errorf("parsing heartbeat watchdog interval: %w", err)
	}
	watchdog := fleet.NewWatchdog(fleetStore, nodeLost, rdb, logger, heartbeatTimeout)

	// Module D: payment reconciliation. No vendor SDK is wired into this
	// repo (spec.md §6, "ships no vendor SDK call site"); DisabledProcessor
	// keeps the webhook endpoint and auto-topup loop running so they are
	// ready the moment an operator deploys a concrete Processor, rather
	// than omitting this module from the running system entirely.
	var processor payment.Processor = payment.DisabledProcessor{}
	paymentStore := payment.NewStore(db)
	reconciler := payment.NewReconciler(processor, ledgerStore, paymentStore, logger)
	topupRunner := payment.NewTopupRunner(processor, ledgerStore, paymentStore, notifySink, logger)

	autoTopupInterval, err := time.ParseDuration(cfg.AutoTopupInterval)
	if err != nil {
		return nil, fmt.Errorf("parsing auto top-up interval: %w", err)
	}

	// Module H: deletion executor. The payment processor customer delete
	// step uses the same narrow deletion.Processor interface; nil disables
	// that one best-effort step rather than erroring the whole purge.
	deletionExecutor := deletion.NewExecutor(db, objectStore, nil, auditWriter, logger)

	// Module I: credential vault.
	if cfg.VaultMasterSecret == "" {
		logger.Warn("VAULT_MASTER_SECRET not set; vault keys are derived from an empty secret")
	}
	vaultStore := vault.NewStore(db)
	vaultService := vault.NewVault(vaultStore, []byte(cfg.VaultMasterSecret), auditWriter, logger)

	ledgerHandler := ledger.NewHandler(ledgerStore, logger, auditWriter)
	meterHandler := meter.NewHandler(meterPipeline, logger)
	gatewayHandler := gateway.NewHandler(gate, logger)
	snapshotHandler := snapshot.NewHandler(snapshotManager, logger)
	fleetHandler := fleet.NewHandler(fleetRegistry, orchestrator, drainController, logger)
	paymentHandler := payment.NewHandler(reconciler, processor, logger)
	deletionHandler := deletion.NewHandler(deletionExecutor, logger)
	vaultHandler := vault.NewHandler(vaultService, logger)

	return &deps{
		auditWriter: auditWriter,

		ledgerStore: ledgerStore,

		meterPipeline: meterPipeline,

		rules:            rules,
		balanceExhausted: balanceExhausted,
		balanceCache:     balanceCache,
		gate:             gate,

		snapshotManager: snapshotManager,
		objectStore:     objectStore,

		nodeAgentClient: nodeAgentClient,
		fleetStore:      fleetStore,
		fleetRegistry:   fleetRegistry,
		nodeLost:        nodeLost,
		orchestrator:    orchestrator,
		drainController: drainController,
		watchdog:        watchdog,

		paymentStore: paymentStore,
		reconciler:   reconciler,
		topupRunner:  topupRunner,

		deletionExecutor: deletionExecutor,

		vaultService: vaultService,

		ledgerHandler:   ledgerHandler,
		meterHandler:    meterHandler,
		gatewayHandler:  gatewayHandler,
		snapshotHandler: snapshotHandler,
		fleetHandler:    fleetHandler,
		paymentHandler:  paymentHandler,
		deletionHandler: deletionHandler,
		vaultHandler:    vaultHandler,

		notifySink:  notifySink,
		notifyQueue: notifyQueue,

		heartbeatWatchdogInterval: heartbeatWatchdogInterval,
		meterFlushInterval:        meterFlushInterval,
		meterAggregateInterval:    meterAggregateInterval,
		meterPeriodLength:         meterPeriodLength,
		meterLateArrivalGrace:     meterLateArrivalGrace,
		snapshotSweepInterval:     snapshotSweepInterval,
		autoTopupInterval:         autoTopupInterval,
	}, nil
}

// buildNotifySink wires pkg/notify's Slack adapter if configured, matching
// the teacher's "disabled if unconfigured, just log it" idiom.
func buildNotifySink(cfg *config.Config, logger *slog.Logger) notify.Sink {
	sink := notify.NewSlackSink(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	if sink.IsEnabled() {
		logger.Info("slack notification sink enabled", "channel", cfg.SlackAlertChannel)
		return sink
	}
	logger.Info("slack notification sink disabled (SLACK_BOT_TOKEN not set)")
	return notify.NoopSink{}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry, deps *deps) error {
	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg)

	srv.APIRouter.Mount("/ledger", deps.ledgerHandler.Routes())
	srv.APIRouter.Mount("/meter", deps.meterHandler.Routes())
	srv.APIRouter.Mount("/gateway", deps.gatewayHandler.Routes())
	srv.APIRouter.Mount("/snapshots", deps.snapshotHandler.Routes())
	srv.APIRouter.Mount("/fleet", deps.fleetHandler.Routes())
	srv.APIRouter.Mount("/payment", deps.paymentHandler.Routes())
	srv.APIRouter.Mount("/admin/tenants", deps.deletionHandler.Routes())
	srv.APIRouter.Mount("/admin/credentials", deps.vaultHandler.Routes())
	srv.APIRouter.Mount("/admin/audit-log", audit.NewHandler(db).Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runWorker starts every periodic background loop (spec.md §4.C, §4.F,
// §4.G, §4.D). Each loop is its own goroutine, the same shape as the
// teacher's roster.RunScheduleTopUpLoop worker.
func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *deps) error {
	logger.Info("worker started")

	go deps.meterPipeline.RunFlushLoop(ctx, deps.meterFlushInterval)
	go deps.meterPipeline.RunAggregateLoop(ctx, deps.meterAggregateInterval, deps.meterPeriodLength, deps.meterLateArrivalGrace)
	go deps.snapshotManager.RunRetentionSweepLoop(ctx, deps.snapshotSweepInterval)
	go deps.watchdog.RunLoop(ctx, deps.heartbeatWatchdogInterval)
	go deps.topupRunner.RunLoop(ctx, deps.autoTopupInterval)

	<-ctx.Done()
	logger.Info("worker stopped")
	return nil
}
