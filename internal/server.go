package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/dlukic/liftlab/internal/analytics"
	"github.com/dlukic/liftlab/internal/auth"
	"github.com/dlukic/liftlab/internal/cache"
	"github.com/dlukic/liftlab/internal/config"
	"github.com/dlukic/liftlab/internal/dataset"
	"github.com/dlukic/liftlab/internal/db"
	"github.com/dlukic/liftlab/internal/middleware"
	"github.com/dlukic/liftlab/internal/overview"
	"github.com/dlukic/liftlab/internal/telemetry/metrics"
	"github.com/dlukic/liftlab/internal/telemetry/tracing"
	"github.com/dlukic/liftlab/pkg"
)

const aggregationCacheTTL = 15 * time.Minute

// datasetSource is satisfied by both the postgres repo and the
// in-memory csv store.
type datasetSource interface {
	ListAll(ctx context.Context, criteria dataset.Criteria) ([]dataset.PerformanceRecord, error)
	AthleteHistory(ctx context.Context, athleteID string, yearFrom, yearTo *int) ([]dataset.PerformanceRecord, error)
	ListAthletes(ctx context.Context, prefix string, limit int) ([]string, error)
	CountRecords(ctx context.Context) (int, error)
	FilterOptions(ctx context.Context) (*dataset.FilterOptions, error)
}

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config *config.Config
	dbPool *pgxpool.Pool  // nil when serving from the csv snapshot
	store  *dataset.Store // nil when serving from postgres
	source datasetSource

	redisClient  *redis.Client
	loginChecker *auth.LoginChecker
	authService  *auth.Service

	aggregationCache   *cache.Redis
	filterOptionsCache *cache.FilterOptionsCache

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	VersionInfo             string
	AdminUsername           string
	AdminPasswordHash       string
	RedisPassword           string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	var extraCollectors []prometheus.Collector
	var dbPool *pgxpool.Pool
	var store *dataset.Store
	var source datasetSource

	switch params.Config.DataSource {
	case "postgres":
		pool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
			DBHost:         params.Config.PostgresHost,
			DBPort:         params.Config.PostgresPort,
			DBName:         params.Config.PostgresDBName,
			TracingEnabled: params.HoneycombTracingEnabled,
		})
		if err != nil {
			return nil, fmt.Errorf("new db pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			log.Warnf("failed to ping db: %s", err)
		}
		extraCollectors = append(extraCollectors, pgxpoolprometheus.NewCollector(
			pool,
			map[string]string{"db_name": params.Config.PostgresDBName},
		))
		dbPool = pool
		source = dataset.NewRepo(pool)
	case "csv":
		s, err := dataset.NewStore(params.Config.SnapshotCsvPath)
		if err != nil {
			return nil, fmt.Errorf("new dataset store: %w", err)
		}
		store = s
		source = s
	default:
		return nil, fmt.Errorf("unknown data source: %s", params.Config.DataSource)
	}

	promRegistry := metrics.SetupPrometheus(extraCollectors...)
	metricsManager := metrics.NewManager("liftlab", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})
	if params.HoneycombTracingEnabled {
		rdb.AddHook(redisotel.NewTracingHook())
	}

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	authService := auth.NewService(&auth.Admin{
		Username:     params.AdminUsername,
		PasswordHash: params.AdminPasswordHash,
	}, auth.DefaultTTL, rdb)
	go func() {
		for range time.Tick(time.Hour * 8) {
			authService.ScanAndClean(ctx)
		}
	}()

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "liftlab-backend")
	if err != nil {
		return nil, err
	}

	if count, err := source.CountRecords(ctx); err == nil {
		metricsManager.GaugeDatasetSize.Set(float64(count))
	} else {
		log.Warnf("failed to count dataset records: %s", err)
	}

	return &Server{
		config:      params.Config,
		dbPool:      dbPool,
		store:       store,
		source:      source,
		versionInfo: params.VersionInfo,

		redisClient:  rdb,
		authService:  authService,
		loginChecker: auth.NewLoginChecker(auth.DefaultTTL, rdb),

		aggregationCache:   cache.NewRedis(rdb, "liftlab-agg", aggregationCacheTTL),
		filterOptionsCache: cache.NewFilterOptionsCache(),

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	analyzer := analytics.NewAnalyzer(s.source, s.config.MinCohortSize, s.metricsManager)
	analyticsHandler := analytics.NewHandler(analyzer)

	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)
	compareRateLimit := middleware.RateLimit(
		reqRateLimiter,
		"compare",
		s.config.CompareRateLimitAllowedPerMin,
		s.metricsManager,
	)
	r.Handle("/compare", compareRateLimit(
		http.HandlerFunc(analyticsHandler.HandleCompare),
	)).Methods("POST", "OPTIONS").Name("compare")
	r.HandleFunc("/athlete/{id}", analyticsHandler.HandleProfile).Methods("GET", "OPTIONS").Name("athlete-profile")
	r.HandleFunc("/athlete/{id}/projections", analyticsHandler.HandleProjections).Methods("GET", "OPTIONS").Name("athlete-projections")

	datasetHandler := dataset.NewHandler(s.source, s.filterOptionsCache, s.metricsManager)
	r.HandleFunc("/athletes", datasetHandler.HandleSearchAthletes).Methods("GET", "OPTIONS").Name("search-athletes")
	r.HandleFunc("/filter-options", datasetHandler.HandleFilterOptions).Methods("GET", "OPTIONS").Name("filter-options")

	overviewHandler := overview.NewHandler(
		overview.NewAggregator(s.source),
		s.aggregationCache,
		s.metricsManager,
	)
	r.HandleFunc("/overview/participation", overviewHandler.HandleParticipation).Methods("GET", "OPTIONS").Name("overview-participation")
	r.HandleFunc("/overview/competitions", overviewHandler.HandleCompetitionsBySex).Methods("GET", "OPTIONS").Name("overview-competitions")
	r.HandleFunc("/overview/equipment", overviewHandler.HandleEquipmentDistribution).Methods("GET", "OPTIONS").Name("overview-equipment")
	r.HandleFunc("/overview/leaderboard", overviewHandler.HandleLeaderboard).Methods("GET", "OPTIONS").Name("overview-leaderboard")
	r.HandleFunc("/overview/lifts", overviewHandler.HandleLiftTrends).Methods("GET", "OPTIONS").Name("overview-lifts")
	r.HandleFunc("/overview/geography", overviewHandler.HandleGeography).Methods("GET", "OPTIONS").Name("overview-geography")
	r.HandleFunc("/overview/ageclasses", overviewHandler.HandleAgeClassDistributions).Methods("GET", "OPTIONS").Name("overview-ageclasses")
	r.HandleFunc("/overview/bodyweight", overviewHandler.HandleBodyweightHistogram).Methods("GET", "OPTIONS").Name("overview-bodyweight")

	r.HandleFunc("/admin/login", s.handleLogin).Methods("POST", "OPTIONS").Name("login")
	r.HandleFunc("/admin/logout", s.handleLogout).Methods("POST", "OPTIONS").Name("logout")
	r.HandleFunc("/admin/refresh", s.handleRefresh).Methods("POST", "OPTIONS").Name("refresh")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		pkg.WriteTextResponseOK(w, "ok")
	}).Methods("GET").Name("health")
	r.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		pkg.WriteTextResponseOK(w, s.versionInfo)
	}).Methods("GET").Name("version")

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	authMiddleware := middleware.NewAuthMiddlewareHandler(s.loginChecker)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.admin.login")
	defer span.End()

	var credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		log.Errorf("login, unmarshal json params: %s", err)
		http.Error(w, "login failed", http.StatusBadRequest)
		return
	}

	token, err := s.authService.Login(ctx, credentials.Username, credentials.Password, time.Now())
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			http.Error(w, "login failed", http.StatusUnauthorized)
			return
		}
		log.Errorf("login: %s", err)
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponse(w, pkg.ContentType.JSON, fmt.Sprintf(`{"token": "%s"}`, token), http.StatusOK)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.admin.logout")
	defer span.End()

	token := r.Header.Get(middleware.AuthTokenHeader)
	if token == "" {
		http.Error(w, "logout failed", http.StatusBadRequest)
		return
	}

	loggedOut, err := s.authService.Logout(ctx, token)
	if err != nil {
		log.Errorf("logout: %s", err)
		http.Error(w, "logout failed", http.StatusInternalServerError)
		return
	}
	if !loggedOut {
		http.Error(w, "logout failed", http.StatusBadRequest)
		return
	}

	pkg.WriteTextResponseOK(w, "logged-out")
}

// handleRefresh reloads the csv snapshot (when serving from one) and
// drops all cached aggregations, so that a freshly imported dataset
// becomes visible without a restart.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.admin.refresh")
	defer span.End()

	if s.store != nil {
		if err := s.store.Reload(); err != nil {
			log.Errorf("refresh, reload snapshot: %s", err)
			http.Error(w, "refresh failed", http.StatusInternalServerError)
			return
		}
	}

	if err := s.aggregationCache.InvalidateAll(ctx); err != nil {
		log.Errorf("refresh, invalidate aggregation cache: %s", err)
	}
	s.filterOptionsCache.Clear()

	if count, err := s.source.CountRecords(ctx); err == nil {
		s.metricsManager.GaugeDatasetSize.Set(float64(count))
	}

	pkg.WriteTextResponseOK(w, "refreshed")
}

func (s *Server) Serve(ctx context.Context, host string, port int) {
	router := s.routerSetup()

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown http server")
	}
	log.Warnln("server shut down")

	if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown metrics http server")
	}
	log.Warnln("metrics server shut down")
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
