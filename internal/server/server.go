package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-trees/internal/api"
	"github.com/joeblew999/plat-trees/internal/api/viewer"
	"github.com/joeblew999/plat-trees/internal/db"
	"github.com/joeblew999/plat-trees/internal/focus"
	"github.com/joeblew999/plat-trees/internal/metrics"
	"github.com/joeblew999/plat-trees/internal/service"
	"github.com/joeblew999/plat-trees/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host       string
	Port       string
	DataDir    string
	WebDir     string   // optional; serves <WebDir>/static and <WebDir>/viewer.html
	GridSize   float64  // dense focus cell size in degrees
	NoDB       bool     // skip the DuckDB mirror
	Extensions []string // DuckDB extensions to load, e.g. "spatial"
	Logger     *zap.Logger
}

// Server is the tree map HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	handler  http.Handler
	humaAPI  huma.API
	db       *sql.DB
	bus      *service.EventBus
	services *api.Services
	renderer *templates.Renderer
	logger   *zap.Logger
}

// New creates a new tree map server.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.GridSize <= 0 {
		cfg.GridSize = focus.DefaultGridSize
	}

	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-trees API", "1.0.0")
	humaConfig.Info.Description = "Tree map API: owner trees, dense focus, and visible-by-proximity navigation."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	bus := service.NewEventBus()
	trees, err := service.NewTreeService(cfg.DataDir, bus, logger.Named("trees"))
	if err != nil {
		return nil, fmt.Errorf("loading trees: %w", err)
	}

	renderer, err := templates.New()
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	s := &Server{
		config:   cfg,
		mux:      mux,
		handler:  metrics.Middleware(mux),
		humaAPI:  humaAPI,
		bus:      bus,
		renderer: renderer,
		logger:   logger,
	}

	// The mirror is optional; the API answers 503 on db routes without it.
	if !cfg.NoDB {
		conn, err := db.Open(db.Config{DataDir: cfg.DataDir, DBName: "trees", Extensions: cfg.Extensions})
		if err != nil {
			logger.Warn("duckdb unavailable", zap.Error(err))
		} else {
			s.db = conn
			if n, err := db.SyncTrees(context.Background(), conn, trees.List()); err != nil {
				logger.Warn("duckdb sync failed", zap.Error(err))
			} else {
				logger.Info("duckdb mirror ready", zap.Int("rows", n))
			}
		}
	}

	s.services = &api.Services{
		Tree:     trees,
		DB:       s.db,
		GridSize: cfg.GridSize,
		Logger:   logger.Named("api"),
	}

	s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Trees returns the record source.
func (s *Server) Trees() *service.TreeService {
	return s.services.Tree
}

// Close closes server resources.
func (s *Server) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, s.services, s.config.DataDir)

	// Register viewer SSE routes using Huma + Datastar SDK
	viewer.NewHandler(s.services.Tree, s.renderer, s.config.GridSize, s.logger.Named("viewer")).RegisterRoutes(s.humaAPI)
	viewer.NewEventHandler(s.services.Tree, s.bus).RegisterRoutes(s.humaAPI)

	s.mux.Handle("GET /metrics", metrics.Handler())

	// Static files and the viewer page
	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
		s.mux.HandleFunc("GET /viewer", s.handleViewer)
	}

	s.mux.HandleFunc("GET /{$}", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-trees",
		"status":  "running",
	})
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	page := filepath.Join(s.config.WebDir, "viewer.html")
	if _, err := os.Stat(page); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, page)
}
