package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/emissions-cli/internal/engine"
	"github.com/sells-group/emissions-cli/internal/model"
	"github.com/sells-group/emissions-cli/internal/monitoring"
	"github.com/sells-group/emissions-cli/internal/waterfall"
)

const (
	requestIDHeader = "X-Request-ID"
	maxBodyBytes    = 1 << 20
	maxBatchSize    = 500
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP resolution server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eng, err := engine.Build(ctx, cfg)
		if err != nil {
			return err
		}

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(eng),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: newRouter(eng, routerOptions{
				AllowedOrigins: cfg.Server.AllowedOrigins,
				Concurrency:    cfg.Batch.Concurrency,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.String("estimation", eng.EstimationStatus()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolver is the part of *engine.Engine the HTTP handlers need.
type resolver interface {
	Resolve(ctx context.Context, req engine.Request) model.EmissionResult
	Stats() waterfall.Snapshot
	EstimationStatus() string
}

type routerOptions struct {
	AllowedOrigins []string
	Concurrency    int
}

type batchRequest struct {
	Requests []engine.Request `json:"requests"`
}

func newRouter(eng resolver, opts routerOptions) http.Handler {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":     "ok",
			"estimation": eng.EstimationStatus(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, eng.Stats())
		})

		r.Post("/resolve", func(w http.ResponseWriter, r *http.Request) {
			var req engine.Request
			if err := decodeBody(w, r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			res := eng.Resolve(r.Context(), req)
			zap.L().Debug("resolve request",
				zap.String("request_id", requestIDFrom(r.Context())),
				zap.String("activity", req.ActivityType),
				zap.String("method", res.Method),
				zap.Bool("success", res.Success),
			)
			writeJSON(w, resultStatus(res), res)
		})

		r.Post("/batch", func(w http.ResponseWriter, r *http.Request) {
			var body batchRequest
			if err := decodeBody(w, r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if len(body.Requests) == 0 {
				writeError(w, http.StatusBadRequest, "requests is required")
				return
			}
			if len(body.Requests) > maxBatchSize {
				writeError(w, http.StatusRequestEntityTooLarge,
					fmt.Sprintf("at most %d requests per batch", maxBatchSize))
				return
			}
			report, err := processBatch(r.Context(), body.Requests, nil, opts.Concurrency, eng.Resolve)
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, "batch cancelled")
				return
			}
			report.Stats = eng.Stats()
			writeJSON(w, http.StatusOK, report)
		})
	})

	return r
}

// resultStatus maps a result onto an HTTP status. NO_MATCH is a valid answer
// and stays 200; only malformed input is a client error.
func resultStatus(res model.EmissionResult) int {
	if res.ErrorCode == model.ErrCodeInputInvalid {
		return http.StatusUnprocessableEntity
	}
	return http.StatusOK
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

// requestID propagates the caller's X-Request-ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return eris.Wrap(err, "serve: decode body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("serve: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
