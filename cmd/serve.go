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
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/pricing-cli/internal/estimate"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the estimate API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		priorStore, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		estimator := estimate.New(priorStore, zap.L())
		limiter := rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst)

		r := chi.NewRouter()
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))
		r.Use(requestLogger)

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			supported, err := priorStore.Supported(req.Context())
			if err != nil {
				zap.L().Warn("health: priors check failed", zap.Error(err))
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"status": "ok",
				"priors": supported,
			})
		})

		r.Post("/v1/estimate", func(w http.ResponseWriter, req *http.Request) {
			if !limiter.Allow() {
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				return
			}

			var body struct {
				Technology string `json:"technology"`
				Material   string `json:"material"`
				PartsCount int    `json:"parts_count"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}

			est, err := estimator.Estimate(req.Context(), body.Technology, body.Material, body.PartsCount)
			if err != nil {
				// Only context cancellation reaches here; the client is gone.
				zap.L().Debug("estimate request cancelled", zap.Error(err))
				return
			}

			writeJSON(w, http.StatusOK, map[string]any{
				"request_id": requestIDFrom(req),
				"estimate":   est,
			})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("estimate API listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "serve: listen")
		}
		return nil
	},
}

type requestIDKey struct{}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(req *http.Request) string {
	id, _ := req.Context().Value(requestIDKey{}).(string)
	return id
}

// requestLogger assigns a request ID and logs each request on completion.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		next.ServeHTTP(w, withRequestID(req, id))
		zap.L().Debug("request handled",
			zap.String("request_id", id),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func withRequestID(req *http.Request, id string) *http.Request {
	return req.WithContext(contextWithRequestID(req.Context(), id))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (0 = config default)")
	rootCmd.AddCommand(serveCmd)
}
