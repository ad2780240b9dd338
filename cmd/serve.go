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
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/startup-intake/internal/extract"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP intake server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(middleware.Timeout(120 * time.Second))
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/intake", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				URL    string `json:"url"`
				Title  string `json:"title"`
				DryRun bool   `json:"dry_run"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if body.URL == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
				return
			}

			res, err := env.Pipeline.Ingest(req.Context(), extract.RawSource{
				Kind:  extract.KindManual,
				URL:   body.URL,
				Title: body.Title,
			})
			if err != nil {
				zap.L().Error("intake failed", zap.String("url", body.URL), zap.Error(err))
				writeJSON(w, http.StatusBadGateway, map[string]string{"error": "ingest failed"})
				return
			}
			if !body.DryRun {
				if err := env.Pipeline.Commit(req.Context(), res); err != nil {
					zap.L().Error("commit failed", zap.String("run_id", res.RunID), zap.Error(err))
					writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "commit failed"})
					return
				}
			}
			writeJSON(w, http.StatusOK, res)
		})

		r.Get("/startups/{domain}", func(w http.ResponseWriter, req *http.Request) {
			domain := chi.URLParam(req, "domain")
			rec, err := env.Store.FindByCanonicalDomain(req.Context(), domain)
			if err != nil {
				zap.L().Error("lookup failed", zap.String("domain", domain), zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
				return
			}
			if rec == nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
				return
			}
			writeJSON(w, http.StatusOK, rec)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
