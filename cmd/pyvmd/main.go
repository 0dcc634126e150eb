// Command pyvmd is an HTTP facade over core/loader: load a manifest once at
// startup and serve POST /v1/call against it. Grounded on
// cmd/cli/virtual_machine.go's vmInit/vmExecuteHandler (mux router,
// x/time/rate limiter, http.Server with explicit timeouts) and
// cmd/xchainserver/server/middleware.go's logrus request logger.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/animica-labs/pyvm/core/loader"
	"github.com/animica-labs/pyvm/pkg/logging"
)

var log = logging.New("PYVMD_LOG_LEVEL")

type server struct {
	contract *loader.Contract
	limiter  *rate.Limiter
}

func main() {
	manifestPath := envOr("PYVMD_MANIFEST", "")
	if manifestPath == "" {
		log.Fatal("PYVMD_MANIFEST is required")
	}
	c, err := loader.LoadFile(manifestPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load manifest")
	}
	log.WithFields(logging.CallFields(c.Name, "", c.CodeHash)).Info("contract loaded")

	srv := &server{
		contract: c,
		limiter:  rate.NewLimiter(rate.Limit(envOrFloat("PYVMD_RATE_LIMIT", 200)), int(envOrInt("PYVMD_RATE_BURST", 100))),
	}

	r := mux.NewRouter()
	r.Use(requestLogger)
	r.Use(srv.rateLimit)
	r.HandleFunc("/healthz", srv.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/call", srv.handleCall).Methods(http.MethodPost)

	httpSrv := &http.Server{
		Addr:         envOr("PYVMD_LISTEN", ":8080"),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()
	log.WithField("addr", httpSrv.Addr).Info("pyvmd listening")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	log.Info("pyvmd stopped")
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.WithFields(map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Info("incoming request")
		next.ServeHTTP(w, r)
	})
}

func (s *server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, "rate limit", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "ok",
		"contract":  s.contract.Name,
		"code_hash": s.contract.CodeHash,
	})
}

func (s *server) handleCall(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, 1<<20)
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	out, err := s.contract.CallBytes(r.Context(), body, nil)
	if err != nil {
		log.WithFields(logging.CallFields(s.contract.Name, "", s.contract.CodeHash)).WithError(err).Error("call failed")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

func readBody(r *http.Request, max int64) ([]byte, error) {
	limited := io.LimitReader(r.Body, max+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, errors.New("request body too large")
	}
	return data, nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envOrInt(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}
