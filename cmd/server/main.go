package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"worleybiomes.ai/internal/field/tuning"
	persistlog "worleybiomes.ai/internal/persistence/log"
	"worleybiomes.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configPath = flag.String("config", "./configs/sampler.yaml", "path to sampler.yaml")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableLog = flag.Bool("disable_log", false, "disable the query log")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	rec, err := tuning.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load config: %v", err)
		}
		logger.Printf("config not found (%s); using defaults", *configPath)
		rec = tuning.Defaults()
	}

	rt, err := ws.NewRuntime(rec)
	if err != nil {
		logger.Fatalf("sampler: %v", err)
	}
	_, digest := rt.Current()
	logger.Printf("sampler ready: zoom=%g k=%d sharpness=%g metric=%s digest=%s",
		rec.Zoom, rec.K, rec.Sharpness, rec.Metric, digest)

	_ = os.MkdirAll(*dataDir, 0o755)

	store, err := openPresetStore(*dataDir)
	if err != nil {
		logger.Fatalf("open preset store: %v", err)
	}
	if store != nil {
		defer store.Close()
	} else {
		logger.Printf("preset store disabled (WB_PRESET_BACKEND=none)")
	}

	var qlog ws.QueryLog
	if !*disableLog {
		ql := persistlog.NewQueryLogger(*dataDir)
		defer ql.Close()
		qlog = ql
	}

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})

	if envBool("WB_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only read of the live configuration.
		mux.HandleFunc("/admin/v1/config", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			cur, d := rt.Current()
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(struct {
				Digest string        `json:"digest"`
				Config tuning.Record `json:"config"`
			}{Digest: d, Config: cur})
		})
	} else {
		logger.Printf("admin endpoints disabled (WB_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("WB_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(rt, store, qlog, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (data=%s)", *addr, filepath.Clean(*dataDir))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
