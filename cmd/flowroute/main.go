// flowroute is the service entry point.
//
// Usage:
//
//	flowroute serve                      # start the router service
//	flowroute serve --config cfg.yaml    # with a config file (hot reloaded)
//	flowroute classify "request text"    # classify one request and exit
//	flowroute version                    # print version info
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/flowroute"
	"github.com/BaSui01/flowroute/config"
	"github.com/BaSui01/flowroute/session"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "classify":
		runClassify(os.Args[2:])
	case "version":
		fmt.Printf("flowroute %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: flowroute <serve|classify|version> [flags]")
}

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader().WithEnvPrefix("FLOWROUTE")
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	return loader.Load()
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg := zap.NewProductionConfig()
	if strings.EqualFold(cfg.Format, "console") {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

func buildStore(ctx context.Context, cfg config.StoreConfig) (session.Store, error) {
	switch cfg.Type {
	case config.StoreTypeRedis:
		return session.NewRedisStore(ctx, cfg.Redis, cfg.Retention)
	case config.StoreTypeSQL:
		return session.NewSQLStore(cfg.Database, cfg.Retention)
	default:
		return session.NewMemoryStore(), nil
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg.Store)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}

	managerOpts := []config.ManagerOption{config.WithManagerLogger(logger)}
	if *configPath != "" {
		managerOpts = append(managerOpts, config.WithConfigFile(*configPath))
	}
	cfgManager := config.NewManager(cfg, managerOpts...)

	engine := flowroute.New(cfgManager, store, flowroute.WithLogger(logger))
	if err := engine.Start(ctx); err != nil {
		logger.Fatal("engine start failed", zap.Error(err))
	}
	defer engine.Close()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if err := store.Ping(r.Context()); err != nil {
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, "ok")
		})
		metricsServer = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics endpoint listening", zap.String("addr", cfg.Metrics.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	logger.Info("flowroute started",
		zap.String("version", Version),
		zap.String("store", string(cfg.Store.Type)))

	<-ctx.Done()
	logger.Info("shutting down")

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
}

func runClassify(args []string) {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	_ = fs.Parse(args)

	text := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(os.Stderr, "usage: flowroute classify [--config cfg.yaml] <request text>")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	cfgManager := config.NewManager(cfg)
	engine := flowroute.New(cfgManager, session.NewMemoryStore())
	defer engine.Close()

	resp, err := engine.Analyze(context.Background(), flowroute.Request{Text: text})
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
