package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"curvemarket/config"
	"curvemarket/core/events"
	"curvemarket/core/types"
	"curvemarket/native/feeshare"
	"curvemarket/native/market"
	"curvemarket/native/paytoken"
	"curvemarket/native/position"
	"curvemarket/native/token"
	"curvemarket/observability"
	"curvemarket/observability/logging"
	"curvemarket/state"
	"curvemarket/storage"
)

func main() {
	configPath := flag.String("config", "./market.toml", "path to the market configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup("marketd", cfg.Environment)

	if err := run(cfg, logger); err != nil {
		logger.Error("marketd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := openDatabase(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	store := state.NewKVStore(db)

	engine, err := buildEngine(cfg, store, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           newRouter(&server{engine: engine, log: logger}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("marketd listening", "addr", cfg.ListenAddress, "paytoken", cfg.PayTokenMode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("marketd stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// openDatabase backs the market with LevelDB, or an in-memory store when the
// data dir is the ":memory:" sentinel.
func openDatabase(dataDir string) (storage.Database, error) {
	if dataDir == ":memory:" {
		return storage.NewMemDB(), nil
	}
	return storage.NewLevelDB(dataDir)
}

func buildEngine(cfg *config.Config, store *state.KVStore, logger *slog.Logger) (*market.Engine, error) {
	priceCurve, err := cfg.BuildCurve()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.FeePolicy()
	if err != nil {
		return nil, err
	}
	vault, err := cfg.Vault()
	if err != nil {
		return nil, err
	}

	var pay paytoken.PayToken
	switch cfg.PayTokenMode {
	case config.PayTokenERC20:
		pay = paytoken.NewERC20(store)
	default:
		pay = paytoken.NewNative(paytoken.NewStoreAccounts(store))
	}

	engine, err := market.NewEngine(priceCurve, policy, pay, vault)
	if err != nil {
		return nil, err
	}
	engine.SetLedgers(token.NewLedger(store), position.NewRegistry(store), feeshare.NewRegistry(store))
	engine.SetEmitter(logEmitter{log: logger})
	engine.SetMetrics(observability.Market())
	return engine, nil
}

// logEmitter journals settlement events onto the structured log.
type logEmitter struct {
	log *slog.Logger
}

func (l logEmitter) Emit(ev events.Event) {
	if l.log == nil {
		return
	}
	if typed, ok := ev.(interface{ Event() *types.Event }); ok {
		record := typed.Event()
		l.log.Info("market event", "type", record.Type, "attributes", record.Attributes)
		return
	}
	l.log.Info("market event", "type", ev.EventType())
}
