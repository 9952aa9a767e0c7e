// Command verdict runs the epoch-market decision pipeline: a committee of
// voting agents per strategy config, one live config executing real stakes
// and the rest shadow-trading paper accounts against the same events.
//
// Usage:
//
//	verdict --config config.yaml
//	verdict --setup (interactive wizard, writes config.gen.yaml)
//	verdict (paper mode with stock defaults)
//
// Optional environment variables for live mode:
//
//	BINANCE_API_KEY, BINANCE_API_SECRET
//	BYBIT_API_KEY, BYBIT_API_SECRET
//	HYPERLIQUID_PRIVATE_KEY
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/verdict/config"
	"github.com/vadiminshakov/verdict/internal"
	"github.com/vadiminshakov/verdict/internal/clients"
	"github.com/vadiminshakov/verdict/internal/events"
	"github.com/vadiminshakov/verdict/internal/services/executor"
	"github.com/vadiminshakov/verdict/internal/services/feed"
	"github.com/vadiminshakov/verdict/internal/services/notifier"
	"github.com/vadiminshakov/verdict/internal/services/promoter"
	"github.com/vadiminshakov/verdict/internal/services/reconciler"
	"github.com/vadiminshakov/verdict/internal/services/shadow"
	"github.com/vadiminshakov/verdict/internal/setup"
	"github.com/vadiminshakov/verdict/internal/storage/history"
	"github.com/vadiminshakov/verdict/internal/storage/performance"
	"github.com/vadiminshakov/verdict/internal/web"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	simStartPrice        = 50000
	simStepPercent       = 0.002
	defaultReconcileTick = time.Hour
	hyperliquidAPIURL    = "https://api.hyperliquid.xyz"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	cfg, err := config.Get()
	if errors.Is(err, config.ErrSetupRequested) {
		if err := setup.RunTUI(); err != nil {
			logger.Fatal("setup wizard failed", zap.Error(err))
		}
		cfg, err = config.Load(setup.GeneratedConfigFile)
	}
	if err != nil {
		logger.Fatal("failed to get configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("bot stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return errors.Wrap(err, "create data dir")
	}
	if cfg.Risk.KillFile == "" {
		cfg.Risk.KillFile = filepath.Join(cfg.DataDir, "KILL")
	}

	sources, klines, book, err := buildFeeds(cfg, logger)
	if err != nil {
		return err
	}
	collectorOpts := []feed.CollectorOption{}
	if cfg.Sources.KlineInterval != "" && cfg.Sources.KlineLimit > 0 {
		collectorOpts = append(collectorOpts, feed.WithHistory(cfg.Sources.KlineInterval, cfg.Sources.KlineLimit))
	}
	collector, err := feed.NewCollector(sources, klines, book, logger, collectorOpts...)
	if err != nil {
		return errors.Wrap(err, "build collector")
	}

	runners := make([]*shadow.Runner, 0, len(cfg.Strategies))
	accountsDir := filepath.Join(cfg.DataDir, "accounts")
	for _, sc := range cfg.Strategies {
		r, err := shadow.NewRunner(sc, accountsDir, cfg.Balance, cfg.Risk, logger)
		if err != nil {
			return errors.Wrapf(err, "runner %s", sc.Name)
		}
		runners = append(runners, r)
	}

	hist, err := history.NewWALStore(filepath.Join(cfg.DataDir, "history"))
	if err != nil {
		return errors.Wrap(err, "open history")
	}
	defer hist.Close()

	perf, err := performance.NewTracker(filepath.Join(cfg.DataDir, "performance.json"))
	if err != nil {
		return errors.Wrap(err, "open performance tracker")
	}

	orch, err := shadow.NewOrchestrator(runners, hist, perf, logger)
	if err != nil {
		return errors.Wrap(err, "build orchestrator")
	}
	live := orch.LiveRunner()

	notif, err := buildNotifier(ctx, cfg, logger)
	if err != nil {
		return err
	}

	promCfg := promoterConfig(cfg)
	prom, err := promoter.New(promCfg, orch, logger)
	if err != nil {
		return errors.Wrap(err, "build promoter")
	}

	broadcaster := events.NewDecisionBroadcaster(16)
	bot := internal.NewBot(cfg.Pair, cfg.Epoch, collector, orch, executor.NewPaper(logger), notif, broadcaster, logger)

	g, ctx := errgroup.WithContext(ctx)

	// decision audit stream
	g.Go(func() error {
		sub := broadcaster.Subscribe()
		defer broadcaster.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case d, ok := <-sub:
				if !ok {
					return nil
				}
				logger.Info("decision",
					zap.String("event", d.EventID),
					zap.Bool("trade", d.ShouldTrade),
					zap.String("direction", d.Direction.String()),
					zap.String("reason", d.Reason))
			}
		}
	})

	if cfg.Mode == config.ModeLive && cfg.Reconcile.Enabled {
		rec, err := buildReconciler(cfg, live, logger)
		if err != nil {
			return err
		}
		// one authoritative balance check before the first decision
		if err := rec.Reconcile(ctx); err != nil {
			return errors.Wrap(err, "startup balance reconciliation")
		}
		interval := cfg.Reconcile.Interval
		if interval <= 0 {
			interval = defaultReconcileTick
		}
		g.Go(func() error { return rec.Run(ctx, interval) })
	}

	if cfg.WebAddr != "" {
		srv := web.NewServer(cfg.WebAddr, orch, live.Guardian(), hist, logger)
		g.Go(func() error { return srv.Start(ctx) })
	}

	g.Go(func() error { return prom.Run(ctx) })
	g.Go(func() error { return bot.Run(ctx) })

	logger.Info("started",
		zap.String("mode", cfg.Mode),
		zap.String("pair", cfg.Pair.String()),
		zap.String("live", orch.Live()),
		zap.Int("configs", len(runners)))

	return g.Wait()
}

func buildFeeds(cfg config.Config, logger *zap.Logger) ([]feed.Source, feed.KlineProvider, feed.BookProvider, error) {
	if cfg.Mode == config.ModePaper {
		sim := feed.NewSimulatedSource(decimal.NewFromInt(simStartPrice), simStepPercent, time.Now().UnixNano())
		return []feed.Source{sim}, sim, sim, nil
	}

	binanceClient := clients.NewBinanceClient(
		envOr(cfg.Sources.BinanceAPIKey, "BINANCE_API_KEY"),
		envOr(cfg.Sources.BinanceSecretKey, "BINANCE_API_SECRET"))
	binanceSource := feed.NewBinanceSource(binanceClient)

	sources := []feed.Source{binanceSource}

	bybitClient := clients.NewBybitClient(
		envOr(cfg.Sources.BybitAPIKey, "BYBIT_API_KEY"),
		envOr(cfg.Sources.BybitSecretKey, "BYBIT_API_SECRET"))
	sources = append(sources, feed.NewBybitSource(bybitClient))

	if cfg.Sources.Hyperliquid {
		key := os.Getenv("HYPERLIQUID_PRIVATE_KEY")
		if key == "" {
			logger.Warn("hyperliquid source enabled but HYPERLIQUID_PRIVATE_KEY is not set, skipping")
		} else {
			hl, err := clients.NewHyperliquidClient(key, hyperliquidAPIURL)
			if err != nil {
				return nil, nil, nil, errors.Wrap(err, "hyperliquid client")
			}
			sources = append(sources, feed.NewHyperliquidSource(hl.Info()))
		}
	}

	return sources, binanceSource, binanceSource, nil
}

func buildNotifier(ctx context.Context, cfg config.Config, logger *zap.Logger) (notifier.Notifier, error) {
	if cfg.Telegram.Token == "" {
		return notifier.Nop{}, nil
	}
	return notifier.NewTelegram(ctx, cfg.Telegram.Token, cfg.Telegram.ChatID, logger)
}

func buildReconciler(cfg config.Config, live *shadow.Runner, logger *zap.Logger) (*reconciler.Reconciler, error) {
	client, err := ethclient.Dial(cfg.Reconcile.RPCURL)
	if err != nil {
		return nil, errors.Wrap(err, "dial chain rpc")
	}

	decimals := cfg.Reconcile.TokenDecimals
	if decimals == 0 {
		decimals = 6 // USDC-style collateral
	}
	provider, err := reconciler.NewChainBalance(client,
		common.HexToAddress(cfg.Reconcile.TokenAddress),
		common.HexToAddress(cfg.Reconcile.WalletAddress),
		decimals)
	if err != nil {
		return nil, errors.Wrap(err, "chain balance provider")
	}

	return reconciler.New(provider, live.Guardian(), cfg.Reconcile.Threshold, logger)
}

func promoterConfig(cfg config.Config) promoter.Config {
	p := cfg.PromoterOrDefaults()
	return promoter.Config{
		Interval:      p.Interval,
		MinSample:     p.MinSample,
		WinRateMargin: p.WinRateMargin,
		RiskAdjMargin: p.RiskAdjMargin,
		RollbackFloor: p.RollbackFloor,
		Steps:         p.Steps,
		StatePath:     filepath.Join(cfg.DataDir, "promoter.json"),
	}
}

func envOr(value, env string) string {
	if value != "" {
		return value
	}
	return os.Getenv(env)
}
