package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bensig/golibre/internal/chain"
	"github.com/bensig/golibre/internal/dex"
	"github.com/bensig/golibre/internal/executor"
	"github.com/bensig/golibre/internal/ledger"
	"github.com/bensig/golibre/internal/statusserver"
	"github.com/bensig/golibre/internal/trading"
	"github.com/bensig/golibre/pkg/config"
	"github.com/bensig/golibre/pkg/logger"
	"github.com/bensig/golibre/pkg/shutdown"
)

func main() {
	var (
		configPath   = flag.String("config", "config.yaml", "path to the YAML configuration file")
		envFile      = flag.String("env-file", "", "optional .env file with wallet password file paths")
		group        = flag.String("group", "", "strategy group to start")
		cancelAll    = flag.String("cancel-all", "", "cancel all resting orders for this account, then exit")
		pairSymbol   = flag.String("pair", "", "restrict -cancel-all to one pair, e.g. BTC/USDT")
		statusListen = flag.String("status-listen", "", "override the status server listen address")
	)
	flag.Parse()

	if err := run(*configPath, *envFile, *group, *cancelAll, *pairSymbol, *statusListen); err != nil {
		fmt.Fprintf(os.Stderr, "golibre: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, envFile, group, cancelAll, pairSymbol, statusListen string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	if statusListen != "" {
		cfg.StatusServer.Listen = statusListen
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chainClient := chain.NewClient(cfg.Network.APIURL, chain.WithCleosBin(cfg.Network.CleosBin))
	if err := unlockWallets(ctx, chainClient, cfg); err != nil {
		return err
	}
	reportBalances(ctx, chainClient, cfg)

	gateway := dex.NewGateway(chainClient, cfg.Network.DexContract)
	led := ledger.New()
	exec := executor.New(gateway, led, cfg.Runner.MaxRetries, cfg.Runner.RetryBase.Duration)
	manager := trading.NewManager(cfg, gateway, led, exec)

	if cancelAll != "" {
		return manager.CancelAll(ctx, cancelAll, pairSymbol)
	}
	if group == "" {
		return fmt.Errorf("either -group or -cancel-all is required")
	}

	if err := manager.StartGroup(ctx, group); err != nil {
		return err
	}

	shutdownManager := shutdown.NewManager()
	shutdownManager.OnShutdown(manager.Stop)

	if cfg.StatusServer.Listen != "" {
		server := statusserver.New(cfg.StatusServer.Listen, manager)
		go func() {
			if err := server.Start(); err != nil {
				logger.Errorf("status server: %v", err)
			}
		}()
		shutdownManager.OnShutdown(func(ctx context.Context) {
			if err := server.Shutdown(ctx); err != nil {
				logger.Warnf("status server shutdown: %v", err)
			}
		})
	}

	<-ctx.Done()
	logger.Info("signal received, stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	shutdownManager.Shutdown(shutdownCtx)
	return nil
}

// unlockWallets unlocks the cleos wallet of every configured account whose
// password file is provided through the environment, e.g.
// WALLET_PASSWORD_FILE_TRADER1 for wallet "trader1". Accounts without one are
// assumed to have an already-unlocked wallet.
func unlockWallets(ctx context.Context, client *chain.Client, cfg *config.Config) error {
	seen := make(map[string]bool)
	for _, account := range cfg.Accounts {
		wallet := account.WalletName
		if wallet == "" || seen[wallet] {
			continue
		}
		seen[wallet] = true

		key := "WALLET_PASSWORD_FILE_" + strings.ToUpper(strings.ReplaceAll(wallet, "-", "_"))
		passwordFile := os.Getenv(key)
		if passwordFile == "" {
			logger.Debugf("no %s set, assuming wallet %s is unlocked", key, wallet)
			continue
		}
		if err := client.UnlockWallet(ctx, wallet, passwordFile); err != nil {
			return fmt.Errorf("unlock wallet %s: %w", wallet, err)
		}
		logger.Infof("unlocked wallet %s", wallet)
	}
	return nil
}

// reportBalances logs each account's token balances for its allowed pairs at
// startup. Best effort: a failed lookup is logged, not fatal.
func reportBalances(ctx context.Context, client *chain.Client, cfg *config.Config) {
	for _, account := range cfg.Accounts {
		for _, symbol := range account.AllowedPairs {
			pair, ok := cfg.Pair(symbol)
			if !ok {
				continue
			}
			for _, side := range []struct{ contract, symbol string }{
				{pair.BaseContract, pair.BaseSymbol},
				{pair.QuoteContract, pair.QuoteSymbol},
			} {
				balances, err := client.GetCurrencyBalance(ctx, side.contract, account.Name, side.symbol)
				if err != nil {
					logger.Warnf("balance lookup %s %s: %v", account.Name, side.symbol, err)
					continue
				}
				if len(balances) == 0 {
					logger.Infof("balance %s: 0 %s", account.Name, side.symbol)
					continue
				}
				logger.Infof("balance %s: %s", account.Name, balances[0])
			}
		}
	}
}
