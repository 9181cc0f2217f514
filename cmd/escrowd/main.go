package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/escrowd/internal/config"
	"github.com/tdex-network/escrowd/internal/core/application/escrow"
	"github.com/tdex-network/escrowd/internal/core/application/monitor"
	"github.com/tdex-network/escrowd/internal/core/application/settlement"
	"github.com/tdex-network/escrowd/internal/core/ports"
	hdwallet "github.com/tdex-network/escrowd/internal/infrastructure/hd-wallet"
	amqpnotifier "github.com/tdex-network/escrowd/internal/infrastructure/notifier/amqp"
	lognotifier "github.com/tdex-network/escrowd/internal/infrastructure/notifier/log"
	webhooknotifier "github.com/tdex-network/escrowd/internal/infrastructure/notifier/webhook"
	coinbasefeeder "github.com/tdex-network/escrowd/internal/infrastructure/price-feeder/coinbase"
	"github.com/tdex-network/escrowd/internal/infrastructure/storage/db"
	httpinterface "github.com/tdex-network/escrowd/internal/interfaces/http"
	"github.com/tdex-network/escrowd/pkg/explorer"
	"github.com/tdex-network/escrowd/pkg/explorer/blockcypher"
	"github.com/tdex-network/escrowd/pkg/stats"
	"github.com/tdex-network/escrowd/pkg/wallet"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := config.InitConfig(); err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	repoManager, err := newRepoManager()
	if err != nil {
		log.WithError(err).Fatal("failed to open ledger")
	}

	escrowSvc, notifier, err := newEscrowService(repoManager)
	if err != nil {
		repoManager.Close()
		log.WithError(err).Fatal("failed to initialize escrow engine")
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	if interval := config.GetStatsInterval(); interval > 0 {
		stats.EnableMemoryStatistics(ctx, interval, config.GetDatadir())
	}

	if _, err := escrowSvc.ReloadTickets(ctx); err != nil {
		log.WithError(err).Error("failed to restore tickets from ledger")
	}

	httpSvc, err := httpinterface.NewService(httpinterface.Opts{
		Port:      config.GetInt(config.HTTPListeningPortKey),
		APISecret: config.GetString(config.APISecretKey),
		Escrow:    escrowSvc,
	})
	if err != nil {
		shutdown(nil, escrowSvc, notifier, repoManager)
		log.WithError(err).Fatal("failed to initialize http interface")
	}
	if err := httpSvc.Start(); err != nil {
		shutdown(nil, escrowSvc, notifier, repoManager)
		log.WithError(err).Fatal("failed to start http interface")
	}

	log.WithFields(log.Fields{
		"network":  config.GetString(config.NetworkKey),
		"db":       config.GetString(config.DBTypeKey),
		"notifier": config.GetString(config.NotifierTypeKey),
	}).Info("escrow daemon started")

	<-ctx.Done()
	log.Info("shutting down daemon")
	shutdown(httpSvc, escrowSvc, notifier, repoManager)
	log.Info("exiting")
}

type stopper interface {
	Stop()
}

// shutdown stops the interface and the engine in parallel, then releases
// the notifier and the ledger they both depend on.
func shutdown(
	httpSvc stopper, escrowSvc *escrow.Service,
	notifier ports.Notifier, repoManager ports.RepoManager,
) {
	g := &errgroup.Group{}
	if httpSvc != nil {
		g.Go(func() error {
			httpSvc.Stop()
			return nil
		})
	}
	g.Go(func() error {
		escrowSvc.Stop()
		return nil
	})
	g.Wait()

	if err := notifier.Close(); err != nil {
		log.WithError(err).Warn("failed to close notifier")
	}
	repoManager.Close()
}

func newRepoManager() (ports.RepoManager, error) {
	cfg := config.GetLedgerConfig()
	if cfg.Type == config.DBInMemory {
		log.Warn("using in-memory ledger, wallets will be lost on shutdown")
	}
	if log.GetLevel() >= log.DebugLevel {
		cfg.Logger = log.StandardLogger()
	}
	return db.NewRepoManager(cfg)
}

func newNotifier() (ports.Notifier, error) {
	switch config.GetString(config.NotifierTypeKey) {
	case config.NotifierWebhook:
		secret := config.GetString(config.WebhookSecretKey)
		endpoints := config.GetStringSlice(config.WebhookEndpointsKey)
		hooks := make([]*webhooknotifier.Webhook, 0, len(endpoints))
		for _, endpoint := range endpoints {
			hook, err := webhooknotifier.ParseWebhook(endpoint, secret)
			if err != nil {
				return nil, err
			}
			hooks = append(hooks, hook)
		}
		return webhooknotifier.NewService(hooks, 0)
	case config.NotifierAMQP:
		return amqpnotifier.NewService(amqpnotifier.Config{
			URL:      config.GetString(config.AMQPURLKey),
			Exchange: config.GetString(config.AMQPExchangeKey),
		})
	default:
		return lognotifier.NewService(nil), nil
	}
}

func newEscrowService(
	repoManager ports.RepoManager,
) (*escrow.Service, ports.Notifier, error) {
	explorerSvc, err := blockcypher.NewService(blockcypher.Opts{
		BaseURL:        config.GetExplorerURL(),
		Token:          config.GetString(config.ExplorerTokenKey),
		RequestTimeout: config.GetDuration(config.ExplorerRequestTimeoutKey),
		Throttle:       explorer.NewThrottle(config.GetExplorerMinSpacing()),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("explorer: %w", err)
	}

	paymentMonitor, err := monitor.New(monitor.Opts{
		Explorer: explorerSvc,
		Config:   config.GetMonitorConfig(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("payment monitor: %w", err)
	}

	builder, err := settlement.NewBuilder(settlement.Opts{
		Explorer:   explorerSvc,
		Network:    config.GetNetwork(),
		DefaultFee: config.GetInt64(config.DefaultFeeKey),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("settlement builder: %w", err)
	}

	issued, err := issuedAddresses(repoManager)
	if err != nil {
		return nil, nil, err
	}
	wallets, err := hdwallet.NewService(config.GetString(config.NetworkKey), 0, issued...)
	if err != nil {
		return nil, nil, fmt.Errorf("wallet provisioner: %w", err)
	}

	currencies := config.GetStringSlice(config.FiatCurrenciesKey)
	priceFeeder, err := coinbasefeeder.NewService(coinbasefeeder.Opts{
		BaseURL:    config.GetString(config.PriceFeedURLKey),
		Currencies: currencies,
		CacheTTL:   config.GetDuration(config.PriceCacheTTLKey),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("price feeder: %w", err)
	}

	var secretBox *wallet.SecretBox
	if passphrase := config.GetString(config.WalletPassphraseKey); passphrase != "" {
		if secretBox, err = wallet.NewSecretBox(passphrase); err != nil {
			return nil, nil, err
		}
	} else {
		log.Warn("wallet passphrase not set, wallet secrets are stored in clear")
	}

	notifier, err := newNotifier()
	if err != nil {
		return nil, nil, fmt.Errorf("notifier: %w", err)
	}

	svc, err := escrow.NewService(escrow.Opts{
		RepoManager:        repoManager,
		Monitor:            paymentMonitor,
		Settler:            builder,
		Wallets:            wallets,
		PriceFeeder:        priceFeeder,
		Notifier:           notifier,
		SecretBox:          secretBox,
		AdminIDs:           config.GetStringSlice(config.AdminIDsKey),
		MaxAddressAttempts: config.GetInt(config.MaxAddressAttemptsKey),
		DefaultCurrency:    currencies[0],
	})
	if err != nil {
		notifier.Close()
		return nil, nil, err
	}
	return svc, notifier, nil
}

// issuedAddresses returns the escrow addresses of every ticket in the ledger
// so that the provisioner never hands them out again.
func issuedAddresses(repoManager ports.RepoManager) ([]string, error) {
	tickets, err := repoManager.TicketRepository().GetAllTickets(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	addresses := make([]string, 0, len(tickets))
	for _, t := range tickets {
		if t.Wallet != nil {
			addresses = append(addresses, t.Wallet.Address)
		}
	}
	return addresses, nil
}
