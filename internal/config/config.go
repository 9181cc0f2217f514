package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/viper"
	"github.com/tdex-network/escrowd/internal/core/application/monitor"
	"github.com/tdex-network/escrowd/internal/core/application/settlement"
	"github.com/tdex-network/escrowd/internal/core/domain"
	"github.com/tdex-network/escrowd/internal/infrastructure/storage/db"
	dbredis "github.com/tdex-network/escrowd/internal/infrastructure/storage/db/redis"
	"github.com/tdex-network/escrowd/pkg/wallet"
)

const (
	// NetworkKey is the Litecoin network to use. Either "mainnet" or "testnet"
	NetworkKey = "NETWORK"
	// DatadirKey is the local data directory to store the internal state of daemon
	DatadirKey = "DATADIR"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// HTTPListeningPortKey is the port where the http interface listens on
	HTTPListeningPortKey = "HTTP_LISTENING_PORT"
	// StatsIntervalKey defines the interval in seconds for logging memory
	// statistics, 0 disables them
	StatsIntervalKey = "STATS_INTERVAL"
	// APISecretKey is the secret the chat bots sign their bearer tokens with.
	// Authentication is disabled if empty.
	APISecretKey = "API_SECRET"
	// DBTypeKey is used to switch database type between those supported
	DBTypeKey = "DB_TYPE"
	// RedisAddrKey is the <host:port> of the redis server
	RedisAddrKey = "REDIS_ADDR"
	// RedisPasswordKey ...
	RedisPasswordKey = "REDIS_PASSWORD"
	// RedisDBKey is the number of the redis logical database
	RedisDBKey = "REDIS_DB"
	// RedisPrefixKey is the prefix of every key written to redis
	RedisPrefixKey = "REDIS_PREFIX"
	// WalletPassphraseKey is used to encrypt the wallet secrets stored in the
	// ledger. Secrets are stored in clear if empty.
	WalletPassphraseKey = "WALLET_PASSPHRASE"
	// ExplorerURLKey is the chain root of the BlockCypher compatible REST API
	ExplorerURLKey = "EXPLORER_URL"
	// ExplorerTokenKey is the optional API token of the explorer
	ExplorerTokenKey = "EXPLORER_TOKEN"
	// ExplorerMinSpacingKey are the milliseconds between two consecutive calls
	// to the explorer
	ExplorerMinSpacingKey = "EXPLORER_MIN_SPACING_MS"
	// ExplorerRequestTimeoutKey is the timeout of every http request to the explorer
	ExplorerRequestTimeoutKey = "EXPLORER_REQUEST_TIMEOUT"
	// PriceFeedURLKey is the root of the Coinbase REST API
	PriceFeedURLKey = "PRICE_FEED_URL"
	// PriceCacheTTLKey is how long an exchange rate is served from cache
	PriceCacheTTLKey = "PRICE_CACHE_TTL"
	// FiatCurrenciesKey is the comma separated list of accepted fiat
	// currencies. The first one is the default for amounts without currency.
	FiatCurrenciesKey = "FIAT_CURRENCIES"
	// NotifierTypeKey is used to switch notifier between those supported
	NotifierTypeKey = "NOTIFIER_TYPE"
	// WebhookEndpointsKey is the comma separated list of webhook endpoints, each
	// in the form "url" or "kind1+kind2=url"
	WebhookEndpointsKey = "WEBHOOK_ENDPOINTS"
	// WebhookSecretKey is used to sign the requests to the webhooks
	WebhookSecretKey = "WEBHOOK_SECRET"
	// AMQPURLKey is the url of the RabbitMQ broker
	AMQPURLKey = "AMQP_URL"
	// AMQPExchangeKey is the topic exchange notifications are published to
	AMQPExchangeKey = "AMQP_EXCHANGE"
	// AdminIDsKey is the comma separated list of chat users allowed to run
	// admin commands
	AdminIDsKey = "ADMIN_IDS"
	// RequiredConfirmationsKey is the number of confirmations a payment needs
	RequiredConfirmationsKey = "REQUIRED_CONFIRMATIONS"
	// PollBaseIntervalKey is the initial interval between two polls for payments
	PollBaseIntervalKey = "POLL_BASE_INTERVAL"
	// PollMaxIntervalKey is the cap of the polling interval
	PollMaxIntervalKey = "POLL_MAX_INTERVAL"
	// PollMaxAttemptsKey is the number of polls before giving up
	PollMaxAttemptsKey = "POLL_MAX_ATTEMPTS"
	// ConfirmationIntervalKey is the interval between two confirmation checks
	ConfirmationIntervalKey = "CONFIRMATION_INTERVAL"
	// ConfirmationMaxAttemptsKey is the number of confirmation checks before giving up
	ConfirmationMaxAttemptsKey = "CONFIRMATION_MAX_ATTEMPTS"
	// DefaultFeeKey is the fee in litoshis used when the fee rate can't be estimated
	DefaultFeeKey = "DEFAULT_FEE"
	// MaxAddressAttemptsKey is the number of invalid addresses accepted
	// before an address entry is locked
	MaxAddressAttemptsKey = "MAX_ADDRESS_ATTEMPTS"

	DbLocation = "db"

	DBBadger   = db.TypeBadger
	DBRedis    = db.TypeRedis
	DBInMemory = db.TypeInMemory

	NotifierLog     = "log"
	NotifierWebhook = "webhook"
	NotifierAMQP    = "amqp"

	blockcypherMainnetURL = "https://api.blockcypher.com/v1/ltc/main"
	coinbaseURL           = "https://api.coinbase.com"
)

var (
	vip            *viper.Viper
	defaultDatadir = btcutil.AppDataDir("escrowd", false)

	supportedDBs = map[string]struct{}{
		DBBadger:   {},
		DBRedis:    {},
		DBInMemory: {},
	}
	supportedNotifiers = map[string]struct{}{
		NotifierLog:     {},
		NotifierWebhook: {},
		NotifierAMQP:    {},
	}
)

func InitConfig() error {
	vip = viper.New()
	vip.SetEnvPrefix("ESCROW")
	vip.AutomaticEnv()

	vip.SetDefault(NetworkKey, wallet.NetworkMainnet)
	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(HTTPListeningPortKey, 9080)
	vip.SetDefault(StatsIntervalKey, 600)
	vip.SetDefault(DBTypeKey, DBBadger)
	vip.SetDefault(RedisAddrKey, "localhost:6379")
	vip.SetDefault(RedisDBKey, 0)
	vip.SetDefault(RedisPrefixKey, "escrowd")
	vip.SetDefault(ExplorerMinSpacingKey, 1200)
	vip.SetDefault(ExplorerRequestTimeoutKey, 15*time.Second)
	vip.SetDefault(PriceFeedURLKey, coinbaseURL)
	vip.SetDefault(PriceCacheTTLKey, 60*time.Second)
	vip.SetDefault(FiatCurrenciesKey, "USD,EUR")
	vip.SetDefault(NotifierTypeKey, NotifierLog)
	vip.SetDefault(AMQPExchangeKey, "escrowd.notifications")
	vip.SetDefault(RequiredConfirmationsKey, monitor.DefaultRequiredConfirmations)
	vip.SetDefault(PollBaseIntervalKey, monitor.DefaultBaseInterval)
	vip.SetDefault(PollMaxIntervalKey, monitor.DefaultMaxInterval)
	vip.SetDefault(PollMaxAttemptsKey, monitor.DefaultMaxAttempts)
	vip.SetDefault(ConfirmationIntervalKey, monitor.DefaultConfirmationInterval)
	vip.SetDefault(ConfirmationMaxAttemptsKey, monitor.DefaultConfirmationMaxAttempts)
	vip.SetDefault(DefaultFeeKey, settlement.DefaultFee)
	vip.SetDefault(MaxAddressAttemptsKey, domain.DefaultMaxAddressAttempts)

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	return nil
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetInt64(key string) int64 {
	return vip.GetInt64(key)
}

func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

// GetStringSlice returns the trimmed, non empty items of a comma separated
// value.
func GetStringSlice(key string) []string {
	list := make([]string, 0)
	for _, v := range strings.Split(vip.GetString(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			list = append(list, v)
		}
	}
	return list
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

// GetDbDir returns the directory of the badger ledger of the current network.
func GetDbDir() string {
	return filepath.Join(GetDatadir(), GetString(NetworkKey), DbLocation)
}

// GetLedgerConfig returns the backend selection of the deal ledger.
func GetLedgerConfig() db.Config {
	return db.Config{
		Type: GetString(DBTypeKey),
		Dir:  GetDbDir(),
		Redis: dbredis.Config{
			Address:  GetString(RedisAddrKey),
			Password: GetString(RedisPasswordKey),
			DB:       GetInt(RedisDBKey),
			Prefix:   GetString(RedisPrefixKey),
		},
	}
}

func GetNetwork() *chaincfg.Params {
	net, _ := wallet.NetworkByName(GetString(NetworkKey))
	return net
}

func GetExplorerURL() string {
	if u := GetString(ExplorerURLKey); u != "" {
		return u
	}
	return blockcypherMainnetURL
}

func GetStatsInterval() time.Duration {
	return time.Duration(GetInt(StatsIntervalKey)) * time.Second
}

func GetExplorerMinSpacing() time.Duration {
	return time.Duration(GetInt(ExplorerMinSpacingKey)) * time.Millisecond
}

// GetMonitorConfig returns the polling policy of the payment monitors.
func GetMonitorConfig() monitor.Config {
	cfg := monitor.DefaultConfig()
	cfg.BaseInterval = GetDuration(PollBaseIntervalKey)
	cfg.MaxInterval = GetDuration(PollMaxIntervalKey)
	cfg.MaxAttempts = GetInt(PollMaxAttemptsKey)
	cfg.ConfirmationInterval = GetDuration(ConfirmationIntervalKey)
	cfg.ConfirmationMaxAttempts = GetInt(ConfirmationMaxAttemptsKey)
	cfg.RequiredConfirmations = GetInt(RequiredConfirmationsKey)
	return cfg
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("missing datadir")
	}

	if _, err := wallet.NetworkByName(GetString(NetworkKey)); err != nil {
		return err
	}

	port := GetInt(HTTPListeningPortKey)
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s must be a valid port number", HTTPListeningPortKey)
	}

	if _, ok := supportedDBs[GetString(DBTypeKey)]; !ok {
		return fmt.Errorf(
			"%s must be one of %s, %s, %s", DBTypeKey, DBBadger, DBRedis, DBInMemory,
		)
	}
	if GetString(DBTypeKey) == DBRedis && GetString(RedisAddrKey) == "" {
		return fmt.Errorf("missing redis address")
	}

	if GetString(NetworkKey) != wallet.NetworkMainnet && GetString(ExplorerURLKey) == "" {
		return fmt.Errorf("%s is required on %s", ExplorerURLKey, GetString(NetworkKey))
	}
	for _, key := range []string{ExplorerURLKey, PriceFeedURLKey} {
		if v := GetString(key); v != "" {
			if u, err := url.Parse(v); err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("%s is not a valid url", key)
			}
		}
	}
	if GetInt(ExplorerMinSpacingKey) < 0 {
		return fmt.Errorf("%s must not be negative", ExplorerMinSpacingKey)
	}

	if len(GetStringSlice(FiatCurrenciesKey)) <= 0 {
		return fmt.Errorf("%s must not be empty", FiatCurrenciesKey)
	}

	switch GetString(NotifierTypeKey) {
	case NotifierWebhook:
		if len(GetStringSlice(WebhookEndpointsKey)) <= 0 {
			return fmt.Errorf("missing webhook endpoints")
		}
	case NotifierAMQP:
		if GetString(AMQPURLKey) == "" {
			return fmt.Errorf("missing amqp url")
		}
	default:
		if _, ok := supportedNotifiers[GetString(NotifierTypeKey)]; !ok {
			return fmt.Errorf(
				"%s must be one of %s, %s, %s",
				NotifierTypeKey, NotifierLog, NotifierWebhook, NotifierAMQP,
			)
		}
	}

	if GetInt(StatsIntervalKey) < 0 {
		return fmt.Errorf("%s must not be negative", StatsIntervalKey)
	}

	if len(GetStringSlice(AdminIDsKey)) <= 0 {
		return fmt.Errorf("at least one admin id is required")
	}

	if GetInt64(DefaultFeeKey) < settlement.DustLimit {
		return fmt.Errorf("%s must be at least %d", DefaultFeeKey, settlement.DustLimit)
	}
	if GetInt(MaxAddressAttemptsKey) <= 0 {
		return fmt.Errorf("%s must be positive", MaxAddressAttemptsKey)
	}

	return GetMonitorConfig().Validate()
}

func initDatadir() error {
	if GetString(DBTypeKey) != DBBadger {
		return makeDirectoryIfNotExists(GetDatadir())
	}
	return makeDirectoryIfNotExists(GetDbDir())
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
