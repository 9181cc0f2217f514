package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/escrowd/internal/config"
	"github.com/tdex-network/escrowd/pkg/wallet"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Setenv("ESCROW_DATADIR", t.TempDir())
	t.Setenv("ESCROW_ADMIN_IDS", "carol, dave")
	for k, v := range kv {
		t.Setenv("ESCROW_"+k, v)
	}
}

func TestInitConfig(t *testing.T) {
	setEnv(t, map[string]string{
		config.PollBaseIntervalKey: "10s",
		config.FiatCurrenciesKey:   "eur, usd,",
	})
	require.NoError(t, config.InitConfig())

	require.Equal(t, wallet.NetworkMainnet, config.GetString(config.NetworkKey))
	require.Equal(t, wallet.LitecoinMainNetParams, config.GetNetwork())
	require.Equal(t, []string{"carol", "dave"}, config.GetStringSlice(config.AdminIDsKey))
	require.Equal(t, []string{"eur", "usd"}, config.GetStringSlice(config.FiatCurrenciesKey))
	require.Equal(t, "https://api.blockcypher.com/v1/ltc/main", config.GetExplorerURL())
	require.Equal(t, 1200*time.Millisecond, config.GetExplorerMinSpacing())
	require.Equal(t, 60*time.Second, config.GetDuration(config.PriceCacheTTLKey))
	require.Equal(t, 10*time.Minute, config.GetStatsInterval())

	ledgerCfg := config.GetLedgerConfig()
	require.Equal(t, config.DBBadger, ledgerCfg.Type)
	require.Equal(t, config.GetDbDir(), ledgerCfg.Dir)
	require.Equal(t, "escrowd", ledgerCfg.Redis.Prefix)

	monitorCfg := config.GetMonitorConfig()
	require.Equal(t, 10*time.Second, monitorCfg.BaseInterval)
	require.NoError(t, monitorCfg.Validate())

	info, err := os.Stat(config.GetDbDir())
	require.NoError(t, err)
	require.True(t, info.IsDir())
	require.Equal(t, filepath.Join(config.GetDatadir(), "mainnet", "db"), config.GetDbDir())
}

func TestFailingInitConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown network", map[string]string{config.NetworkKey: "regtest"}},
		{"testnet without explorer", map[string]string{config.NetworkKey: "testnet"}},
		{"invalid port", map[string]string{config.HTTPListeningPortKey: "70000"}},
		{"unknown db", map[string]string{config.DBTypeKey: "postgres"}},
		{"invalid explorer url", map[string]string{config.ExplorerURLKey: "not a url"}},
		{"unknown notifier", map[string]string{config.NotifierTypeKey: "slack"}},
		{"webhook without endpoints", map[string]string{config.NotifierTypeKey: "webhook"}},
		{"amqp without url", map[string]string{config.NotifierTypeKey: "amqp"}},
		{"no admins", map[string]string{config.AdminIDsKey: " "}},
		{"negative stats interval", map[string]string{config.StatsIntervalKey: "-1"}},
		{"dust fee", map[string]string{config.DefaultFeeKey: "100"}},
		{"invalid poll policy", map[string]string{
			config.PollBaseIntervalKey: "10m", config.PollMaxIntervalKey: "1m",
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.env)
			require.Error(t, config.InitConfig())
		})
	}
}
