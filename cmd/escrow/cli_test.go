package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/escrowd/pkg/wallet"
	"github.com/urfave/cli/v2"
)

const (
	testActor  = "carol"
	testSecret = "operator-secret"
)

type request struct {
	method string
	path   string
	actor  string
	token  string
	body   map[string]string
}

type fakeDaemon struct {
	lock     sync.Mutex
	requests []request
}

func (d *fakeDaemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := request{
		method: r.Method,
		path:   r.URL.RequestURI(),
		actor:  r.Header.Get(actorHeader),
		token:  strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req.body)
	}

	d.lock.Lock()
	d.requests = append(d.requests, req)
	d.lock.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/missing"):
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found","message":"ticket not found"}`))
	case r.URL.Path == "/v1/admin/reload":
		_, _ = w.Write([]byte(`{"restored":2}`))
	default:
		_, _ = w.Write([]byte(`{}`))
	}
}

func (d *fakeDaemon) last() request {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.requests[len(d.requests)-1]
}

func setupState(t *testing.T, server string) {
	t.Helper()
	escrowDataDir = t.TempDir()
	statePath = filepath.Join(escrowDataDir, "state.json")

	app := newTestApp()
	require.NoError(t, app.Run([]string{
		"escrow", "config", "init",
		"--server", server, "--actor", testActor, "--api_secret", testSecret,
	}))
}

func newTestApp() *cli.App {
	app := cli.NewApp()
	app.Commands = []*cli.Command{
		&config, &tickets, &release, &cancel, &closeTicket,
		&restartMonitor, &reload, &stats, &genwallet, &recoverwallet,
	}
	return app
}

func TestConfigState(t *testing.T) {
	setupState(t, "http://localhost:9080")

	state, err := getState()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:9080", state["server"])
	require.Equal(t, testActor, state["actor"])

	require.NoError(t, newTestApp().Run([]string{
		"escrow", "config", "set", "server", "http://escrowd:9080",
	}))
	state, err = getState()
	require.NoError(t, err)
	require.Equal(t, "http://escrowd:9080", state["server"])
	require.Equal(t, testActor, state["actor"])
}

func TestCommands(t *testing.T) {
	daemon := &fakeDaemon{}
	srv := httptest.NewServer(daemon)
	t.Cleanup(srv.Close)
	setupState(t, srv.URL)

	tests := []struct {
		name   string
		args   []string
		method string
		path   string
		body   map[string]string
	}{
		{"list", []string{"tickets", "list"}, http.MethodGet, "/v1/tickets", nil},
		{
			"list by status",
			[]string{"tickets", "list", "--status", "payment_monitoring"},
			http.MethodGet, "/v1/tickets?status=payment_monitoring", nil,
		},
		{"show", []string{"tickets", "show", "t1"}, http.MethodGet, "/v1/tickets/t1", nil},
		{"release", []string{"release", "t1"}, http.MethodPost, "/v1/admin/tickets/t1/release", nil},
		{"cancel", []string{"cancel", "t1"}, http.MethodPost, "/v1/admin/tickets/t1/cancel", nil},
		{
			"close", []string{"close", "t1"}, http.MethodPost, "/v1/tickets/t1/events",
			map[string]string{"kind": "close"},
		},
		{
			"restart monitor", []string{"restart-monitor", "t1"},
			http.MethodPost, "/v1/tickets/t1/events",
			map[string]string{"kind": "restart_monitor"},
		},
		{"reload", []string{"reload"}, http.MethodPost, "/v1/admin/reload", nil},
		{"stats", []string{"stats"}, http.MethodGet, "/v1/admin/stats", nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := newTestApp().Run(append([]string{"escrow"}, tt.args...))
			require.NoError(t, err)

			req := daemon.last()
			require.Equal(t, tt.method, req.method)
			require.Equal(t, tt.path, req.path)
			require.Equal(t, testActor, req.actor)
			if tt.body != nil {
				require.Equal(t, tt.body, req.body)
			}

			claims := &jwt.StandardClaims{}
			token, err := jwt.ParseWithClaims(
				req.token, claims, func(*jwt.Token) (interface{}, error) {
					return []byte(testSecret), nil
				},
			)
			require.NoError(t, err)
			require.True(t, token.Valid)
			require.Equal(t, testActor, claims.Subject)
		})
	}
}

func TestFailingCommands(t *testing.T) {
	daemon := &fakeDaemon{}
	srv := httptest.NewServer(daemon)
	t.Cleanup(srv.Close)
	setupState(t, srv.URL)

	err := newTestApp().Run([]string{"escrow", "tickets", "show", "missing"})
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
	require.Equal(t, "not_found", apiErr.Code)

	err = newTestApp().Run([]string{"escrow", "release"})
	var usageErr *invalidUsageError
	require.ErrorAs(t, err, &usageErr)
}

func TestWalletCommands(t *testing.T) {
	net, err := wallet.NetworkByName(wallet.NetworkTestnet)
	require.NoError(t, err)
	w, err := wallet.NewWallet(wallet.NewWalletOpts{EntropySize: 128, Network: net})
	require.NoError(t, err)
	mnemonic, err := w.Mnemonic()
	require.NoError(t, err)
	require.Len(t, mnemonic, 12)

	require.NoError(t, newTestApp().Run([]string{
		"escrow", "recoverwallet", "--network", "testnet",
		"--mnemonic", strings.Join(mnemonic, " "),
	}))
	require.Error(t, newTestApp().Run([]string{
		"escrow", "recoverwallet", "--mnemonic", "not a valid mnemonic",
	}))
	require.Error(t, newTestApp().Run([]string{
		"escrow", "genwallet", "--entropy", "100",
	}))
}
