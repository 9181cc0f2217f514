package escrow_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/escrowd/internal/core/application/escrow"
	"github.com/tdex-network/escrowd/internal/core/application/monitor"
	"github.com/tdex-network/escrowd/internal/core/application/settlement"
	"github.com/tdex-network/escrowd/internal/core/domain"
	"github.com/tdex-network/escrowd/internal/core/ports"
	"github.com/tdex-network/escrowd/internal/infrastructure/storage/db/inmemory"
	"github.com/tdex-network/escrowd/pkg/explorer"
	"github.com/tdex-network/escrowd/pkg/explorer/explorertest"
	"github.com/tdex-network/escrowd/pkg/wallet"
)

const (
	escrowAddress = "ltc1qescrow"
	sellerAddress = "ltc1qseller"
	buyerAddress  = "ltc1qbuyer"
	// 100 USD at 80 USD/LTC.
	dealAmount = int64(125000000)
)

var ctx = context.Background()

func TestReleaseFlow(t *testing.T) {
	explorerSvc := &explorertest.MockService{}
	explorerSvc.On("GetTransactionsForAddress", escrowAddress).Return(
		[]explorer.Transaction{
			explorertest.IncomingTx("tx1", escrowAddress, dealAmount, 1),
		}, nil,
	)
	settler := &mockSettler{}
	settler.On("Settle", mock.MatchedBy(func(req settlement.Request) bool {
		return req.Destination == sellerAddress && req.Amount == dealAmount
	})).Return(&settlement.Result{
		Intended: dealAmount,
		Actual:   dealAmount - 10000,
		Fee:      10000,
		TxID:     "settlement-txid",
		Degraded: true,
	}, nil)

	env := newTestEnv(t, explorerSvc, settler)
	ticketID := env.openDeal(t)

	env.mustHandle(t, ticketID, domain.EventConfirmAmount, "alice", "")
	res := env.mustHandle(t, ticketID, domain.EventConfirmAmount, "bob", "")
	require.Equal(t, domain.TicketStatusPaymentMonitoring.String(), res.Status)
	require.True(t, res.Advanced)

	env.waitForStatus(t, ticketID, domain.TicketStatusAwaitingReleaseDecision)

	ticket, err := env.svc.GetTicket(ctx, ticketID)
	require.NoError(t, err)
	require.Equal(t, escrowAddress, ticket.Wallet.Address)
	require.True(t, ticket.Wallet.Sealed)
	require.Empty(t, ticket.Wallet.PrivateKey)
	require.Empty(t, ticket.Wallet.Mnemonic)
	require.Equal(t, "tx1", ticket.Payment.LastSeenTxID)

	stored, err := env.repo.TicketRepository().GetTicket(ctx, ticketID)
	require.NoError(t, err)
	require.NotEqual(t, env.wallets.wif, stored.Wallet.PrivateKey)

	_, err = env.svc.HandleEvent(ctx, ticketID, domain.EventRelease, "bob", "")
	require.ErrorIs(t, err, domain.ErrAuthorization)

	res = env.mustHandle(t, ticketID, domain.EventRelease, "alice", "")
	require.Equal(t, domain.TicketStatusReleasing.String(), res.Status)

	_, err = env.svc.HandleEvent(
		ctx, ticketID, domain.EventSubmitAddress, "bob", "not-an-address",
	)
	require.ErrorIs(t, err, domain.ErrInvalidAddress)

	env.mustHandle(t, ticketID, domain.EventSubmitAddress, "bob", sellerAddress)
	res = env.mustHandle(t, ticketID, domain.EventConfirmAddress, "bob", "")
	require.Equal(t, domain.TicketStatusReleased.String(), res.Status)
	require.NotNil(t, res.Settlement)
	require.Equal(t, dealAmount-10000, res.Settlement.Actual)
	require.Equal(t, "settlement-txid", res.Settlement.TxID)
	require.True(t, res.Settlement.Degraded)
	settler.AssertNumberOfCalls(t, "Settle", 1)

	_, err = env.svc.GetTicket(ctx, ticketID)
	require.ErrorIs(t, err, domain.ErrTicketNotFound)
	_, err = env.svc.HandleEvent(ctx, ticketID, domain.EventClose, "alice", "")
	require.ErrorIs(t, err, domain.ErrTicketNotFound)

	stats := env.svc.Stats()
	require.Equal(t, 1, stats.Released)
	require.Equal(t, dealAmount-10000, stats.SettledVolume)

	require.True(t, env.notifier.has(ports.NotificationPaymentConfirmed))
	require.True(t, env.notifier.has(ports.NotificationSettlement))
	require.Equal(t, 1, env.wallets.provisioned())
}

func TestRefundFlow(t *testing.T) {
	explorerSvc := &explorertest.MockService{}
	explorerSvc.On("GetTransactionsForAddress", escrowAddress).Return(
		[]explorer.Transaction{
			explorertest.IncomingTx("tx1", escrowAddress, dealAmount, 2),
		}, nil,
	)
	settler := &mockSettler{}
	settler.On("Settle", mock.Anything).Return(
		nil, fmt.Errorf("%w: rejected", settlement.ErrBroadcast),
	).Once()
	settler.On("Settle", mock.Anything).Return(&settlement.Result{
		Intended: dealAmount,
		Actual:   dealAmount,
		Fee:      2000,
		Change:   5000,
		TxID:     "refund-txid",
	}, nil).Once()

	env := newTestEnv(t, explorerSvc, settler)
	ticketID := env.openDeal(t)
	env.mustHandle(t, ticketID, domain.EventConfirmAmount, "alice", "")
	env.mustHandle(t, ticketID, domain.EventConfirmAmount, "bob", "")
	env.waitForStatus(t, ticketID, domain.TicketStatusAwaitingReleaseDecision)

	res := env.mustHandle(t, ticketID, domain.EventCancel, "alice", "")
	require.Equal(t, domain.TicketStatusCancelling.String(), res.Status)
	res = env.mustHandle(t, ticketID, domain.EventConfirmCancel, "alice", "")
	require.Equal(t, domain.TicketStatusCancelling.String(), res.Status)
	_, err := env.svc.HandleEvent(ctx, ticketID, domain.EventSubmitAddress, "alice", buyerAddress)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	res = env.mustHandle(t, ticketID, domain.EventConfirmCancel, "bob", "")
	require.Equal(t, domain.TicketStatusConfirmCancel.String(), res.Status)

	env.mustHandle(t, ticketID, domain.EventSubmitAddress, "alice", buyerAddress)
	_, err = env.svc.HandleEvent(ctx, ticketID, domain.EventConfirmAddress, "alice", "")
	require.ErrorIs(t, err, settlement.ErrBroadcast)

	ticket, err := env.svc.GetTicket(ctx, ticketID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusRefunding, ticket.Status)
	require.False(t, ticket.Settlement.InFlight)
	require.NotEmpty(t, ticket.Settlement.LastError)
	require.True(t, env.notifier.has(ports.NotificationAdminAlert))

	res = env.mustHandle(t, ticketID, domain.EventConfirmAddress, "alice", "")
	require.Equal(t, domain.TicketStatusRefunded.String(), res.Status)
	require.Equal(t, 2, res.Settlement.Attempts)

	// The wallet still holds the change, so the record is retained.
	stored, err := env.repo.TicketRepository().GetTicket(ctx, ticketID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusRefunded, stored.Status)

	stats := env.svc.Stats()
	require.Equal(t, 1, stats.Refunded)
	require.Equal(t, 1, stats.Failures)
}

func TestConcurrentConfirmationsProvisionOneWallet(t *testing.T) {
	explorerSvc := &explorertest.MockService{}
	explorerSvc.On("GetTransactionsForAddress", escrowAddress).Return(
		[]explorer.Transaction{}, nil,
	)

	env := newTestEnv(t, explorerSvc, &mockSettler{})
	ticketID := env.openDeal(t)

	var (
		wg       sync.WaitGroup
		lock     sync.Mutex
		advanced int
	)
	for i := 0; i < 10; i++ {
		for _, actor := range []string{"alice", "bob"} {
			wg.Add(1)
			go func(actor string) {
				defer wg.Done()
				res, err := env.svc.HandleEvent(
					ctx, ticketID, domain.EventConfirmAmount, actor, "",
				)
				if err != nil {
					return
				}
				if res.Advanced {
					lock.Lock()
					advanced++
					lock.Unlock()
				}
			}(actor)
		}
	}
	wg.Wait()

	require.Equal(t, 1, advanced)
	require.Equal(t, 1, env.wallets.provisioned())
}

func TestCloseStopsMonitor(t *testing.T) {
	var polls int32
	explorerSvc := &explorertest.MockService{}
	explorerSvc.On("GetTransactionsForAddress", escrowAddress).Run(func(mock.Arguments) {
		atomic.AddInt32(&polls, 1)
	}).Return([]explorer.Transaction{}, nil)

	env := newTestEnv(t, explorerSvc, &mockSettler{})
	ticketID := env.openDeal(t)
	env.mustHandle(t, ticketID, domain.EventConfirmAmount, "alice", "")
	env.mustHandle(t, ticketID, domain.EventConfirmAmount, "bob", "")

	_, err := env.svc.HandleEvent(ctx, ticketID, domain.EventClose, "bob", "")
	require.ErrorIs(t, err, domain.ErrNotOwner)

	res := env.mustHandle(t, ticketID, domain.EventClose, "alice", "")
	require.Equal(t, domain.TicketStatusClosed.String(), res.Status)

	// Closed tickets holding a wallet are retained for recovery.
	ticket, err := env.svc.GetTicket(ctx, ticketID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusClosed, ticket.Status)
	require.True(t, env.notifier.has(ports.NotificationAdminAlert))

	// Give a poll already in progress the time to return.
	time.Sleep(20 * time.Millisecond)
	count := atomic.LoadInt32(&polls)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, count, atomic.LoadInt32(&polls))
}

func TestAdminActions(t *testing.T) {
	explorerSvc := &explorertest.MockService{}
	explorerSvc.On("GetTransactionsForAddress", escrowAddress).Return(
		[]explorer.Transaction{
			explorertest.IncomingTx("tx1", escrowAddress, dealAmount, 1),
		}, nil,
	)

	env := newTestEnv(t, explorerSvc, &mockSettler{})
	ticketID := env.openDeal(t)

	_, err := env.svc.AdminRelease(ctx, ticketID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	env.mustHandle(t, ticketID, domain.EventConfirmAmount, "alice", "")
	env.mustHandle(t, ticketID, domain.EventConfirmAmount, "bob", "")
	env.waitForStatus(t, ticketID, domain.TicketStatusAwaitingReleaseDecision)

	res, err := env.svc.AdminCancel(ctx, ticketID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusConfirmCancel.String(), res.Status)
	require.Equal(t, []string{"alice"}, env.notifier.last(ports.NotificationAddressRequest).Recipients)

	_, err = env.svc.AdminRelease(ctx, ticketID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = env.svc.HandleEvent(ctx, ticketID, domain.EventRestartMonitor, "alice", "")
	require.ErrorIs(t, err, domain.ErrNotAdmin)
	_, err = env.svc.HandleEvent(ctx, ticketID, domain.EventRestartMonitor, "carol", "")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRestartMonitorAfterDroppedTx(t *testing.T) {
	explorerSvc := &explorertest.MockService{}
	explorerSvc.On("GetTransactionsForAddress", escrowAddress).Return(
		[]explorer.Transaction{
			explorertest.IncomingTx("dropped", escrowAddress, dealAmount, 0),
		}, nil,
	).Once()
	explorerSvc.On("GetTransactionsForAddress", escrowAddress).Return(
		[]explorer.Transaction{
			explorertest.IncomingTx("dropped", escrowAddress, dealAmount, 0),
			explorertest.IncomingTx("replacement", escrowAddress, dealAmount, 1),
		}, nil,
	)
	explorerSvc.On("GetTransaction", "dropped").Return(nil, explorer.ErrNotFound)
	hook := logtest.NewGlobal()
	t.Cleanup(hook.Reset)

	env := newTestEnv(t, explorerSvc, &mockSettler{})
	ticketID := env.openDeal(t)
	env.mustHandle(t, ticketID, domain.EventConfirmAmount, "alice", "")
	env.mustHandle(t, ticketID, domain.EventConfirmAmount, "bob", "")

	require.Eventually(t, func() bool {
		ticket, err := env.svc.GetTicket(ctx, ticketID)
		return err == nil && ticket.Payment != nil && ticket.Payment.Stopped
	}, 5*time.Second, 5*time.Millisecond)

	ticket, err := env.svc.GetTicket(ctx, ticketID)
	require.NoError(t, err)
	require.Equal(t, "dropped", ticket.Payment.PendingTxID)

	var warnings int
	for _, entry := range hook.AllEntries() {
		if entry.Level == log.WarnLevel && entry.Data["ticket"] == ticketID &&
			entry.Message == "payment monitor stopped" {
			warnings++
		}
	}
	require.Equal(t, 1, warnings)

	res := env.mustHandle(t, ticketID, domain.EventRestartMonitor, "carol", "")
	require.Equal(t, domain.TicketStatusPaymentMonitoring.String(), res.Status)

	env.waitForStatus(t, ticketID, domain.TicketStatusAwaitingReleaseDecision)

	ticket, err = env.svc.GetTicket(ctx, ticketID)
	require.NoError(t, err)
	require.Equal(t, "replacement", ticket.Payment.LastSeenTxID)
	require.Contains(t, ticket.Payment.IgnoredTxIDs, "dropped")
	require.Empty(t, ticket.Payment.PendingTxID)
	explorerSvc.AssertNumberOfCalls(t, "GetTransaction", 1)
}

func TestTerminalTicketRetention(t *testing.T) {
	release := func(t *testing.T, env *testEnv, ticketID string) {
		env.mustHandle(t, ticketID, domain.EventConfirmAmount, "alice", "")
		env.mustHandle(t, ticketID, domain.EventConfirmAmount, "bob", "")
		env.waitForStatus(t, ticketID, domain.TicketStatusAwaitingReleaseDecision)
		env.mustHandle(t, ticketID, domain.EventRelease, "alice", "")
		env.mustHandle(t, ticketID, domain.EventSubmitAddress, "bob", sellerAddress)
		res := env.mustHandle(t, ticketID, domain.EventConfirmAddress, "bob", "")
		require.Equal(t, domain.TicketStatusReleased.String(), res.Status)
	}

	tests := []struct {
		name     string
		change   int64
		finish   func(t *testing.T, env *testEnv, ticketID string)
		wantKept bool
	}{
		{
			name: "closed_without_wallet",
			finish: func(t *testing.T, env *testEnv, ticketID string) {
				env.mustHandle(t, ticketID, domain.EventClose, "alice", "")
			},
			wantKept: false,
		},
		{
			name: "closed_with_wallet",
			finish: func(t *testing.T, env *testEnv, ticketID string) {
				env.mustHandle(t, ticketID, domain.EventConfirmAmount, "alice", "")
				env.mustHandle(t, ticketID, domain.EventConfirmAmount, "bob", "")
				env.mustHandle(t, ticketID, domain.EventClose, "alice", "")
			},
			wantKept: true,
		},
		{
			name:     "released_without_change",
			finish:   release,
			wantKept: false,
		},
		{
			name:     "released_with_change",
			change:   5000,
			finish:   release,
			wantKept: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			explorerSvc := &explorertest.MockService{}
			explorerSvc.On("GetTransactionsForAddress", escrowAddress).Return(
				[]explorer.Transaction{
					explorertest.IncomingTx("tx1", escrowAddress, dealAmount, 1),
				}, nil,
			)
			settler := &mockSettler{}
			settler.On("Settle", mock.Anything).Return(&settlement.Result{
				Intended: dealAmount,
				Actual:   dealAmount - 10000 - tt.change,
				Fee:      10000,
				Change:   tt.change,
				TxID:     "settlement-txid",
			}, nil)

			env := newTestEnv(t, explorerSvc, settler)
			ticketID := env.openDeal(t)
			tt.finish(t, env, ticketID)

			stored, err := env.repo.TicketRepository().GetTicket(ctx, ticketID)
			if !tt.wantKept {
				require.ErrorIs(t, err, domain.ErrTicketNotFound)
				return
			}
			require.NoError(t, err)
			require.True(t, stored.Status.IsTerminal())
			require.NotNil(t, stored.Wallet)
		})
	}
}

func TestSetAmount(t *testing.T) {
	env := newTestEnv(t, &explorertest.MockService{}, &mockSettler{})
	ticketID := env.openDealUpToAmount(t)

	tests := []struct {
		name        string
		payload     string
		expectedErr error
	}{
		{"not_a_number", "one hundred", domain.ErrInvalidAmount},
		{"negative", "-10", domain.ErrInvalidAmount},
		{"unsupported_currency", "100 JPY", escrow.ErrUnsupportedCurrency},
		{"too_many_fields", "100 USD now", domain.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.HandleEvent(
				ctx, ticketID, domain.EventSetAmount, "alice", tt.payload,
			)
			require.ErrorIs(t, err, tt.expectedErr)
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	res := env.mustHandle(t, ticketID, domain.EventSetAmount, "bob", "160.00 eur")
	require.Equal(t, domain.TicketStatusAmountConfirmation.String(), res.Status)

	ticket, err := env.svc.GetTicket(ctx, ticketID)
	require.NoError(t, err)
	require.Equal(t, "EUR", ticket.Terms.Quote.Currency)
	require.Equal(t, int64(2*domain.LitoshisPerCoin), ticket.Terms.Amount())
}

func TestReloadTickets(t *testing.T) {
	explorerSvc := &explorertest.MockService{}
	explorerSvc.On("GetTransactionsForAddress", escrowAddress).Return(
		[]explorer.Transaction{
			explorertest.IncomingTx("tx1", escrowAddress, dealAmount, 1),
		}, nil,
	)

	env := newTestEnv(t, explorerSvc, &mockSettler{})
	repo := env.repo.TicketRepository()

	monitoring := &domain.Ticket{
		ID:                 "monitoring",
		Owner:              "alice",
		Counterparty:       "bob",
		CounterpartyJoined: true,
		Status:             domain.TicketStatusPaymentMonitoring,
		Roles:              map[string]domain.Role{"alice": domain.RoleBuyer, "bob": domain.RoleSeller},
		Terms: domain.DealTerms{
			Buyer:     "alice",
			Seller:    "bob",
			Quote:     &domain.Quote{Litoshis: dealAmount},
			Finalized: true,
		},
		Wallet: &domain.Wallet{Address: escrowAddress},
		Payment: &domain.MonitoredPayment{
			Address:        escrowAddress,
			RequiredAmount: dealAmount,
			Attempts:       10,
		},
		CreatedAt: 1,
	}
	interrupted := &domain.Ticket{
		ID:                 "interrupted",
		Owner:              "alice",
		Counterparty:       "bob",
		CounterpartyJoined: true,
		Status:             domain.TicketStatusReleasing,
		Terms:              domain.DealTerms{Buyer: "alice", Seller: "bob"},
		Wallet:             &domain.Wallet{Address: escrowAddress},
		AddressEntry: &domain.AddressEntry{
			Kind: domain.SettlementRelease, Expected: "bob", Address: sellerAddress,
			Confirmed: true,
		},
		Settlement: &domain.Settlement{
			Kind: domain.SettlementRelease, Destination: sellerAddress,
			Intended: dealAmount, InFlight: true, Attempts: 1,
		},
		CreatedAt: 2,
	}
	closed := &domain.Ticket{
		ID:        "closed",
		Owner:     "alice",
		Status:    domain.TicketStatusClosed,
		CreatedAt: 3,
	}
	for _, ticket := range []*domain.Ticket{monitoring, interrupted, closed} {
		require.NoError(t, repo.AddTicket(ctx, ticket))
	}

	count, err := env.svc.ReloadTickets(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	count, err = env.svc.ReloadTickets(ctx)
	require.NoError(t, err)
	require.Zero(t, count)

	env.waitForStatus(t, "monitoring", domain.TicketStatusAwaitingReleaseDecision)

	ticket, err := env.svc.GetTicket(ctx, "interrupted")
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusReleasing, ticket.Status)
	require.False(t, ticket.Settlement.InFlight)
	require.NotEmpty(t, ticket.Settlement.LastError)
	require.True(t, env.notifier.has(ports.NotificationAdminAlert))

	list, err := env.svc.ListTickets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "monitoring", list[0].ID)
	require.Equal(t, "interrupted", list[1].ID)
}

func TestStoppedService(t *testing.T) {
	env := newTestEnv(t, &explorertest.MockService{}, &mockSettler{})
	env.svc.Stop()

	_, err := env.svc.CreateTicket(ctx, "alice", "deal")
	require.ErrorIs(t, err, escrow.ErrServiceStopped)
	_, err = env.svc.ReloadTickets(ctx)
	require.ErrorIs(t, err, escrow.ErrServiceStopped)
}

type testEnv struct {
	svc      *escrow.Service
	repo     ports.RepoManager
	wallets  *fakeWallets
	notifier *fakeNotifier
}

func newTestEnv(
	t *testing.T, explorerSvc explorer.Service, settler escrow.Settler,
) *testEnv {
	cfg := monitor.DefaultConfig()
	cfg.BaseInterval = time.Millisecond
	cfg.MaxInterval = 5 * time.Millisecond
	cfg.ConfirmationInterval = time.Millisecond
	m, err := monitor.New(monitor.Opts{Explorer: explorerSvc, Config: cfg})
	require.NoError(t, err)

	box, err := wallet.NewSecretBox("passphrase")
	require.NoError(t, err)

	env := &testEnv{
		repo:     inmemory.NewRepoManager(),
		wallets:  newFakeWallets(t),
		notifier: &fakeNotifier{},
	}
	env.svc, err = escrow.NewService(escrow.Opts{
		RepoManager:     env.repo,
		Monitor:         m,
		Settler:         settler,
		Wallets:         env.wallets,
		PriceFeeder:     fakePriceFeeder{},
		Notifier:        env.notifier,
		SecretBox:       box,
		AdminIDs:        []string{"carol"},
		DefaultCurrency: "USD",
	})
	require.NoError(t, err)
	t.Cleanup(env.svc.Stop)
	return env
}

// openDeal brings a new ticket to amount confirmation, with alice as buyer
// and bob as seller.
func (e *testEnv) openDeal(t *testing.T) string {
	ticketID := e.openDealUpToAmount(t)
	res := e.mustHandle(t, ticketID, domain.EventSetAmount, "alice", "100.00")
	require.Equal(t, domain.TicketStatusAmountConfirmation.String(), res.Status)
	return ticketID
}

func (e *testEnv) openDealUpToAmount(t *testing.T) string {
	ticketID, err := e.svc.CreateTicket(ctx, "alice", "a used bike")
	require.NoError(t, err)

	e.mustHandle(t, ticketID, domain.EventAddCounterparty, "alice", "bob")
	e.mustHandle(t, ticketID, domain.EventJoin, "bob", "")
	e.mustHandle(t, ticketID, domain.EventPickRole, "alice", "buyer")
	_, err = e.svc.HandleEvent(ctx, ticketID, domain.EventPickRole, "bob", "buyer")
	require.ErrorIs(t, err, domain.ErrRoleTaken)
	e.mustHandle(t, ticketID, domain.EventPickRole, "bob", "seller")
	e.mustHandle(t, ticketID, domain.EventConfirmRoles, "alice", "")
	e.mustHandle(t, ticketID, domain.EventConfirmRoles, "bob", "")
	e.mustHandle(t, ticketID, domain.EventAgreeTos, "alice", "")
	res := e.mustHandle(t, ticketID, domain.EventAgreeTos, "bob", "")
	require.Equal(t, domain.TicketStatusAmountNegotiation.String(), res.Status)
	return ticketID
}

func (e *testEnv) mustHandle(
	t *testing.T, ticketID string, kind domain.EventKind, actor, payload string,
) *escrow.EventResult {
	res, err := e.svc.HandleEvent(ctx, ticketID, kind, actor, payload)
	require.NoError(t, err, "%s by %s", kind, actor)
	return res
}

func (e *testEnv) waitForStatus(
	t *testing.T, ticketID string, status domain.TicketStatus,
) {
	require.Eventually(t, func() bool {
		ticket, err := e.svc.GetTicket(ctx, ticketID)
		return err == nil && ticket.Status == status
	}, 5*time.Second, 5*time.Millisecond)
}

type fakeWallets struct {
	lock  sync.Mutex
	key   *btcec.PrivateKey
	wif   string
	count int
}

func newFakeWallets(t *testing.T) *fakeWallets {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return &fakeWallets{key: key, wif: "wif-of-escrow-key"}
}

func (w *fakeWallets) Provision(context.Context) (*ports.WalletBundle, error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.count++
	return &ports.WalletBundle{
		Address:        escrowAddress,
		PrivateKey:     w.wif,
		Mnemonic:       "abandon abandon about",
		DerivationPath: "m/84'/2'/0'/0/0",
	}, nil
}

func (w *fakeWallets) IsValidAddress(addr string) bool {
	return len(addr) > 5 && addr[:5] == "ltc1q"
}

func (w *fakeWallets) PrivateKey(wif string) (*btcec.PrivateKey, error) {
	if wif != w.wif {
		return nil, fmt.Errorf("unknown key")
	}
	return w.key, nil
}

func (w *fakeWallets) Network() string {
	return "mainnet"
}

func (w *fakeWallets) provisioned() int {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.count
}

type fakePriceFeeder struct{}

func (fakePriceFeeder) GetRate(context.Context, string) (decimal.Decimal, error) {
	return decimal.NewFromInt(80), nil
}

func (fakePriceFeeder) Currencies() []string {
	return []string{"USD", "EUR"}
}

type fakeNotifier struct {
	lock          sync.Mutex
	notifications []ports.Notification
}

func (n *fakeNotifier) Notify(_ context.Context, notification ports.Notification) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.notifications = append(n.notifications, notification)
	return nil
}

func (n *fakeNotifier) Close() error { return nil }

func (n *fakeNotifier) has(kind ports.NotificationKind) bool {
	n.lock.Lock()
	defer n.lock.Unlock()
	for _, notification := range n.notifications {
		if notification.Kind == kind {
			return true
		}
	}
	return false
}

func (n *fakeNotifier) last(kind ports.NotificationKind) ports.Notification {
	n.lock.Lock()
	defer n.lock.Unlock()
	for i := len(n.notifications) - 1; i >= 0; i-- {
		if n.notifications[i].Kind == kind {
			return n.notifications[i]
		}
	}
	return ports.Notification{}
}

type mockSettler struct {
	mock.Mock
}

func (m *mockSettler) Settle(
	_ context.Context, req settlement.Request,
) (*settlement.Result, error) {
	args := m.Called(req)

	var res *settlement.Result
	if a := args.Get(0); a != nil {
		res = a.(*settlement.Result)
	}
	return res, args.Error(1)
}
