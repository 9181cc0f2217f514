package db_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/escrowd/internal/core/domain"
	"github.com/tdex-network/escrowd/internal/core/ports"
	dbbadger "github.com/tdex-network/escrowd/internal/infrastructure/storage/db/badger"
	"github.com/tdex-network/escrowd/internal/infrastructure/storage/db/inmemory"
	dbredis "github.com/tdex-network/escrowd/internal/infrastructure/storage/db/redis"
)

var ctx = context.Background()

type ticketRepository struct {
	Name       string
	Repository domain.TicketRepository
}

func TestTicketRepositoryImplementations(t *testing.T) {
	repositories := createTicketRepositories(t)

	for i := range repositories {
		repo := repositories[i]

		t.Run(repo.Name, func(t *testing.T) {
			t.Run("testAddAndGetTicket", func(t *testing.T) {
				testAddAndGetTicket(t, repo)
			})

			t.Run("testSaveTicket", func(t *testing.T) {
				testSaveTicket(t, repo)
			})

			t.Run("testGetTicketsByStatus", func(t *testing.T) {
				testGetTicketsByStatus(t, repo)
			})

			t.Run("testUpdateTicket", func(t *testing.T) {
				testUpdateTicket(t, repo)
			})

			t.Run("testUpdateTicket_rollback", func(t *testing.T) {
				testUpdateTicketRollback(t, repo)
			})

			t.Run("testDeleteTicket", func(t *testing.T) {
				testDeleteTicket(t, repo)
			})
		})
	}
}

func testAddAndGetTicket(t *testing.T, repo ticketRepository) {
	ticket := newTestTicket(t)
	ticket.Wallet = &domain.Wallet{
		Address:    "ltc1qtest",
		PrivateKey: "sealed-key",
		Sealed:     true,
	}

	err := repo.Repository.AddTicket(ctx, ticket)
	require.NoError(t, err)

	err = repo.Repository.AddTicket(ctx, ticket)
	require.Error(t, err)

	got, err := repo.Repository.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, ticket.Owner, got.Owner)
	require.Equal(t, ticket.Status, got.Status)
	require.Equal(t, *ticket.Wallet, *got.Wallet)

	_, err = repo.Repository.GetTicket(ctx, "unknown")
	require.ErrorIs(t, err, domain.ErrTicketNotFound)
}

func testSaveTicket(t *testing.T, repo ticketRepository) {
	ticket := newTestTicket(t)

	err := repo.Repository.SaveTicket(ctx, ticket)
	require.NoError(t, err)

	ticket.Status = domain.TicketStatusPaymentMonitoring
	ticket.Confirmations[domain.StageAmount] = domain.ConfirmationSet{"alice", "bob"}
	ticket.Payment = &domain.MonitoredPayment{
		Address:        "ltc1qtest",
		RequiredAmount: 100000,
		IgnoredTxIDs:   []string{"txid"},
		Attempts:       3,
	}
	err = repo.Repository.SaveTicket(ctx, ticket)
	require.NoError(t, err)

	got, err := repo.Repository.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusPaymentMonitoring, got.Status)
	require.Equal(t, *ticket.Payment, *got.Payment)
	require.True(t, got.Confirmations[domain.StageAmount].ContainsAll("alice", "bob"))
}

func testGetTicketsByStatus(t *testing.T, repo ticketRepository) {
	released := newTestTicket(t)
	released.Status = domain.TicketStatusReleased
	closed := newTestTicket(t)
	closed.Status = domain.TicketStatusClosed

	for _, ticket := range []*domain.Ticket{released, closed} {
		err := repo.Repository.AddTicket(ctx, ticket)
		require.NoError(t, err)
	}

	tickets, err := repo.Repository.GetTicketsByStatus(
		ctx, domain.TicketStatusReleased, domain.TicketStatusClosed,
	)
	require.NoError(t, err)
	require.Len(t, tickets, 2)

	tickets, err = repo.Repository.GetTicketsByStatus(ctx, domain.TicketStatusRefunded)
	require.NoError(t, err)
	require.Empty(t, tickets)

	all, err := repo.Repository.GetAllTickets(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(all), 2)
	for i := 1; i < len(all); i++ {
		require.LessOrEqual(t, all[i-1].CreatedAt, all[i].CreatedAt)
	}
}

func testUpdateTicket(t *testing.T, repo ticketRepository) {
	ticket := newTestTicket(t)
	err := repo.Repository.AddTicket(ctx, ticket)
	require.NoError(t, err)

	err = repo.Repository.UpdateTicket(
		ctx, ticket.ID, func(t *domain.Ticket) (*domain.Ticket, error) {
			t.Counterparty = "bob"
			t.Status = domain.TicketStatusAwaitingCounterparty
			return t, nil
		},
	)
	require.NoError(t, err)

	got, err := repo.Repository.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, "bob", got.Counterparty)
	require.Equal(t, domain.TicketStatusAwaitingCounterparty, got.Status)

	err = repo.Repository.UpdateTicket(
		ctx, "unknown", func(t *domain.Ticket) (*domain.Ticket, error) {
			return t, nil
		},
	)
	require.ErrorIs(t, err, domain.ErrTicketNotFound)
}

func testUpdateTicketRollback(t *testing.T, repo ticketRepository) {
	ticket := newTestTicket(t)
	err := repo.Repository.AddTicket(ctx, ticket)
	require.NoError(t, err)

	errSomethingWentWrong := errors.New("something went wrong")
	err = repo.Repository.UpdateTicket(
		ctx, ticket.ID, func(t *domain.Ticket) (*domain.Ticket, error) {
			t.Counterparty = "bob"
			return nil, errSomethingWentWrong
		},
	)
	require.ErrorIs(t, err, errSomethingWentWrong)

	got, err := repo.Repository.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Empty(t, got.Counterparty)
}

func testDeleteTicket(t *testing.T, repo ticketRepository) {
	ticket := newTestTicket(t)
	err := repo.Repository.AddTicket(ctx, ticket)
	require.NoError(t, err)

	err = repo.Repository.DeleteTicket(ctx, ticket.ID)
	require.NoError(t, err)

	_, err = repo.Repository.GetTicket(ctx, ticket.ID)
	require.ErrorIs(t, err, domain.ErrTicketNotFound)

	err = repo.Repository.DeleteTicket(ctx, ticket.ID)
	require.ErrorIs(t, err, domain.ErrTicketNotFound)
}

func createTicketRepositories(t *testing.T) []ticketRepository {
	badgerDbManager, err := dbbadger.NewRepoManager(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(badgerDbManager.Close)

	repos := []ticketRepository{
		{
			Name:       "badger",
			Repository: badgerDbManager.TicketRepository(),
		},
		{
			Name:       "inmemory",
			Repository: inmemory.NewRepoManager().TicketRepository(),
		},
	}

	// The redis implementation is tested only against a live server.
	if addr := os.Getenv("ESCROW_TEST_REDIS_ADDR"); addr != "" {
		var redisDbManager ports.RepoManager
		redisDbManager, err = dbredis.NewRepoManager(dbredis.Config{
			Address: addr,
			Prefix:  "escrowd-test-" + randomId(),
		})
		require.NoError(t, err)
		t.Cleanup(redisDbManager.Close)

		repos = append(repos, ticketRepository{
			Name:       "redis",
			Repository: redisDbManager.TicketRepository(),
		})
	}
	return repos
}

func newTestTicket(t *testing.T) *domain.Ticket {
	ticket, err := domain.NewTicket("alice", "a deal")
	require.NoError(t, err)
	return ticket
}
