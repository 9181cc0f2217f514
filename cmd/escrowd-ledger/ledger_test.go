package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/escrowd/internal/core/domain"
	"github.com/tdex-network/escrowd/internal/infrastructure/storage/db/inmemory"
)

func newTicket(t *testing.T, owner string) *domain.Ticket {
	t.Helper()
	ticket, err := domain.NewTicket(owner, "deal with "+owner)
	require.NoError(t, err)
	ticket.Status = domain.TicketStatusPaymentMonitoring
	ticket.Wallet = &domain.Wallet{
		Address:        "tltc1qexampleaddress",
		PrivateKey:     "sealed-key",
		Mnemonic:       "sealed-mnemonic",
		DerivationPath: "m/84'/1'/0'/0/0",
		Sealed:         true,
	}
	return ticket
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	source := inmemory.NewRepoManager().TicketRepository()
	tickets := []*domain.Ticket{newTicket(t, "alice"), newTicket(t, "bob")}
	for _, ticket := range tickets {
		require.NoError(t, source.AddTicket(ctx, ticket))
	}

	buf := &bytes.Buffer{}
	count, err := exportTickets(ctx, source, buf)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	var d dump
	require.NoError(t, json.Unmarshal(buf.Bytes(), &d))
	require.Equal(t, dumpVersion, d.Version)
	require.Len(t, d.Tickets, 2)

	target := inmemory.NewRepoManager().TicketRepository()
	report, err := importTickets(ctx, target, bytes.NewReader(buf.Bytes()), false)
	require.NoError(t, err)
	require.Equal(t, 2, report.Imported)
	require.Zero(t, report.Skipped)

	for _, ticket := range tickets {
		imported, err := target.GetTicket(ctx, ticket.ID)
		require.NoError(t, err)
		require.Equal(t, ticket.Owner, imported.Owner)
		require.Equal(t, ticket.Status, imported.Status)
		require.Equal(t, *ticket.Wallet, *imported.Wallet)
	}

	report, err = importTickets(ctx, target, bytes.NewReader(buf.Bytes()), false)
	require.NoError(t, err)
	require.Zero(t, report.Imported)
	require.Equal(t, 2, report.Skipped)

	report, err = importTickets(ctx, target, bytes.NewReader(buf.Bytes()), true)
	require.NoError(t, err)
	require.Equal(t, 2, report.Imported)
}

func TestFailingImport(t *testing.T) {
	tests := []struct {
		name        string
		dump        string
		expectedErr string
	}{
		{"malformed", "{", "invalid dump"},
		{"unknown version", `{"version":7,"tickets":[]}`, errUnsupportedDump.Error()},
		{"missing id", `{"version":1,"tickets":[{"owner":"alice"}]}`, "ticket without id"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			repo := inmemory.NewRepoManager().TicketRepository()
			_, err := importTickets(
				context.Background(), repo, strings.NewReader(tt.dump), false,
			)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}
