package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tdex-network/escrowd/internal/core/domain"
)

const dumpVersion = 1

var errUnsupportedDump = errors.New("unsupported dump version")

type dump struct {
	Version    int              `json:"version"`
	ExportedAt int64            `json:"exportedAt"`
	Tickets    []*domain.Ticket `json:"tickets"`
}

type importReport struct {
	Imported int
	Skipped  int
}

func exportAction(cmd *cobra.Command, _ []string) error {
	repoManager, err := openLedger()
	if err != nil {
		return err
	}
	defer repoManager.Close()

	w := io.Writer(os.Stdout)
	if outFile != "" {
		f, err := os.OpenFile(outFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	count, err := exportTickets(cmd.Context(), repoManager.TicketRepository(), w)
	if err != nil {
		return err
	}
	log.Infof("exported %d tickets", count)
	return nil
}

func importAction(cmd *cobra.Command, _ []string) error {
	r := io.Reader(os.Stdin)
	if inFile != "" {
		f, err := os.Open(inFile)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	repoManager, err := openLedger()
	if err != nil {
		return err
	}
	defer repoManager.Close()

	report, err := importTickets(
		cmd.Context(), repoManager.TicketRepository(), r, overwrite,
	)
	if err != nil {
		return err
	}
	log.Infof("imported %d tickets, skipped %d", report.Imported, report.Skipped)
	return nil
}

// exportTickets writes all tickets to w. Wallet secrets are written as they
// are stored, sealed if the daemon runs with a passphrase.
func exportTickets(
	ctx context.Context, repo domain.TicketRepository, w io.Writer,
) (int, error) {
	tickets, err := repo.GetAllTickets(ctx)
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dump{
		Version:    dumpVersion,
		ExportedAt: time.Now().Unix(),
		Tickets:    tickets,
	}); err != nil {
		return 0, err
	}
	return len(tickets), nil
}

// importTickets stores every ticket of the dump read from r. Tickets already
// in the ledger are skipped unless overwrite is set.
func importTickets(
	ctx context.Context, repo domain.TicketRepository, r io.Reader, overwrite bool,
) (*importReport, error) {
	var d dump
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("invalid dump: %w", err)
	}
	if d.Version != dumpVersion {
		return nil, fmt.Errorf("%w %d", errUnsupportedDump, d.Version)
	}

	report := &importReport{}
	for _, t := range d.Tickets {
		if t == nil || t.ID == "" {
			return nil, fmt.Errorf("invalid dump: ticket without id")
		}

		if !overwrite {
			if _, err := repo.GetTicket(ctx, t.ID); err == nil {
				log.WithField("ticket", t.ID).Debug("ticket already in ledger, skipping")
				report.Skipped++
				continue
			} else if !errors.Is(err, domain.ErrTicketNotFound) {
				return nil, err
			}
		}

		if err := repo.SaveTicket(ctx, t); err != nil {
			return nil, fmt.Errorf("failed to import ticket %s: %w", t.ID, err)
		}
		report.Imported++
	}
	return report, nil
}
