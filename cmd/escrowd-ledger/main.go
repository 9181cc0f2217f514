package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tdex-network/escrowd/internal/config"
	"github.com/tdex-network/escrowd/internal/core/ports"
	"github.com/tdex-network/escrowd/internal/infrastructure/storage/db"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	app = &cobra.Command{
		Use:           "escrowd-ledger",
		Short:         "escrowd ledger maintenance",
		Long:          "this tool exports and imports the tickets of an escrowd ledger, wallet secrets included, for backup and migration between backends",
		Version:       formatVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "dump every ticket of the ledger as json",
		Args:  cobra.NoArgs,
		RunE:  exportAction,
	}

	importCmd = &cobra.Command{
		Use:   "import",
		Short: "load tickets from a json dump into the ledger",
		Args:  cobra.NoArgs,
		RunE:  importAction,
	}

	outFile   string
	inFile    string
	overwrite bool
)

func init() {
	exportCmd.Flags().StringVarP(&outFile, "out", "o", "", "file to write the dump to, defaults to stdout")
	importCmd.Flags().StringVarP(&inFile, "in", "i", "", "file to read the dump from, defaults to stdin")
	importCmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace tickets already in the ledger")

	app.AddCommand(exportCmd, importCmd)
}

func main() {
	if err := app.Execute(); err != nil {
		log.Fatal(err)
	}
}

// openLedger opens the ledger configured through the daemon's environment.
// The daemon must not be running when a badger ledger is opened.
func openLedger() (ports.RepoManager, error) {
	if err := config.InitConfig(); err != nil {
		return nil, err
	}
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	cfg := config.GetLedgerConfig()
	if cfg.Type == config.DBInMemory {
		return nil, fmt.Errorf("in-memory ledger cannot be exported or imported")
	}
	return db.NewRepoManager(cfg)
}

func formatVersion() string {
	return fmt.Sprintf(
		"Version: %s\nCommit: %s\nDate: %s",
		version, commit, date,
	)
}
