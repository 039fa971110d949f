package main

import (
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/liamcoop/linker/internal/config"
	"github.com/liamcoop/linker/internal/logger"
	"github.com/liamcoop/linker/lookup"
	"github.com/liamcoop/linker/migrations"
	"github.com/liamcoop/linker/provider"
	"github.com/liamcoop/linker/rules"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

// openStore connects to PostgreSQL, taking the URL from the flag or the
// server's configuration
func openStore(databaseURL string) (*provider.StoreProvider, *sql.DB, error) {
	if databaseURL == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		databaseURL = cfg.DatabaseURL
	}
	if databaseURL == "" {
		return nil, nil, fmt.Errorf("database URL is required: use --database-url or DATABASE_URL")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrations.Up(databaseURL); err != nil {
		db.Close()
		return nil, nil, err
	}

	store := provider.NewStoreProvider(rules.NewPostgresConditionStore(db), lookup.NewPostgresTableStore(db))
	return store, db, nil
}

func exportCmd() *cobra.Command {
	var (
		databaseURL string
		format      string
		out         string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump stored shortcuts and tables to a document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, db, err := openStore(databaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			snapshot, err := store.Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			f := provider.Format(format)
			if format == "" {
				f = provider.FormatFromPath(out)
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				file, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				defer file.Close()
				w = file
			}

			if err := provider.DocumentFromSnapshot(snapshot).Encode(w, f); err != nil {
				return err
			}

			logger.Info("Exported document", "conditions", len(snapshot.Conditions), "tables", len(snapshot.Tables))
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL (defaults to DATABASE_URL)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: json or yaml (defaults from --out, else json)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (defaults to stdout)")

	return cmd
}

func importCmd() *cobra.Command {
	var (
		databaseURL string
		dataFile    string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace stored shortcuts and tables with a document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := provider.ReadFile(dataFile)
			if err != nil {
				return err
			}

			store, db, err := openStore(databaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.Import(cmd.Context(), doc); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d shortcuts and %d tables\n", len(doc.Shortcuts), len(doc.Tables))
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL (defaults to DATABASE_URL)")
	cmd.Flags().StringVarP(&dataFile, "data", "d", "", "Document to import (JSON or YAML)")
	cmd.MarkFlagRequired("data")

	return cmd
}
