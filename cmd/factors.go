package main

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/emissions-cli/internal/factors"
	"github.com/sells-group/emissions-cli/internal/model"
)

var (
	factorsDataset string
	exportPath     string
	pushURL        string
)

var factorsCmd = &cobra.Command{
	Use:   "factors",
	Short: "Inspect the loaded reference datasets",
	Long: `Without --dataset, prints record counts and sources per dataset.
With --dataset regional|international|secondary, prints that dataset's rows.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := factors.Load(cmd.Context(), cfg.Factors)
		if err != nil {
			return err
		}
		return writeFactors(cmd.OutOrStdout(), store, factorsDataset)
	},
}

var exportSQLiteCmd = &cobra.Command{
	Use:   "export-sqlite",
	Short: "Copy the configured datasets into a SQLite file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := factors.Load(ctx, cfg.Factors)
		if err != nil {
			return err
		}
		n, err := factors.WriteSQLite(ctx, exportPath, cfg.Factors.Table, store)
		if err != nil {
			return err
		}
		zap.L().Info("factors exported",
			zap.String("path", exportPath),
			zap.String("table", cfg.Factors.Table),
			zap.Int("rows", n),
		)
		return nil
	},
}

var pushPostgresCmd = &cobra.Command{
	Use:   "push-postgres",
	Short: "Replace the Postgres factor table with the configured datasets",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		url := pushURL
		if url == "" {
			url = cfg.Factors.DatabaseURL
		}
		if url == "" {
			return eris.New("factors: push-postgres needs --url or factors.database_url")
		}
		store, err := factors.Load(ctx, cfg.Factors)
		if err != nil {
			return err
		}
		n, err := factors.PushPostgres(ctx, url, cfg.Factors.Table, store)
		if err != nil {
			return err
		}
		zap.L().Info("factors pushed",
			zap.String("table", cfg.Factors.Table),
			zap.Int64("rows", n),
		)
		return nil
	},
}

func init() {
	factorsCmd.Flags().StringVar(&factorsDataset, "dataset", "", "print the rows of one dataset")
	exportSQLiteCmd.Flags().StringVar(&exportPath, "path", "factors.db", "SQLite file to write")
	pushPostgresCmd.Flags().StringVar(&pushURL, "url", "", "Postgres URL (default factors.database_url)")
	factorsCmd.AddCommand(exportSQLiteCmd, pushPostgresCmd)
	rootCmd.AddCommand(factorsCmd)
}

func writeFactors(w io.Writer, store *factors.Store, dataset string) error {
	dataset = strings.ToLower(strings.TrimSpace(dataset))
	if dataset == "" {
		return printJSON(w, map[string]any{
			"total":    store.Count(),
			"datasets": store.Stats(),
		})
	}
	ds := model.Dataset(dataset)
	if !ds.Valid() {
		return eris.Errorf("factors: unknown dataset %q (want regional, international or secondary)", dataset)
	}
	return printJSON(w, store.Records(ds))
}
