package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/garyellow/unibot-go/internal/modules/catalogue"
	"github.com/garyellow/unibot-go/internal/storage"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print catalogue counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, dbPath, _, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		return printStats(cmd.Context(), cmd.OutOrStdout(), dbPath, cfg.Catalogue.LocalCity)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func printStats(ctx context.Context, w io.Writer, dbPath, localCity string) error {
	db, err := storage.New(ctx, dbPath, localCity)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	stats, err := db.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}
	specialties, err := db.ListSpecialties(ctx)
	if err != nil {
		return fmt.Errorf("list specialties: %w", err)
	}

	_, _ = fmt.Fprintf(w, "Database:     %s\n", dbPath)
	_, _ = fmt.Fprintf(w, "Specialties:  %d\n", stats.Specialties)
	_, _ = fmt.Fprintf(w, "Universities: %d\n", stats.Universities)
	var oversized int
	for _, s := range specialties {
		if catalogue.SpecialtyFits(s) {
			_, _ = fmt.Fprintf(w, "  - %s\n", s)
			continue
		}
		oversized++
		_, _ = fmt.Fprintf(w, "  - %s (%d bytes, too long for a button)\n", s, len(s))
	}
	if oversized > 0 {
		_, _ = fmt.Fprintf(w, "Warning: %d specialties exceed %d bytes; Telegram will not show them\n",
			oversized, catalogue.MaxSpecialtyBytes)
	}
	return nil
}
