package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/relaymint/tokend/internal/config"
	"github.com/relaymint/tokend/internal/core/engine"
	"github.com/relaymint/tokend/internal/storage/ledgerdb"
	"github.com/relaymint/tokend/internal/storage/ledgerdb/postgres"
)

// migrateCmd applies the schema and seeds the static rows. Token names given
// as arguments are provisioned; names that already exist are left alone.
var migrateCmd = &cobra.Command{
	Use:   "migrate [token names...]",
	Short: "Apply the database schema and provision tokens",
	Long: `Apply the database schema, seed the three transaction types, and provision
any token names passed as arguments. Safe to re-run.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := postgres.NewRepositoryManager(ledgerdb.NewConfig(cfg.DatabaseURL))
	if err != nil {
		return err
	}
	if err := store.Open(ctx); err != nil {
		return err
	}
	defer store.Close(context.Background())

	descriptors := make([]string, 0, len(engine.Variants()))
	for _, v := range engine.Variants() {
		descriptors = append(descriptors, v.Descriptor())
	}
	if err := store.TransactionTypes().Seed(ctx, descriptors); err != nil {
		return fmt.Errorf("seed transaction types: %w", err)
	}

	existing, err := store.Tokens().GetByNames(ctx, args)
	if err != nil {
		return fmt.Errorf("look up tokens: %w", err)
	}
	for _, name := range args {
		if _, ok := existing[name]; ok {
			fmt.Printf("token %q already provisioned\n", name)
			continue
		}
		if err := store.Tokens().Insert(ctx, &ledgerdb.Token{ID: uuid.New(), Name: name}); err != nil {
			return fmt.Errorf("provision token %q: %w", name, err)
		}
		fmt.Printf("provisioned token %q\n", name)
	}

	fmt.Println("migration complete")
	return nil
}
