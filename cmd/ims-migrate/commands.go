package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/ims/internal/seed"
	"github.com/vladislavdragonenkov/ims/internal/storage/postgres"
	"github.com/vladislavdragonenkov/ims/internal/version"
)

const (
	envPostgresDSN = "IMS_POSTGRES_DSN"
	defaultTimeout = 30 * time.Second
)

type envLookup func(key string) (string, bool)

type rootOptions struct {
	dsn     string
	timeout time.Duration
	lookup  envLookup
}

func newRootCmd(lookup envLookup) *cobra.Command {
	opts := &rootOptions{lookup: lookup}

	cmd := &cobra.Command{
		Use:           "ims-migrate",
		Short:         "Управление схемой PostgreSQL и начальным каталогом IMS",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "timeout for the whole command")

	cmd.AddCommand(newUpCmd(opts))
	cmd.AddCommand(newDownCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newSeedCmd(opts))
	return cmd
}

func (o *rootOptions) resolveDSN() (string, error) {
	dsn := strings.TrimSpace(o.dsn)
	if dsn == "" && o.lookup != nil {
		if v, ok := o.lookup(envPostgresDSN); ok {
			dsn = strings.TrimSpace(v)
		}
	}
	if dsn == "" {
		return "", errors.New(envPostgresDSN + " (or --dsn) is required")
	}
	return dsn, nil
}

// withStore открывает хранилище на время выполнения fn.
func (o *rootOptions) withStore(cmd *cobra.Command, fn func(ctx context.Context, store *postgres.Store) error) error {
	dsn, err := o.resolveDSN()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	return fn(ctx, store)
}

func printStatus(ctx context.Context, cmd *cobra.Command, prefix string, store *postgres.Store) error {
	state, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	cmd.Printf("%s: version=%d applied=%d pending=%d\n", prefix, state.Version, state.Applied, len(state.Pending))
	for _, name := range state.Pending {
		cmd.Printf("  pending %s\n", name)
	}
	return nil
}

func newUpCmd(opts *rootOptions) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Применить миграции (по умолчанию все)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withStore(cmd, func(ctx context.Context, store *postgres.Store) error {
				if err := store.MigrateUp(ctx, steps); err != nil {
					return fmt.Errorf("migrate up failed: %w", err)
				}
				return printStatus(ctx, cmd, "migrate up ok", store)
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "number of migrations to apply (0 = all)")
	return cmd
}

func newDownCmd(opts *rootOptions) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Откатить миграции (по умолчанию одну)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withStore(cmd, func(ctx context.Context, store *postgres.Store) error {
				if err := store.MigrateDown(ctx, steps); err != nil {
					return fmt.Errorf("migrate down failed: %w", err)
				}
				return printStatus(ctx, cmd, "migrate down ok", store)
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Показать состояние схемы",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withStore(cmd, func(ctx context.Context, store *postgres.Store) error {
				return printStatus(ctx, cmd, "migration status", store)
			})
		},
	}
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var validateOnly bool
	cmd := &cobra.Command{
		Use:   "seed <catalog.yaml>",
		Short: "Загрузить клиентов и товары из YAML-каталога",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := seed.LoadFile(args[0])
			if err != nil {
				return err
			}
			if validateOnly {
				cmd.Printf("catalog ok: customers=%d products=%d\n", len(catalog.Customers), len(catalog.Products))
				return nil
			}

			return opts.withStore(cmd, func(ctx context.Context, store *postgres.Store) error {
				if err := store.EnsureSchema(ctx); err != nil {
					return fmt.Errorf("ensure schema: %w", err)
				}
				result, err := seed.Apply(
					ctx,
					catalog,
					postgres.NewCustomerRepository(store),
					postgres.NewProductRepository(store),
					log.WithField("component", "seed"),
				)
				if err != nil {
					return fmt.Errorf("seed failed: %w", err)
				}
				cmd.Printf("seed ok: customers=%d products=%d skipped=%d\n",
					result.CustomersCreated, result.ProductsCreated, result.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&validateOnly, "validate-only", false, "only parse and validate the catalog file")
	return cmd
}
