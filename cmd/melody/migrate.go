package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/melody/internal/config"
	"github.com/dropDatabas3/melody/internal/store/pg"
)

func newMigrateCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [up|down|version]",
		Short: "Aplica las migraciones de Postgres",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}

			st, err := openPG(cmd, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			switch action {
			case "up":
				n, err := st.Migrate(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d migration(s) applied\n", n)
			case "down":
				if err := st.MigrateDown(ctx); err != nil {
					return err
				}
			case "version":
				v, err := st.MigrationVersion(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d\n", v)
			default:
				return fmt.Errorf("unknown action %q", action)
			}
			return nil
		},
	}
	return cmd
}

func openPG(cmd *cobra.Command, cfg *config.Config) (*pg.Store, error) {
	if cfg.Storage.Driver != "postgres" {
		return nil, errors.New("storage.driver must be postgres")
	}
	return pg.New(cmd.Context(), cfg.Storage)
}
