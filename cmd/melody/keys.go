package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/melody/internal/config"
	jwtx "github.com/dropDatabas3/melody/internal/jwt"
	"github.com/dropDatabas3/melody/internal/store/pg"
)

// keyStore es una fuente de llaves administrable desde el CLI.
type keyStore interface {
	jwtx.KeySource
	jwtx.Rotator
	ensure(ctx context.Context, bits int) (bool, error)
}

type fileKeys struct{ *jwtx.FileSource }

func (k fileKeys) ensure(_ context.Context, bits int) (bool, error) { return k.Init(bits) }

type pgKeys struct{ *pg.KeySource }

func (k pgKeys) ensure(ctx context.Context, bits int) (bool, error) { return k.Init(ctx, bits) }

func newKeysCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Administra las llaves RSA de firma",
	}
	cmd.AddCommand(
		keysAction(f, "generate", "Genera la llave actual si no existe", func(ctx context.Context, cmd *cobra.Command, cfg *config.Config, ks keyStore) error {
			created, err := ks.ensure(ctx, cfg.Keys.Bits)
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintln(cmd.OutOrStdout(), "signing key already present")
				return nil
			}
			return printCurrent(ctx, cmd, ks, "generated")
		}),
		keysAction(f, "rotate", "Genera una llave nueva y depreca la actual", func(ctx context.Context, cmd *cobra.Command, cfg *config.Config, ks keyStore) error {
			priv, err := jwtx.GenerateRSA(cfg.Keys.Bits)
			if err != nil {
				return err
			}
			if err := ks.Rotate(ctx, priv); err != nil {
				return err
			}
			return printCurrent(ctx, cmd, ks, "rotated")
		}),
		keysAction(f, "clean", "Elimina las llaves deprecadas", func(ctx context.Context, cmd *cobra.Command, _ *config.Config, ks keyStore) error {
			if err := ks.PurgeDeprecated(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deprecated keys removed")
			return nil
		}),
	)
	return cmd
}

type keysFunc func(ctx context.Context, cmd *cobra.Command, cfg *config.Config, ks keyStore) error

func keysAction(f *rootFlags, use, short string, run keysFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			ks, closeFn, err := openKeys(cmd, cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			return run(cmd.Context(), cmd, cfg, ks)
		},
	}
}

func openKeys(cmd *cobra.Command, cfg *config.Config) (keyStore, func(), error) {
	switch cfg.Keys.Source {
	case "file", "":
		return fileKeys{jwtx.NewFileSource(cfg.Keys.Dir)}, func() {}, nil
	case "postgres":
		st, err := openPG(cmd, cfg)
		if err != nil {
			return nil, nil, err
		}
		return pgKeys{st.SigningKeys()}, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("keys: unknown source %q", cfg.Keys.Source)
	}
}

func printCurrent(ctx context.Context, cmd *cobra.Command, src jwtx.KeySource, verb string) error {
	keys, err := src.LoadKeys(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s kid=%s (deprecated: %d)\n", verb, keys[0].KID, len(keys)-1)
	return nil
}
