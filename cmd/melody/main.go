// Command melody es el servidor de autorización y su CLI de operación.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/melody/internal/config"
	"github.com/dropDatabas3/melody/internal/observability/logger"
)

// version se pisa con -ldflags "-X main.version=...".
var version = "dev"

type rootFlags struct {
	configPath string
	envFile    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "melody",
		Short:         "Servidor OAuth2/OIDC con flujo de identidad",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", envOr("MELODY_CONFIG", ""), "ruta a config.yaml (env MELODY_CONFIG)")
	root.PersistentFlags().StringVar(&f.envFile, "env-file", ".env", "ruta a .env (opcional)")

	root.AddCommand(
		newServeCmd(f),
		newMigrateCmd(f),
		newKeysCmd(f),
	)
	return root
}

// load lee .env y config, e inicializa el logger.
func (f *rootFlags) load() (*config.Config, error) {
	if f.envFile != "" {
		if err := godotenv.Load(f.envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("env file %s: %w", f.envFile, err)
		}
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: cfg.App.Name,
		Version:     version,
	})
	return cfg, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
