package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/siegzhong-maker/knowledge/internal/config"
	"github.com/siegzhong-maker/knowledge/internal/keyring"
	store "github.com/siegzhong-maker/knowledge/internal/repository"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "consultant",
		Short:         "Knowledge-base AI consultation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config or .)")

	root.AddCommand(serveCMD(&cfgPath), keyCMD(&cfgPath), migrateCMD(&cfgPath))
	return root
}

func openStore(cfg *config.Config) (store.Store, error) {
	dsn := cfg.Storage.SQLiteDSN
	if cfg.Storage.Driver == "postgres" {
		dsn = cfg.Storage.PostgresDSN
	}
	return store.Open(cfg.Storage.Driver, dsn)
}

// openCipher uses the configured secret, or the key file which is created
// on first use.
func openCipher(cfg *config.Config) (*keyring.Cipher, error) {
	secret := cfg.Security.EncryptionKey
	if secret == "" {
		var err error
		secret, err = keyring.LoadOrCreateSecret(cfg.Security.KeyFile)
		if err != nil {
			return nil, err
		}
	}
	return keyring.NewCipher(secret)
}
