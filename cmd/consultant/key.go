package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/siegzhong-maker/knowledge/internal/adapter/llm"
	"github.com/siegzhong-maker/knowledge/internal/config"
	"github.com/siegzhong-maker/knowledge/internal/keyring"
	"github.com/siegzhong-maker/knowledge/internal/service"
)

func keyCMD(cfgPath *string) *cobra.Command {
	key := &cobra.Command{
		Use:   "key",
		Short: "Manage the stored default API key",
	}

	setCmd := &cobra.Command{
		Use:   "set <api-key>",
		Short: "Encrypt and store the default API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(*cfgPath, func(svc *service.Service) error {
				k := args[0]
				if err := svc.UpdateSettings(cmd.Context(), service.SettingsUpdate{APIKey: &k}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored key %s\n", keyring.Mask(k))
				return nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored default API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(*cfgPath, func(svc *service.Service) error {
				empty := ""
				if err := svc.UpdateSettings(cmd.Context(), service.SettingsUpdate{APIKey: &empty}); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "stored key removed")
				return nil
			})
		},
	}

	testCmd := &cobra.Command{
		Use:   "test [api-key]",
		Short: "Check a key, or the stored default, against the provider",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(*cfgPath, func(svc *service.Service) error {
				k := ""
				if len(args) == 1 {
					k = args[0]
				}
				result, err := svc.TestConnection(cmd.Context(), k)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), result.Message)
				if !result.Success {
					return fmt.Errorf("key test failed")
				}
				return nil
			})
		},
	}

	key.AddCommand(setCmd, clearCmd, testCmd)
	return key
}

// withService builds a service without policy, cache or metrics for one-off
// commands.
func withService(cfgPath string, fn func(*service.Service) error) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	cipher, err := openCipher(cfg)
	if err != nil {
		return err
	}
	client := llm.NewChatClient(cfg.LLM.Mode, cfg.LLM.BaseURL, cfg.LLM.Timeout)
	return fn(service.New(st, cipher, client, nil, nil, nil))
}
