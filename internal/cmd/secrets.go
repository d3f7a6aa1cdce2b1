package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/S-feLayer/SafeLayer-Chat/internal/config"
	"github.com/S-feLayer/SafeLayer-Chat/internal/secrets"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage encrypted detector credentials",
	Long: `Stores API keys and other credentials in an AES-256-GCM encrypted
vault under the data directory. The server reads detector credentials
from here, so plaintext keys never appear in config files.`,
}

var secretsSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Store a secret in the vault",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vault, err := openVault()
		if err != nil {
			return err
		}
		defer vault.Close()

		if err := vault.Set(cmd.Context(), args[0], []byte(args[1])); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored secret %q\n", args[0])
		return nil
	},
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored secret names (never values)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		vault, err := openVault()
		if err != nil {
			return err
		}
		defer vault.Close()

		metas, err := vault.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(metas) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No secrets stored")
			return nil
		}
		for _, m := range metas {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tcreated %s\taccessed %d times\n",
				m.Name, m.CreatedAt.Format("2006-01-02 15:04"), m.AccessCount)
		}
		return nil
	},
}

var secretsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a secret from the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vault, err := openVault()
		if err != nil {
			return err
		}
		defer vault.Close()

		if err := vault.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret %q\n", args[0])
		return nil
	},
}

var secretsAuditCmd = &cobra.Command{
	Use:   "audit <name>",
	Short: "Show the access log for a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vault, err := openVault()
		if err != nil {
			return err
		}
		defer vault.Close()

		records, err := vault.AccessLog(cmd.Context(), args[0], 50)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No accesses recorded")
			return nil
		}
		for _, r := range records {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.Timestamp.Format("2006-01-02 15:04:05"), r.Caller)
		}
		return nil
	},
}

func init() {
	secretsCmd.AddCommand(secretsSetCmd, secretsListCmd, secretsDeleteCmd, secretsAuditCmd)
	rootCmd.AddCommand(secretsCmd)
}

// openVault loads config and opens the encrypted vault.
func openVault() (*secrets.Vault, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	cfg.WarnIfDefaultKeys()
	return secrets.NewVault(cfg.VaultDBPath(), cfg.VaultKey)
}
