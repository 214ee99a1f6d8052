package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/keys"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/store"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage access keys",
		Long: `List, add, generate, revoke and re-activate access keys. Every change is
written to the audit log with "cli" as the client address.`,
	}

	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyAddCmd())
	cmd.AddCommand(newKeyGenerateCmd())
	cmd.AddCommand(newKeyStatusCmd("revoke", "Revoke an access key", model.KeyRevoked))
	cmd.AddCommand(newKeyStatusCmd("activate", "Re-activate a revoked access key", model.KeyActive))

	return cmd
}

// withApp opens the key store for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		query      string
		status     string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List access keys, newest first",
		Example: `  keygate key list --q abcd
  keygate key list --status revoked --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := model.KeyStatus(status)
			if status != "" && !st.Valid() {
				return fmt.Errorf("invalid --status %q (want active or revoked)", status)
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				found, err := a.keys.Search(ctx, model.KeyFilter{Query: query, Status: st, Limit: limit})
				if err != nil {
					return fmt.Errorf("list keys: %w", err)
				}
				return printKeys(cmd.OutOrStdout(), found, jsonOutput)
			})
		},
	}

	cmd.Flags().StringVar(&query, "q", "", "Case-insensitive substring of the key")
	cmd.Flags().StringVar(&status, "status", "", "Only keys with this status (active or revoked)")
	cmd.Flags().IntVar(&limit, "limit", store.MaxSearchResults, "Maximum number of keys")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func printKeys(w io.Writer, found []model.Key, jsonOutput bool) error {
	if jsonOutput {
		if found == nil {
			found = []model.Key{}
		}
		return writeJSON(w, found)
	}

	if len(found) == 0 {
		fmt.Fprintln(w, "No keys found.")
		return nil
	}

	fmt.Fprintf(w, "%-24s %-8s %-20s %-20s %s\n", "KEY", "STATUS", "CREATED", "LAST USED", "USES")
	fmt.Fprintf(w, "%-24s %-8s %-20s %-20s %s\n", "---", "------", "-------", "---------", "----")
	for _, k := range found {
		lastUsed := "-"
		if k.LastUsed != nil {
			lastUsed = k.LastUsed.Format(time.DateTime)
		}
		fmt.Fprintf(w, "%-24s %-8s %-20s %-20s %d\n",
			k.Key, k.Status, k.CreatedAt.Format(time.DateTime), lastUsed, k.UsageCount)
	}
	return nil
}

// ---------- key add ----------

func newKeyAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [KEY]",
		Short: "Add a single active key",
		Long:  "Add KEY as an active key. Without an argument a random key is generated.",
		Example: `  keygate key add ABCD-2345-EFGH-6789
  keygate key add`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := ""
			if len(args) > 0 {
				raw = args[0]
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				k, err := a.keys.Add(ctx, raw, cliOrigin)
				switch {
				case service.IsDuplicate(err):
					return fmt.Errorf("key %s already exists", keys.Normalize(raw))
				case errors.Is(err, service.ErrInvalidKey):
					return fmt.Errorf("invalid key: at most %d characters", service.MaxKeyLength)
				case err != nil:
					return fmt.Errorf("add key: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Key added: %s\n", k.Key)
				return nil
			})
		},
	}
	return cmd
}

// ---------- key generate ----------

func newKeyGenerateCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate new unique keys",
		Long: fmt.Sprintf(`Generate --count new active keys in one transaction. The count is clamped
to 1..%d.`, service.MaxGenerate),
		Example: `  keygate key generate --count 50`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				created, err := a.keys.Generate(ctx, count, cliOrigin)
				if err != nil {
					return fmt.Errorf("generate keys: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Generated %d keys\n", created)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", service.DefaultGenerate, "Number of keys to generate")

	return cmd
}

// ---------- key revoke / activate ----------

func newKeyStatusCmd(use, short string, status model.KeyStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " KEY",
		Short: short,
		Long:  short + ". The command succeeds for unknown keys without creating them.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				var err error
				if status == model.KeyRevoked {
					err = a.keys.Revoke(ctx, args[0], cliOrigin)
				} else {
					err = a.keys.Activate(ctx, args[0], cliOrigin)
				}
				if errors.Is(err, service.ErrInvalidKey) {
					return fmt.Errorf("invalid key %q", args[0])
				}
				if err != nil {
					return fmt.Errorf("%s key: %w", use, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Key %s %sd\n", keys.Normalize(args[0]), use)
				return nil
			})
		},
	}
}
