package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/parley-cli/internal/core/domain"
)

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "Manage connected platforms",
	Long: `Connect, list and remove platform configurations.

A configuration ties a platform adapter to one or more accounts, identified
by the token IDs the credential service knows them under.

Examples:
  # Connect a Lark workspace
  parley platforms connect --platform lark --name "Acme" --account tok_123

  # List configured platforms
  parley platforms list

  # Check every connection
  parley platforms validate`,
}

var (
	connectPlatform string
	connectName     string
	connectAccounts []string
	connectSettings []string
)

var platformsConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect a new platform",
	RunE:  runPlatformsConnect,
}

var platformsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured platforms",
	RunE:  runPlatformsList,
}

var platformsRemoveCmd = &cobra.Command{
	Use:   "remove [config-id]",
	Short: "Remove a platform configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlatformsRemove,
}

var platformsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check every platform connection",
	RunE:  runPlatformsValidate,
}

var platformsRefreshCmd = &cobra.Command{
	Use:   "refresh [config-id]",
	Short: "Force a credential refresh for a platform",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlatformsRefresh,
}

func init() {
	platformsConnectCmd.Flags().StringVar(&connectPlatform, "platform", "", "platform type (lark, slack, gmail)")
	platformsConnectCmd.Flags().StringVar(&connectName, "name", "", "human-readable label")
	platformsConnectCmd.Flags().StringArrayVar(&connectAccounts, "account", nil, "account token ID (repeatable)")
	platformsConnectCmd.Flags().StringArrayVar(&connectSettings, "setting", nil, "adapter setting key=value (repeatable)")
	//nolint:errcheck // flag exists, defined above
	platformsConnectCmd.MarkFlagRequired("platform")

	platformsCmd.AddCommand(platformsConnectCmd)
	platformsCmd.AddCommand(platformsListCmd)
	platformsCmd.AddCommand(platformsRemoveCmd)
	platformsCmd.AddCommand(platformsValidateCmd)
	platformsCmd.AddCommand(platformsRefreshCmd)
	rootCmd.AddCommand(platformsCmd)
}

func runPlatformsConnect(cmd *cobra.Command, _ []string) error {
	if registry == nil || configStore == nil {
		return errors.New("services not configured")
	}

	accounts := connectAccounts
	if len(accounts) == 0 {
		cmd.Print("Token IDs (comma separated): ")
		reader := bufio.NewReader(os.Stdin)
		for _, id := range strings.Split(readLine(reader), ",") {
			if id = strings.TrimSpace(id); id != "" {
				accounts = append(accounts, id)
			}
		}
	}
	if len(accounts) == 0 {
		return errors.New("at least one account token ID is required")
	}

	settings := make(map[string]string, len(connectSettings))
	for _, kv := range connectSettings {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid --setting %q, expected key=value", kv)
		}
		settings[key] = value
	}

	cfg := domain.PlatformConfig{
		ID:       domain.NewConfigID(connectPlatform),
		Platform: connectPlatform,
		Name:     connectName,
		Accounts: accounts,
		Settings: settings,
		Enabled:  true,
	}

	if err := configStore.Save(cfg); err != nil {
		return fmt.Errorf("save configuration: %w", err)
	}
	if err := registry.Load(cmd.Context(), cfg); err != nil {
		return fmt.Errorf("load adapter: %w", err)
	}

	cmd.Printf("Connected %s as %s\n", cfg.Platform, cfg.ID)
	return nil
}

func runPlatformsList(cmd *cobra.Command, _ []string) error {
	if configStore == nil {
		return errors.New("services not configured")
	}

	configs, err := configStore.List()
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		cmd.Println("No platforms configured. Use 'parley platforms connect' to add one.")
		return nil
	}

	active := make(map[string]bool)
	if registry != nil {
		for _, id := range registry.ListActive() {
			active[id] = true
		}
	}

	for _, cfg := range configs {
		state := "inactive"
		if active[cfg.ID] {
			state = "active"
		} else if !cfg.Enabled {
			state = "disabled"
		}
		name := cfg.Name
		if name == "" {
			name = "-"
		}
		cmd.Printf("  %-24s %-8s %-10s %s (%d accounts)\n",
			cfg.ID, cfg.Platform, state, name, len(cfg.Accounts))
	}
	return nil
}

func runPlatformsRemove(cmd *cobra.Command, args []string) error {
	if registry == nil || configStore == nil {
		return errors.New("services not configured")
	}
	id := args[0]

	if err := registry.Unload(id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if err := configStore.Delete(id); err != nil {
		return err
	}
	cmd.Printf("Removed %s\n", id)
	return nil
}

func runPlatformsValidate(cmd *cobra.Command, _ []string) error {
	if registry == nil {
		return errors.New("services not configured")
	}

	results := registry.ValidateAll(cmd.Context())
	if len(results) == 0 {
		cmd.Println("No platforms connected.")
		return nil
	}

	failed := false
	for _, id := range registry.ListActive() {
		if results[id] {
			cmd.Printf("  %-24s OK\n", id)
		} else {
			cmd.Printf("  %-24s FAILED\n", id)
			failed = true
		}
	}
	if failed {
		return errors.New("one or more platform connections failed validation")
	}
	return nil
}

func runPlatformsRefresh(cmd *cobra.Command, args []string) error {
	if registry == nil {
		return errors.New("services not configured")
	}

	adapter, ok := registry.Resolve(args[0])
	if !ok {
		return fmt.Errorf("platform %s: %w", args[0], domain.ErrNotFound)
	}
	if err := adapter.RefreshCredentials(cmd.Context(), ""); err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	cmd.Printf("Refreshed credentials for %s\n", adapter.ConfigID())
	return nil
}

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}
