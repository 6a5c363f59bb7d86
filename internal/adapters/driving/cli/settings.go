package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nomadai/kbase/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and change configuration stored in config.toml.

Every key can also be overridden with an environment variable: embedding.base_url
is read from KBASE_EMBEDDING_BASE_URL. A .env file in the working directory is
loaded on start.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Change one setting",
	Long: `Validates and stores a single setting. Keys use dot notation, for example:

  kbase settings set embedding.strategy local
  kbase settings set chunking.size 800

Run 'kbase settings keys' for the full list.`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List setting keys",
	Args:  cobra.NoArgs,
	RunE:  runSettingsKeys,
}

var settingsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the embedding service is reachable",
	Args:  cobra.NoArgs,
	RunE:  runSettingsCheck,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsCheckCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsKeysCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	svc, err := requireSettings()
	if err != nil {
		return err
	}
	settings, err := currentSettings()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	st := styleFor(cmd.OutOrStdout())
	cmd.Println(st.Title.Render("Current Settings"))
	cmd.Println(st.Muted.Render(svc.Path()))
	cmd.Println()

	cmd.Println(st.Label.Render("[Storage]"))
	cmd.Printf("  Data dir: %s\n", settings.Storage.DataDir)
	cmd.Printf("  Backend: %s\n", settings.Storage.Backend)
	cmd.Printf("  Save interval: %s\n", settings.Storage.SaveInterval)
	cmd.Println()

	cmd.Println(st.Label.Render("[Chunking]"))
	cmd.Printf("  Size: %d\n", settings.Chunking.Size)
	cmd.Printf("  Overlap: %d\n", settings.Chunking.Overlap)
	cmd.Println()

	cmd.Println(st.Label.Render("[Embedding]"))
	cmd.Printf("  Strategy: %s\n", settings.Embedding.Strategy.Description())
	cmd.Printf("  Base URL: %s\n", settings.Embedding.BaseURL)
	cmd.Printf("  Model: %s\n", settings.Embedding.Model)
	cmd.Printf("  Timeout: %s\n", settings.Embedding.Timeout)
	if settings.Embedding.RequestsPerSecond > 0 {
		cmd.Printf("  Rate limit: %.2f/s\n", settings.Embedding.RequestsPerSecond)
	} else {
		cmd.Printf("  Rate limit: none\n")
	}
	cmd.Printf("  Workers: %d\n", settings.Embedding.Workers)
	cmd.Println()

	cmd.Println(st.Label.Render("[Cache]"))
	cmd.Printf("  Max entries: %d\n", settings.Cache.MaxEntries)
	cmd.Printf("  Flush probability: %.2f\n", settings.Cache.FlushProbability)
	cmd.Println()

	cmd.Println(st.Label.Render("[Search]"))
	cmd.Printf("  Limit: %d\n", settings.Search.Limit)
	cmd.Printf("  Threshold: %.2f\n", settings.Search.Threshold)
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	svc, err := requireSettings()
	if err != nil {
		return err
	}
	key, value := args[0], args[1]
	if err := svc.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	cmd.Printf("Set %s = %s\n", key, value)
	return nil
}

func runSettingsKeys(cmd *cobra.Command, _ []string) error {
	svc, err := requireSettings()
	if err != nil {
		return err
	}
	for _, key := range svc.Keys() {
		cmd.Println(key)
	}
	return nil
}

func runSettingsCheck(cmd *cobra.Command, _ []string) error {
	settings, err := currentSettings()
	if err != nil {
		return err
	}
	if bootstrap.Check == nil {
		return errors.New("embedding check not configured")
	}

	st := styleFor(cmd.OutOrStdout())
	if settings.Embedding.Strategy == domain.EmbeddingStrategyLocal {
		cmd.Println(st.Success.Render("Local embeddings need no service."))
		return nil
	}
	if err := bootstrap.Check(cmd.Context(), &settings.Embedding); err != nil {
		cmd.Println(st.Warning.Render("Embedding service unreachable, local embeddings will be used."))
		return fmt.Errorf("checking %s: %w", settings.Embedding.BaseURL, err)
	}
	cmd.Printf("%s %s (%s)\n", st.Success.Render("Embedding service reachable:"), settings.Embedding.BaseURL, settings.Embedding.Model)
	return nil
}
