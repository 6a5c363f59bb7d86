// Package cli provides the kbase command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nomadai/kbase/internal/core/domain"
	"github.com/nomadai/kbase/internal/core/ports/driving"
	"github.com/nomadai/kbase/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Runtime is a fully wired knowledge base. Close flushes and releases every store.
type Runtime struct {
	Knowledge driving.KnowledgeService
	Close     func(ctx context.Context) error
}

// Bootstrap builds services lazily so commands that do not touch the
// knowledge base never open it.
type Bootstrap struct {
	// Settings opens the settings service for a config directory ("" = default).
	Settings func(configDir string) (driving.SettingsService, error)

	// Runtime opens the stores and wires the knowledge service.
	Runtime func(ctx context.Context, settings *domain.AppSettings) (*Runtime, error)

	// Check pings the configured embedding service.
	Check func(ctx context.Context, settings *domain.EmbeddingSettings) error
}

var (
	bootstrap        Bootstrap
	settingsService  driving.SettingsService
	knowledgeService driving.KnowledgeService
	activeRuntime    *Runtime
)

// Global flags.
var (
	verboseFlag bool
	configDir   string
	dataDir     string
	noColor     bool
)

var rootCmd = &cobra.Command{
	Use:   "kbase",
	Short: "Local knowledge base for retrieval-augmented generation",
	Long: `kbase ingests text and CSV documents, splits them into overlapping chunks,
embeds every chunk and answers similarity queries over the stored vectors.

Embeddings come from an Ollama-compatible endpoint when one is reachable and
from a deterministic local model otherwise.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verboseFlag)
	},
}

func init() {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "log progress to stderr")
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "config directory (default ~/.kbase)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (overrides storage.data_dir)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable styled output")
}

// SetBootstrap registers the constructors used to build services on demand.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// SetServices injects ready services, bypassing the bootstrap.
func SetServices(knowledge driving.KnowledgeService, settings driving.SettingsService) {
	knowledgeService = knowledge
	settingsService = settings
}

// Execute runs the root command and releases the runtime afterwards.
// It returns the process exit code.
func Execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	if closeErr := closeRuntime(context.WithoutCancel(ctx)); closeErr != nil {
		logger.Error("closing knowledge base: %v", closeErr)
		if err == nil {
			err = closeErr
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, styleFor(rootCmd.ErrOrStderr()).Error.Render("Error: "+err.Error()))
		return 1
	}
	return 0
}

func closeRuntime(ctx context.Context) error {
	rt := activeRuntime
	activeRuntime = nil
	if rt == nil || rt.Close == nil {
		return nil
	}
	return rt.Close(ctx)
}

// requireSettings returns the settings service, opening it on first use.
func requireSettings() (driving.SettingsService, error) {
	if settingsService != nil {
		return settingsService, nil
	}
	if bootstrap.Settings == nil {
		return nil, errors.New("settings service not configured")
	}
	svc, err := bootstrap.Settings(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	settingsService = svc
	return svc, nil
}

// currentSettings resolves settings with the --data-dir override applied.
func currentSettings() (*domain.AppSettings, error) {
	svc, err := requireSettings()
	if err != nil {
		return nil, err
	}
	settings, err := svc.Get()
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		settings.Storage.DataDir = dataDir
	}
	return settings, nil
}

// requireKnowledge returns the knowledge service, opening the stores on first use.
func requireKnowledge(cmd *cobra.Command) (driving.KnowledgeService, error) {
	if knowledgeService != nil {
		return knowledgeService, nil
	}
	if bootstrap.Runtime == nil {
		return nil, errors.New("knowledge service not configured")
	}
	settings, err := currentSettings()
	if err != nil {
		return nil, err
	}
	rt, err := bootstrap.Runtime(cmd.Context(), settings)
	if err != nil {
		return nil, fmt.Errorf("opening knowledge base: %w", err)
	}
	activeRuntime = rt
	knowledgeService = rt.Knowledge
	return knowledgeService, nil
}
