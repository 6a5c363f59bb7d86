package cli

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nomadai/kbase/internal/adapters/driving/watch"
	"github.com/nomadai/kbase/internal/core/domain"
	"github.com/nomadai/kbase/internal/logger"
)

var (
	watchDebounce time.Duration
	watchNoScan   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest files dropped into a directory",
	Long: `Watches a directory and ingests every file created or rewritten in it once
writes settle. A rewritten file replaces the document ingested from it, and a
removed file deletes it. Files already present are ingested on start unless
--no-scan is given. Stops on Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "quiet period before a changed file is ingested")
	watchCmd.Flags().BoolVar(&watchNoScan, "no-scan", false, "skip files already in the directory")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	knowledge, err := requireKnowledge(cmd)
	if err != nil {
		return err
	}

	logger.SetTimestamps(true)
	st := styleFor(cmd.OutOrStdout())
	w := watch.New(args[0], knowledge,
		watch.WithDebounce(watchDebounce),
		watch.WithInitialScan(!watchNoScan),
		watch.WithResultHandler(func(path string, r domain.ProcessResult) {
			name := filepath.Base(path)
			switch {
			case !r.Success:
				cmd.Printf("%s %s: %s\n", st.Error.Render("✗"), name, r.Message)
			case r.IsDuplicate:
				cmd.Printf("%s %s: %s\n", st.Warning.Render("="), name, r.Message)
			default:
				cmd.Printf("%s %s\n", st.Success.Render("✓"), r.Message)
			}
		}),
	)

	cmd.Printf("Watching %s (Ctrl-C to stop)\n", args[0])
	return w.Run(cmd.Context())
}
