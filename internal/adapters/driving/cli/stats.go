package cli

import (
	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Check the vector index and remove orphaned chunks",
	Long: `Drops vector records missing required fields, removes duplicate chunk ids,
rebuilds the position index and deletes chunks whose document no longer exists.
Running it on a healthy knowledge base changes nothing.`,
	Args: cobra.NoArgs,
	RunE: runRepair,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output statistics as JSON")
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(repairCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	knowledge, err := requireKnowledge(cmd)
	if err != nil {
		return err
	}

	stats := knowledge.Stats(cmd.Context())
	if statsJSON {
		return outputJSON(cmd, stats)
	}

	st := styleFor(cmd.OutOrStdout())
	cmd.Println(st.Title.Render("Knowledge Base"))
	cmd.Println()
	cmd.Printf("  Documents:         %d\n", stats.DocumentCount)
	cmd.Printf("  Indexed documents: %d\n", stats.Vectors.TotalDocuments)
	cmd.Printf("  Chunks:            %d\n", stats.Vectors.TotalVectors)
	cmd.Printf("  Chunks/document:   %.1f\n", stats.Vectors.AverageChunksPerDocument)
	cmd.Printf("  Cached embeddings: %d\n", stats.CachedVectors)
	return nil
}

func runRepair(cmd *cobra.Command, _ []string) error {
	knowledge, err := requireKnowledge(cmd)
	if err != nil {
		return err
	}

	report, err := knowledge.Repair(cmd.Context())
	if err != nil {
		return err
	}

	st := styleFor(cmd.OutOrStdout())
	if !report.Changed() {
		cmd.Println(st.Success.Render("Knowledge base is healthy."))
		return nil
	}
	cmd.Println(st.Warning.Render("Repaired knowledge base:"))
	cmd.Printf("  Invalid records removed:   %d\n", report.InvalidRecords)
	cmd.Printf("  Duplicate records removed: %d\n", report.DuplicateRecords)
	cmd.Printf("  Orphaned chunks removed:   %d\n", report.OrphanedChunks)
	cmd.Printf("  Position index rebuilt:    %t\n", report.IndexRebuilt)
	return nil
}
