package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nomadai/kbase/internal/core/domain"
)

var (
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Find the passages most similar to a query",
	Long: `Embeds the query and ranks stored chunks by cosine similarity.
Only chunks scoring at least search.threshold are shown.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var contextCmd = &cobra.Command{
	Use:   "context [query]",
	Short: "Assemble retrieved passages into a context block",
	Long: `Prints the block of passages and sources that would be handed to a
language model for the query. With fewer than three matches the start of each
source document is appended.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runContext,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of results (default search.limit)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	contextCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of passages (default search.limit)")
	contextCmd.Flags().BoolVar(&searchJSON, "json", false, "output the context as JSON")
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(contextCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	knowledge, err := requireKnowledge(cmd)
	if err != nil {
		return err
	}

	resp := knowledge.SearchRelevantChunks(cmd.Context(), strings.Join(args, " "), searchLimit)
	if !resp.Success {
		return fmt.Errorf("search failed: %s", resp.Message)
	}

	if searchJSON {
		return outputJSON(cmd, resp.Results)
	}
	return outputSearchTable(cmd, resp.Results)
}

func outputJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.SearchHit) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	st := styleFor(cmd.OutOrStdout())
	cmd.Println(st.Title.Render("Results:"))
	cmd.Println()
	for i, hit := range results {
		name := hit.ID
		if hit.Metadata != nil && hit.Metadata.FileName != "" {
			name = hit.Metadata.FileName
		}
		cmd.Printf("  [%d] %s %s\n", i+1, st.Label.Render(name), st.Muted.Render(fmt.Sprintf("(%.2f)", hit.Score)))
		if hit.Metadata != nil {
			cmd.Printf("      %s\n", st.Muted.Render(fmt.Sprintf("chunk %d/%d of %s", hit.Metadata.ChunkIndex+1, hit.Metadata.ChunkTotal, hit.Metadata.ID)))
		}
		cmd.Printf("      %s\n", truncate(strings.Join(strings.Fields(hit.Text), " "), 200))
		cmd.Println()
	}
	return nil
}

func runContext(cmd *cobra.Command, args []string) error {
	knowledge, err := requireKnowledge(cmd)
	if err != nil {
		return err
	}

	result := knowledge.BuildContext(cmd.Context(), strings.Join(args, " "), searchLimit)
	if result.Kind != domain.KindNone {
		return fmt.Errorf("building context failed: %s", result.Message)
	}
	if searchJSON {
		return outputJSON(cmd, result)
	}
	if !result.HasContext {
		cmd.Println("No relevant context found.")
		return nil
	}

	cmd.Print(result.ContextText)
	st := styleFor(cmd.OutOrStdout())
	cmd.Println()
	cmd.Println(st.Title.Render("Sources:"))
	for _, src := range result.Sources {
		cmd.Printf("  %s %s\n", src.FileName, st.Muted.Render(fmt.Sprintf("(%s, %.2f)", src.ID, src.Similarity)))
	}
	return nil
}
