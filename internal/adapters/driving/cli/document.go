package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nomadai/kbase/internal/core/domain"
)

var documentJSON bool

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Manage documents in the knowledge base",
	Long:  `List, view, find, or delete ingested documents.`,
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all documents",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

var documentGetCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Show document metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentGet,
}

var documentContentCmd = &cobra.Command{
	Use:   "content [doc-id]",
	Short: "Print document content",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentContent,
}

var documentFindCmd = &cobra.Command{
	Use:   "find [text]",
	Short: "Find documents by file name",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentFind,
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentDelete,
}

func init() {
	documentListCmd.Flags().BoolVar(&documentJSON, "json", false, "output documents as JSON")
	documentFindCmd.Flags().BoolVar(&documentJSON, "json", false, "output documents as JSON")
	documentGetCmd.Flags().BoolVar(&documentJSON, "json", false, "output metadata as JSON")

	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentGetCmd)
	documentCmd.AddCommand(documentContentCmd)
	documentCmd.AddCommand(documentFindCmd)
	documentCmd.AddCommand(documentDeleteCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	knowledge, err := requireKnowledge(cmd)
	if err != nil {
		return err
	}
	return printDocuments(cmd, knowledge.GetKnowledgeBase(cmd.Context()), "No documents in the knowledge base.")
}

func runDocumentFind(cmd *cobra.Command, args []string) error {
	knowledge, err := requireKnowledge(cmd)
	if err != nil {
		return err
	}
	docs := knowledge.FindDocuments(cmd.Context(), args[0])
	return printDocuments(cmd, docs, fmt.Sprintf("No documents matching %q.", args[0]))
}

func printDocuments(cmd *cobra.Command, docs []domain.Document, empty string) error {
	if documentJSON {
		return outputJSON(cmd, docs)
	}
	if len(docs) == 0 {
		cmd.Println(empty)
		return nil
	}

	st := styleFor(cmd.OutOrStdout())
	for i := range docs {
		cmd.Printf("  %s\n", st.Label.Render(docs[i].FileName))
		cmd.Printf("    ID:      %s\n", docs[i].ID)
		cmd.Printf("    Type:    %s\n", docs[i].FileType)
		cmd.Printf("    Chunks:  %d\n", docs[i].ChunkCount)
		cmd.Printf("    Added:   %s\n", docs[i].CreatedAt.Local().Format("2006-01-02 15:04:05"))
		cmd.Println()
	}
	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runDocumentGet(cmd *cobra.Command, args []string) error {
	knowledge, err := requireKnowledge(cmd)
	if err != nil {
		return err
	}

	doc, err := knowledge.GetDocument(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	if documentJSON {
		return outputJSON(cmd, doc)
	}

	st := styleFor(cmd.OutOrStdout())
	cmd.Printf("%s %s\n\n", st.Title.Render("Document:"), doc.ID)
	cmd.Printf("  Name:     %s\n", doc.FileName)
	cmd.Printf("  Type:     %s\n", doc.FileType)
	cmd.Printf("  Size:     %d bytes\n", doc.FileSize)
	cmd.Printf("  Chunks:   %d\n", doc.ChunkCount)
	cmd.Printf("  Hash:     %s\n", doc.ContentHash)
	cmd.Printf("  Added:    %s\n", doc.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	if doc.CSVInfo != nil {
		cmd.Printf("  Rows:     %d\n", doc.CSVInfo.RowCount)
		cmd.Printf("  Columns:  %d\n", doc.CSVInfo.ColumnCount)
		cmd.Printf("  Headers:  %v\n", doc.CSVInfo.Headers)
	}
	return nil
}

func runDocumentContent(cmd *cobra.Command, args []string) error {
	knowledge, err := requireKnowledge(cmd)
	if err != nil {
		return err
	}

	content, err := knowledge.GetContent(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document content: %w", err)
	}

	cmd.Println(content)
	return nil
}

func runDocumentDelete(cmd *cobra.Command, args []string) error {
	knowledge, err := requireKnowledge(cmd)
	if err != nil {
		return err
	}

	docID := args[0]
	if !knowledge.DeleteDocument(cmd.Context(), docID) {
		return fmt.Errorf("failed to delete document %s: %w", docID, domain.ErrNotFound)
	}

	cmd.Printf("Document %s deleted.\n", docID)
	return nil
}
