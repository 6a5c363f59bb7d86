package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nomadai/kbase/internal/adapters/driving/watch"
	"github.com/nomadai/kbase/internal/core/domain"
)

var (
	ingestForce   bool
	ingestType    string
	ingestName    string
	ingestMaxSize int64
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Add documents to the knowledge base",
	Long: `Reads each file (or every file directly inside a directory), chunks and
embeds it, and stores it in the knowledge base. Identical content already in the
knowledge base is reported as a duplicate unless --force is given.

Use "-" to read a single document from stdin; --name then sets its file name.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestForce, "force", "f", false, "ingest even when identical content exists")
	ingestCmd.Flags().StringVarP(&ingestType, "type", "t", "", "MIME type (detected from the file name by default)")
	ingestCmd.Flags().StringVar(&ingestName, "name", "stdin.txt", "file name used for stdin input")
	ingestCmd.Flags().Int64Var(&ingestMaxSize, "max-size", watch.DefaultMaxFileSize, "largest file read, in bytes")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	knowledge, err := requireKnowledge(cmd)
	if err != nil {
		return err
	}

	files, err := collectUploads(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		cmd.Println("No files to ingest.")
		return nil
	}

	var results []domain.AttachmentResult
	if ingestForce {
		for _, f := range files {
			r := knowledge.ProcessDocument(cmd.Context(), f, true)
			results = append(results, domain.AttachmentResult{
				FileName:    f.Name,
				Success:     r.Success,
				IsDuplicate: r.IsDuplicate,
				DocumentID:  r.DocumentID,
				Kind:        r.Kind,
				Message:     r.Message,
			})
		}
	} else {
		results = knowledge.ProcessAttachments(cmd.Context(), files)
	}

	st := styleFor(cmd.OutOrStdout())
	failed := 0
	for _, r := range results {
		switch {
		case !r.Success:
			failed++
			cmd.Printf("%s %s: %s\n", st.Error.Render("✗"), r.FileName, r.Message)
		case r.IsDuplicate:
			cmd.Printf("%s %s: %s\n", st.Warning.Render("="), r.FileName, r.Message)
		default:
			cmd.Printf("%s %s %s\n", st.Success.Render("✓"), r.Message, st.Muted.Render("("+r.DocumentID+")"))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

// collectUploads expands args into upload descriptors. Directories contribute
// their regular, non-hidden files. Unreadable paths become descriptors
// without content so they are reported alongside the rest.
func collectUploads(stdin io.Reader, args []string) ([]domain.UploadedFile, error) {
	var files []domain.UploadedFile
	for _, arg := range args {
		if arg == "-" {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return nil, fmt.Errorf("reading stdin: %w", err)
			}
			files = append(files, domain.TextFile(ingestName, ingestType, string(data)))
			continue
		}

		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", arg, err)
		}
		paths := []string{arg}
		if info.IsDir() {
			if paths, err = listDir(arg); err != nil {
				return nil, err
			}
		}
		for _, p := range paths {
			f, err := watch.LoadFile(p, ingestMaxSize)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", p, err)
			}
			if ingestType != "" {
				f.Type = ingestType
			}
			files = append(files, f)
		}
	}
	return files, nil
}

func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}
