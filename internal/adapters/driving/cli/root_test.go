package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomadai/kbase/internal/adapters/driven/storage/memory"
	"github.com/nomadai/kbase/internal/core/domain"
	"github.com/nomadai/kbase/internal/core/ports/driving"
	"github.com/nomadai/kbase/internal/core/services"
)

// mockKnowledgeService is a mock implementation of driving.KnowledgeService.
type mockKnowledgeService struct {
	docs      []domain.Document
	content   map[string]string
	search    domain.SearchResponse
	built     domain.ContextResult
	stats     domain.KnowledgeStats
	repair    domain.RepairReport
	repairErr error
	processed []domain.UploadedFile
	forced    bool
	deleted   []string
}

func (m *mockKnowledgeService) ProcessDocument(_ context.Context, file domain.UploadedFile, force bool) domain.ProcessResult {
	m.processed = append(m.processed, file)
	m.forced = force
	if !file.HasContent() {
		return domain.ProcessResult{Kind: domain.KindNoContent, Message: "No content to process in " + file.Name}
	}
	return domain.ProcessResult{
		Success:    true,
		DocumentID: "doc-" + file.Name,
		Chunks:     1,
		Message:    "Processed " + file.Name + ": 1 chunks",
	}
}

func (m *mockKnowledgeService) ProcessAttachments(ctx context.Context, files []domain.UploadedFile) []domain.AttachmentResult {
	out := make([]domain.AttachmentResult, 0, len(files))
	for _, f := range files {
		r := m.ProcessDocument(ctx, f, false)
		out = append(out, domain.AttachmentResult{
			FileName:   f.Name,
			Success:    r.Success,
			DocumentID: r.DocumentID,
			Kind:       r.Kind,
			Message:    r.Message,
		})
	}
	return out
}

func (m *mockKnowledgeService) SearchRelevantChunks(context.Context, string, int) domain.SearchResponse {
	return m.search
}

func (m *mockKnowledgeService) BuildContext(context.Context, string, int) domain.ContextResult {
	return m.built
}

func (m *mockKnowledgeService) GetKnowledgeBase(context.Context) []domain.Document {
	return m.docs
}

func (m *mockKnowledgeService) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	for i := range m.docs {
		if m.docs[i].ID == id {
			return &m.docs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockKnowledgeService) GetContent(_ context.Context, id string) (string, error) {
	c, ok := m.content[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return c, nil
}

func (m *mockKnowledgeService) FindDocuments(_ context.Context, query string) []domain.Document {
	var out []domain.Document
	for _, d := range m.docs {
		if strings.Contains(strings.ToLower(d.FileName), strings.ToLower(query)) {
			out = append(out, d)
		}
	}
	return out
}

func (m *mockKnowledgeService) DeleteDocument(_ context.Context, id string) bool {
	m.deleted = append(m.deleted, id)
	for _, d := range m.docs {
		if d.ID == id {
			return true
		}
	}
	return false
}

func (m *mockKnowledgeService) Stats(context.Context) domain.KnowledgeStats {
	return m.stats
}

func (m *mockKnowledgeService) Repair(context.Context) (domain.RepairReport, error) {
	return m.repair, m.repairErr
}

var _ driving.KnowledgeService = (*mockKnowledgeService)(nil)

// setupTestServices injects a mock knowledge service and an in-memory
// settings service, returning a cleanup function.
func setupTestServices(t *testing.T) (*mockKnowledgeService, *memory.ConfigStore) {
	t.Helper()
	knowledge := &mockKnowledgeService{
		docs: []domain.Document{
			{ID: "doc-1", FileName: "notes.txt", FileType: "text/plain", FileSize: 42, ChunkCount: 1, ContentHash: "abc"},
			{
				ID: "doc-2", FileName: "table.csv", FileType: "text/csv", ChunkCount: 3, IsCSV: true,
				CSVInfo: &domain.CSVInfo{RowCount: 20, ColumnCount: 2, Headers: []string{"a", "b"}},
			},
		},
		content: map[string]string{"doc-1": "hello notes"},
	}
	store := memory.NewConfigStore()
	require.NoError(t, store.Set("storage.data_dir", t.TempDir()))
	SetServices(knowledge, services.NewSettingsService(store))

	t.Cleanup(func() {
		SetServices(nil, nil)
		SetBootstrap(Bootstrap{})
		activeRuntime = nil
		resetFlags(rootCmd)
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	})
	return knowledge, store
}

// resetFlags restores every flag to its default so values do not leak between tests.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestRootCmd_Use(t *testing.T) {
	assert.Equal(t, "kbase", rootCmd.Use)
	assert.True(t, rootCmd.SilenceUsage)
}

func TestRootCmd_HasCommands(t *testing.T) {
	names := make([]string, 0)
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"ingest", "search", "context", "document", "stats", "repair", "watch", "mcp", "settings", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestRequireKnowledge_NotConfigured(t *testing.T) {
	setupTestServices(t)
	SetServices(nil, nil)

	_, err := execute(t, "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestRequireKnowledge_Bootstrap(t *testing.T) {
	setupTestServices(t)
	knowledge := &mockKnowledgeService{stats: domain.KnowledgeStats{DocumentCount: 7}}
	store := memory.NewConfigStore()

	var gotDataDir string
	closed := false
	SetServices(nil, nil)
	SetBootstrap(Bootstrap{
		Settings: func(string) (driving.SettingsService, error) {
			return services.NewSettingsService(store), nil
		},
		Runtime: func(_ context.Context, settings *domain.AppSettings) (*Runtime, error) {
			gotDataDir = settings.Storage.DataDir
			return &Runtime{Knowledge: knowledge, Close: func(context.Context) error {
				closed = true
				return nil
			}}, nil
		},
	})

	dir := t.TempDir()
	out, err := execute(t, "--data-dir", dir, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Documents:         7")
	assert.Equal(t, dir, gotDataDir)

	require.NoError(t, closeRuntime(context.Background()))
	assert.True(t, closed)
	assert.NoError(t, closeRuntime(context.Background()), "second close is a no-op")
}

func TestRequireKnowledge_BootstrapFailure(t *testing.T) {
	setupTestServices(t)
	SetServices(nil, nil)
	SetBootstrap(Bootstrap{
		Settings: func(string) (driving.SettingsService, error) {
			return nil, errors.New("unreadable config")
		},
	})

	_, err := execute(t, "settings", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreadable config")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "é", truncate("éé", 1))
}

func TestStyleFor_PlainForBuffers(t *testing.T) {
	st := styleFor(new(bytes.Buffer))
	assert.Equal(t, "text", st.Title.Render("text"))
}
