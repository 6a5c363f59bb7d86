package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomadai/kbase/internal/core/domain"
)

// recordingKnowledge implements driving.KnowledgeService and records calls.
type recordingKnowledge struct {
	mu      sync.Mutex
	files   []domain.UploadedFile
	deleted []string
	byHash  map[string]string
	next    int
}

func newRecordingKnowledge() *recordingKnowledge {
	return &recordingKnowledge{byHash: make(map[string]string)}
}

func (r *recordingKnowledge) ProcessDocument(_ context.Context, file domain.UploadedFile, _ bool) domain.ProcessResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, file)
	if !file.HasContent() {
		return domain.ProcessResult{Kind: domain.KindNoContent, Message: "No content"}
	}
	hash := domain.ContentHash(*file.Content)
	if id, ok := r.byHash[hash]; ok {
		return domain.ProcessResult{Success: true, IsDuplicate: true, DocumentID: id}
	}
	r.next++
	id := fmt.Sprintf("doc-%d", r.next)
	r.byHash[hash] = id
	return domain.ProcessResult{Success: true, DocumentID: id}
}

func (r *recordingKnowledge) ProcessAttachments(context.Context, []domain.UploadedFile) []domain.AttachmentResult {
	return nil
}

func (r *recordingKnowledge) SearchRelevantChunks(context.Context, string, int) domain.SearchResponse {
	return domain.SearchResponse{}
}

func (r *recordingKnowledge) BuildContext(context.Context, string, int) domain.ContextResult {
	return domain.ContextResult{}
}

func (r *recordingKnowledge) GetKnowledgeBase(context.Context) []domain.Document { return nil }

func (r *recordingKnowledge) GetDocument(context.Context, string) (*domain.Document, error) {
	return nil, domain.ErrNotFound
}

func (r *recordingKnowledge) GetContent(context.Context, string) (string, error) {
	return "", domain.ErrNotFound
}

func (r *recordingKnowledge) FindDocuments(context.Context, string) []domain.Document { return nil }

func (r *recordingKnowledge) DeleteDocument(_ context.Context, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
	return true
}

func (r *recordingKnowledge) Stats(context.Context) domain.KnowledgeStats {
	return domain.KnowledgeStats{}
}

func (r *recordingKnowledge) Repair(context.Context) (domain.RepairReport, error) {
	return domain.RepairReport{}, nil
}

func (r *recordingKnowledge) fileNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.files))
	for i, f := range r.files {
		names[i] = f.Name
	}
	return names
}

func (r *recordingKnowledge) deletedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.deleted...)
}

func TestClassifyEvent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0o644))
	hidden := filepath.Join(dir, ".notes.txt.swp")
	require.NoError(t, os.WriteFile(hidden, []byte("x"), 0o644))
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	tests := []struct {
		name string
		path string
		op   fsnotify.Op
		want Action
	}{
		{"create file", file, fsnotify.Create, ActionIngest},
		{"write file", file, fsnotify.Write, ActionIngest},
		{"write and chmod", file, fsnotify.Write | fsnotify.Chmod, ActionIngest},
		{"chmod only", file, fsnotify.Chmod, ActionNone},
		{"remove", filepath.Join(dir, "gone.txt"), fsnotify.Remove, ActionRemove},
		{"rename", filepath.Join(dir, "moved.txt"), fsnotify.Rename, ActionRemove},
		{"create directory", sub, fsnotify.Create, ActionNone},
		{"create vanished file", filepath.Join(dir, "tmp.txt"), fsnotify.Create, ActionNone},
		{"hidden file", hidden, fsnotify.Create, ActionNone},
		{"hidden remove", hidden, fsnotify.Remove, ActionNone},
		{"editor backup", filepath.Join(dir, "notes.txt~"), fsnotify.Remove, ActionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyEvent(fsnotify.Event{Name: tt.path, Op: tt.op}))
		})
	}
}

func TestIsText(t *testing.T) {
	assert.True(t, IsText([]byte("plain text, ünïcode")))
	assert.True(t, IsText(nil))
	assert.False(t, IsText([]byte{0xff, 0xfe, 0x00}))
	assert.False(t, IsText([]byte("nul\x00byte")))
}

func TestWatcher_IngestFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	knowledge := newRecordingKnowledge()

	var reported []string
	w := New(dir, knowledge, WithMaxFileSize(32), WithResultHandler(func(path string, _ domain.ProcessResult) {
		reported = append(reported, filepath.Base(path))
	}))

	path := filepath.Join(dir, "a.csv")
	require.NoError(t, os.WriteFile(path, []byte("h1,h2\n1,2\n"), 0o644))
	first := w.IngestFile(ctx, path)
	require.True(t, first.Success)
	assert.Equal(t, "a.csv", knowledge.files[0].Name)
	assert.Equal(t, int64(10), knowledge.files[0].Size)

	require.NoError(t, os.WriteFile(path, []byte("h1,h2\n3,4\n"), 0o644))
	second := w.IngestFile(ctx, path)
	require.True(t, second.Success)
	assert.Equal(t, []string{first.DocumentID}, knowledge.deletedIDs(), "changed file replaces its document")

	same := w.IngestFile(ctx, path)
	assert.True(t, same.IsDuplicate)
	assert.Len(t, knowledge.deletedIDs(), 1, "unchanged file keeps its document")

	binary := filepath.Join(dir, "img.png")
	require.NoError(t, os.WriteFile(binary, []byte{0x89, 'P', 'N', 'G', 0x00}, 0o644))
	res := w.IngestFile(ctx, binary)
	assert.Equal(t, domain.KindNoContent, res.Kind)

	big := filepath.Join(dir, "big.txt")
	require.NoError(t, os.WriteFile(big, make([]byte, 64), 0o644))
	res = w.IngestFile(ctx, big)
	assert.Equal(t, domain.KindInvalidInput, res.Kind)

	res = w.IngestFile(ctx, filepath.Join(dir, "missing.txt"))
	assert.False(t, res.Success)

	assert.Equal(t, []string{"a.csv", "a.csv", "a.csv", "img.png", "big.txt", "missing.txt"}, reported)
}

func TestWatcher_DuplicateOfOtherFileIsNotOwned(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	knowledge := newRecordingKnowledge()
	w := New(dir, knowledge)

	original := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(original, []byte("shared text"), 0o644))
	first := w.IngestFile(ctx, original)
	require.True(t, first.Success)

	copied := filepath.Join(dir, "copy.txt")
	require.NoError(t, os.WriteFile(copied, []byte("shared text"), 0o644))
	dup := w.IngestFile(ctx, copied)
	require.True(t, dup.IsDuplicate)
	assert.Equal(t, first.DocumentID, dup.DocumentID)

	w.remove(ctx, copied)
	assert.Empty(t, knowledge.deletedIDs(), "removing a duplicate must not delete the original's document")

	rewritten := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(rewritten, []byte("own text"), 0o644))
	own := w.IngestFile(ctx, rewritten)
	require.True(t, own.Success)
	require.False(t, own.IsDuplicate)

	require.NoError(t, os.WriteFile(rewritten, []byte("shared text"), 0o644))
	res := w.IngestFile(ctx, rewritten)
	require.True(t, res.IsDuplicate)
	assert.Equal(t, []string{own.DocumentID}, knowledge.deletedIDs(), "rewritten file drops only its own document")

	w.remove(ctx, rewritten)
	assert.Equal(t, []string{own.DocumentID}, knowledge.deletedIDs())

	w.remove(ctx, original)
	assert.Equal(t, []string{own.DocumentID, first.DocumentID}, knowledge.deletedIDs())
}

func TestWatcher_RunRejectsBadDirectory(t *testing.T) {
	knowledge := newRecordingKnowledge()

	err := New(filepath.Join(t.TempDir(), "missing"), knowledge).Run(context.Background())
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	err = New(file, knowledge).Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestWatcher_Run(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing.txt"), []byte("already here"), 0o644))

	knowledge := newRecordingKnowledge()
	w := New(dir, knowledge, WithDebounce(20*time.Millisecond), WithInitialScan(true))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(knowledge.fileNames()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	dropped := filepath.Join(dir, "dropped.md")
	require.NoError(t, os.WriteFile(dropped, []byte("# dropped"), 0o644))
	require.Eventually(t, func() bool {
		names := knowledge.fileNames()
		return len(names) >= 2 && names[len(names)-1] == "dropped.md"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(dropped))
	require.Eventually(t, func() bool {
		return len(knowledge.deletedIDs()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, "existing.txt", knowledge.fileNames()[0])
}
