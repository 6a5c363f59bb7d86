// Package watch ingests files dropped into an inbox directory.
//
// New and rewritten files are read once writes settle and handed to the
// knowledge service. A rewritten or removed file replaces or deletes the
// document previously ingested from the same path.
package watch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"

	"github.com/nomadai/kbase/internal/core/domain"
	"github.com/nomadai/kbase/internal/core/ports/driving"
	"github.com/nomadai/kbase/internal/logger"
)

const (
	// DefaultDebounce is how long a file must stay quiet before it is ingested.
	DefaultDebounce = 300 * time.Millisecond

	// DefaultMaxFileSize bounds the files read from the inbox.
	DefaultMaxFileSize = 10 << 20
)

// Action is what an inbox event asks for.
type Action int

const (
	// ActionNone ignores the event.
	ActionNone Action = iota
	// ActionIngest reads the file and ingests it.
	ActionIngest
	// ActionRemove deletes the document ingested from the path.
	ActionRemove
)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a changed file is ingested.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithMaxFileSize sets the largest file that is read.
func WithMaxFileSize(n int64) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.maxSize = n
		}
	}
}

// WithInitialScan ingests files already present when Run starts.
func WithInitialScan(enabled bool) Option {
	return func(w *Watcher) {
		w.initialScan = enabled
	}
}

// WithResultHandler is called after every ingestion attempt.
func WithResultHandler(fn func(path string, result domain.ProcessResult)) Option {
	return func(w *Watcher) {
		w.onResult = fn
	}
}

// Watcher ingests files from one directory.
type Watcher struct {
	dir         string
	knowledge   driving.KnowledgeService
	debounce    time.Duration
	maxSize     int64
	initialScan bool
	onResult    func(string, domain.ProcessResult)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	ingests map[string]string // path -> document id
	wg      sync.WaitGroup
}

// New creates a watcher for dir.
func New(dir string, knowledge driving.KnowledgeService, opts ...Option) *Watcher {
	w := &Watcher{
		dir:       dir,
		knowledge: knowledge,
		debounce:  DefaultDebounce,
		maxSize:   DefaultMaxFileSize,
		timers:    make(map[string]*time.Timer),
		ingests:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches the directory until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("inbox %s: %w", w.dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: inbox %s is not a directory", domain.ErrInvalidInput, w.dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	logger.Info("watching %s", w.dir)

	if w.initialScan {
		w.scan(ctx)
	}

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch ClassifyEvent(event) {
			case ActionIngest:
				w.schedule(ctx, event.Name)
			case ActionRemove:
				w.cancel(event.Name)
				w.remove(ctx, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch %s: %v", w.dir, err)
		}
	}
}

// ClassifyEvent maps a filesystem event onto an Action. Hidden files,
// directories and attribute changes are ignored.
func ClassifyEvent(event fsnotify.Event) Action {
	if isHidden(event.Name) {
		return ActionNone
	}
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return ActionRemove
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil || !info.Mode().IsRegular() {
			return ActionNone
		}
		return ActionIngest
	default:
		return ActionNone
	}
}

func isHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~")
}

func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logger.Warn("scanning %s: %v", w.dir, err)
		return
	}
	for _, e := range entries {
		if e.Type().IsRegular() && !isHidden(e.Name()) {
			w.IngestFile(ctx, filepath.Join(w.dir, e.Name()))
		}
	}
}

// schedule ingests path once no event for it arrived for the debounce period.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok && t.Stop() {
		t.Reset(w.debounce)
		return
	}

	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.timers[path] == t {
			delete(w.timers, path)
		}
		w.mu.Unlock()
		if ctx.Err() == nil {
			w.IngestFile(ctx, path)
		}
	})
	w.timers[path] = t
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.timers[path]
	if !ok {
		return
	}
	if t.Stop() {
		w.wg.Done()
	}
	delete(w.timers, path)
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	for path, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// IngestFile reads path and hands it to the knowledge service. When the
// path was ingested before and its content changed, the older document is
// deleted. A path only owns documents it created; a duplicate of another
// file's document is never tracked, so removing the path leaves it alone.
func (w *Watcher) IngestFile(ctx context.Context, path string) domain.ProcessResult {
	file, err := w.readFile(path)
	if err != nil {
		logger.Warn("reading %s: %v", path, err)
		result := domain.ProcessResult{Kind: domain.KindOf(err), Error: err.Error(), Message: err.Error()}
		w.report(path, result)
		return result
	}

	result := w.knowledge.ProcessDocument(ctx, file, false)
	if result.Success {
		w.mu.Lock()
		previous := w.ingests[path]
		if !result.IsDuplicate || result.DocumentID == previous {
			w.ingests[path] = result.DocumentID
		} else {
			delete(w.ingests, path)
		}
		w.mu.Unlock()
		if previous != "" && previous != result.DocumentID {
			w.knowledge.DeleteDocument(ctx, previous)
			logger.Info("%s changed, replaced document %s", filepath.Base(path), previous)
		}
	}
	w.report(path, result)
	return result
}

func (w *Watcher) remove(ctx context.Context, path string) {
	w.mu.Lock()
	id, ok := w.ingests[path]
	delete(w.ingests, path)
	w.mu.Unlock()
	if ok && w.knowledge.DeleteDocument(ctx, id) {
		logger.Info("%s removed from inbox, deleted document %s", filepath.Base(path), id)
	}
}

func (w *Watcher) report(path string, result domain.ProcessResult) {
	if w.onResult != nil {
		w.onResult(path, result)
	}
}

func (w *Watcher) readFile(path string) (domain.UploadedFile, error) {
	return LoadFile(path, w.maxSize)
}

// LoadFile builds the upload descriptor for path. Binary files get no
// content so the knowledge service rejects them as having nothing to index.
func LoadFile(path string, maxSize int64) (domain.UploadedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.UploadedFile{}, err
	}
	if info.IsDir() {
		return domain.UploadedFile{}, fmt.Errorf("%w: %s is a directory", domain.ErrInvalidInput, path)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return domain.UploadedFile{}, fmt.Errorf("%w: %s is %d bytes, limit is %d",
			domain.ErrInvalidInput, filepath.Base(path), info.Size(), maxSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.UploadedFile{}, err
	}

	name := filepath.Base(path)
	if !IsText(data) {
		return domain.UploadedFile{Name: name, Size: int64(len(data))}, nil
	}
	return domain.TextFile(name, "", string(data)), nil
}

// IsText reports whether data looks like UTF-8 text.
func IsText(data []byte) bool {
	return utf8.Valid(data) && !bytes.ContainsRune(data, 0)
}
