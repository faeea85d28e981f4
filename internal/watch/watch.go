// Package watch provides a drop folder: plain-text files placed in watched
// directories are ingested into the index, and deleted files are removed.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Sink receives the content of dropped files. It is implemented by the
// ingestion pipeline.
type Sink interface {
	IngestDocument(ctx context.Context, text, sourceLabel string) (string, error)
	RemoveDocument(ctx context.Context, docID string) (int, error)
}

// DropFolder watches directories and ingests matching files as documents.
// Each file path maps to at most one document; rewriting a file replaces its
// document, deleting the file removes it.
type DropFolder struct {
	sink        Sink
	roots       []string
	extensions  []string
	recursive   bool
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	rootPaths   map[string][]string // root -> dirs we added to the watcher
	docIDs      map[string]string   // file path -> document ID
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger // optional; when set, logs debug events
}

// Option configures a DropFolder.
type Option func(*DropFolder)

// WithLogger sets a logger for debug output (directory changes, file events, etc.).
func WithLogger(l *zap.Logger) Option {
	return func(d *DropFolder) { d.logger = l }
}

// WithDebounce overrides the write-settle delay before a file is ingested.
func WithDebounce(dur time.Duration) Option {
	return func(d *DropFolder) { d.debounce = dur }
}

// New creates a drop folder over sink. roots are initial directory paths to
// watch; extensions filter which files (empty = all).
func New(sink Sink, roots []string, extensions []string, recursive bool, opts ...Option) *DropFolder {
	d := &DropFolder{
		sink:        sink,
		roots:       roots,
		extensions:  extensions,
		recursive:   recursive,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		rootPaths:   make(map[string][]string),
		docIDs:      make(map[string]string),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start starts watching. It runs until ctx is cancelled or Stop is called.
func (d *DropFolder) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.mu.Unlock()
		return err
	}
	d.watcher = watcher
	d.started = true
	if d.logger != nil {
		d.logger.Debug("drop folder starting", zap.Strings("roots", d.roots), zap.Strings("extensions", d.extensions), zap.Bool("recursive", d.recursive))
	}
	for _, root := range d.roots {
		if err := d.addRootLocked(root); err != nil {
			_ = d.watcher.Close()
			d.watcher = nil
			d.started = false
			d.mu.Unlock()
			return err
		}
	}
	d.mu.Unlock()
	go d.run(ctx)
	return nil
}

func (d *DropFolder) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.Stop()
			return
		case <-d.done:
			return
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			d.handleEvent(ctx, ev)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			if err != nil && d.logger != nil {
				d.logger.Debug("drop folder error", zap.Error(err))
			}
		}
	}
}

func (d *DropFolder) handleEvent(ctx context.Context, ev fsnotify.Event) {
	path := ev.Name
	if !d.underRoot(path) {
		return
	}
	if d.logger != nil {
		d.logger.Debug("drop folder event", zap.String("op", ev.Op.String()), zap.String("path", path))
	}
	switch ev.Op {
	case fsnotify.Create, fsnotify.Write:
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			d.handleNewDirectory(ctx, path)
			return
		}
		if d.matchExtension(path) {
			d.debounceIngest(ctx, path)
		}
	case fsnotify.Remove, fsnotify.Rename:
		d.cancelDebounce(path)
		if d.matchExtension(path) {
			d.removeFile(ctx, path)
		}
	}
}

// handleNewDirectory adds a newly created directory to the watch list and
// ingests the files already inside it.
func (d *DropFolder) handleNewDirectory(ctx context.Context, dirPath string) {
	d.mu.Lock()
	recursive := d.recursive
	watcher := d.watcher
	d.mu.Unlock()

	if watcher == nil {
		return
	}

	if recursive {
		filepath.WalkDir(dirPath, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() {
				if err := watcher.Add(path); err != nil && d.logger != nil {
					d.logger.Debug("drop folder failed to add directory", zap.String("path", path), zap.Error(err))
				}
			}
			return nil
		})
	} else if err := watcher.Add(dirPath); err != nil && d.logger != nil {
		d.logger.Debug("drop folder failed to add directory", zap.String("path", dirPath), zap.Error(err))
	}

	d.syncDirectory(ctx, dirPath)
}

func (d *DropFolder) underRoot(path string) bool {
	d.mu.Lock()
	roots := append([]string(nil), d.roots...)
	d.mu.Unlock()
	clean := filepath.Clean(path)
	for _, root := range roots {
		rootClean := filepath.Clean(root)
		if rootClean == clean || inDir(rootClean, clean) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (d *DropFolder) matchExtension(path string) bool {
	return matchExtension(path, d.extensions)
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (d *DropFolder) debounceIngest(ctx context.Context, path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.debounceMap[path]; ok {
		t.Stop()
	}
	t := time.AfterFunc(d.debounce, func() {
		d.mu.Lock()
		delete(d.debounceMap, path)
		d.mu.Unlock()
		d.ingestFile(ctx, path)
	})
	d.debounceMap[path] = t
}

func (d *DropFolder) cancelDebounce(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.debounceMap[path]; ok {
		t.Stop()
		delete(d.debounceMap, path)
	}
}

// ingestFile reads path and ingests it as one document, replacing any document
// previously ingested from the same path.
func (d *DropFolder) ingestFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if d.logger != nil {
			d.logger.Debug("drop folder read failed", zap.String("path", path), zap.Error(err))
		}
		return
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return
	}

	d.mu.Lock()
	oldID := d.docIDs[path]
	d.mu.Unlock()
	if oldID != "" {
		if _, err := d.sink.RemoveDocument(ctx, oldID); err != nil && d.logger != nil {
			d.logger.Debug("drop folder stale document removal failed", zap.String("document_id", oldID), zap.Error(err))
		}
	}

	docID, err := d.sink.IngestDocument(ctx, text, filepath.Base(path))
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("drop folder ingest failed", zap.String("path", path), zap.Error(err))
		}
		return
	}
	d.mu.Lock()
	d.docIDs[path] = docID
	d.mu.Unlock()
	if d.logger != nil {
		d.logger.Info("drop folder ingested file", zap.String("path", path), zap.String("document_id", docID))
	}
}

func (d *DropFolder) removeFile(ctx context.Context, path string) {
	d.mu.Lock()
	docID := d.docIDs[path]
	delete(d.docIDs, path)
	d.mu.Unlock()
	if docID == "" {
		return
	}
	if _, err := d.sink.RemoveDocument(ctx, docID); err != nil {
		if d.logger != nil {
			d.logger.Warn("drop folder document removal failed", zap.String("document_id", docID), zap.Error(err))
		}
		return
	}
	if d.logger != nil {
		d.logger.Info("drop folder removed document", zap.String("path", path), zap.String("document_id", docID))
	}
}

// AddDirectory adds a root directory to watch and optionally ingests existing files.
func (d *DropFolder) AddDirectory(ctx context.Context, root string, syncExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.watcher == nil {
		return nil
	}
	for _, r := range d.roots {
		if filepath.Clean(r) == filepath.Clean(abs) {
			return nil
		}
	}
	if err := d.addRootLocked(abs); err != nil {
		return err
	}
	d.roots = append(d.roots, abs)
	if syncExisting {
		go d.syncDirectory(ctx, abs)
	}
	return nil
}

func (d *DropFolder) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(root, 0755); err != nil {
				return err
			}
		} else {
			return err
		}
	}
	var paths []string
	add := func(path string, entry fs.DirEntry) error {
		if !entry.IsDir() {
			return nil
		}
		if err := d.watcher.Add(path); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	}
	if d.recursive {
		err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			return add(path, entry)
		})
		if err != nil {
			return err
		}
	} else {
		if err := d.watcher.Add(root); err != nil {
			return err
		}
		paths = append(paths, root)
	}
	d.rootPaths[root] = paths
	return nil
}

func (d *DropFolder) syncDirectory(ctx context.Context, root string) {
	d.mu.Lock()
	exts := append([]string(nil), d.extensions...)
	d.mu.Unlock()
	filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		if matchExtension(path, exts) {
			d.ingestFile(ctx, path)
		}
		return nil
	})
}

// RemoveDirectory stops watching the given root. It does not remove ingested documents.
func (d *DropFolder) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.watcher == nil {
		return nil
	}
	idx := -1
	for i, r := range d.roots {
		if filepath.Clean(r) == abs {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	for _, p := range d.rootPaths[abs] {
		_ = d.watcher.Remove(p)
	}
	delete(d.rootPaths, abs)
	d.roots = append(d.roots[:idx], d.roots[idx+1:]...)
	return nil
}

// Directories returns a copy of the current watched root directories.
func (d *DropFolder) Directories() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.roots...)
}

// SyncExistingFiles ingests all files already present in each watched root
// that match the configured extensions. Call after Start().
func (d *DropFolder) SyncExistingFiles(ctx context.Context) {
	d.mu.Lock()
	roots := append([]string(nil), d.roots...)
	d.mu.Unlock()
	for _, root := range roots {
		d.syncDirectory(ctx, root)
	}
}

// Stop stops the watcher and releases resources.
func (d *DropFolder) Stop() {
	d.mu.Lock()
	if !d.started || d.watcher == nil {
		d.mu.Unlock()
		return
	}
	for path, t := range d.debounceMap {
		t.Stop()
		delete(d.debounceMap, path)
	}
	_ = d.watcher.Close()
	d.watcher = nil
	d.started = false
	d.mu.Unlock()
	d.stopOnce.Do(func() { close(d.done) })
}
