package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/clarabennett2626/logrecorder/internal/record"
)

// FileConfig holds configuration for a file source.
type FileConfig struct {
	// Patterns is a list of file paths or glob patterns.
	Patterns []string
	// TailLines is the number of existing lines to emit on startup. Zero or
	// negative emits the whole file.
	TailLines int
	// Parser turns lines into records. Nil selects record.NewAutoParser.
	Parser record.Parser
	// PollInterval is the fallback poll period for missed fsnotify events.
	PollInterval time.Duration
}

// FileSource tails one or more files, following rotation and truncation,
// and emits one record per line to its listeners.
type FileSource struct {
	*Hub
	config  FileConfig
	errs    chan error
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped chan struct{}
	// mu serializes parsing across tailers; record.AutoParser is stateless
	// but user-supplied parsers need not be.
	mu sync.Mutex
}

// NewFileSource creates a new file source from the given config.
func NewFileSource(cfg FileConfig) *FileSource {
	if cfg.Parser == nil {
		cfg.Parser = record.NewAutoParser()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &FileSource{
		Hub:     NewHub("file"),
		config:  cfg,
		errs:    make(chan error, 32),
		stopped: make(chan struct{}),
	}
}

func (fs *FileSource) Errors() <-chan error  { return fs.errs }
func (fs *FileSource) Done() <-chan struct{} { return fs.stopped }

// Start resolves the patterns and launches one tailer per matched file. It
// returns once tailing has begun.
func (fs *FileSource) Start(ctx context.Context) error {
	ctx, fs.cancel = context.WithCancel(ctx)

	paths, err := fs.resolvePatterns()
	if err != nil {
		return fmt.Errorf("resolving file patterns: %w", err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no files matched patterns: %v", fs.config.Patterns)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	// Watch the parent directories so rotation shows up as Create/Rename.
	dirs := map[string]struct{}{}
	for _, p := range paths {
		dirs[filepath.Dir(p)] = struct{}{}
	}
	for d := range dirs {
		if err := watcher.Add(d); err != nil {
			fs.sendError(fmt.Errorf("watching directory %s: %w", d, err))
		}
	}

	for _, p := range paths {
		fs.wg.Add(1)
		go fs.tailFile(ctx, watcher, p)
	}

	go func() {
		fs.wg.Wait()
		watcher.Close()
		close(fs.errs)
		close(fs.stopped)
	}()
	return nil
}

// Stop cancels tailing and waits for the tailers to finish.
func (fs *FileSource) Stop() error {
	if fs.cancel != nil {
		fs.cancel()
		<-fs.stopped
	}
	return nil
}

func (fs *FileSource) resolvePatterns() ([]string, error) {
	seen := map[string]struct{}{}
	var result []string
	add := func(p string) error {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		if _, ok := seen[abs]; !ok {
			seen[abs] = struct{}{}
			result = append(result, abs)
		}
		return nil
	}

	for _, pattern := range fs.config.Patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err != nil {
				return nil, fmt.Errorf("file not found: %s", pattern)
			}
			if err := add(pattern); err != nil {
				return nil, err
			}
			continue
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err != nil || info.IsDir() {
				continue
			}
			if err := add(m); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

// tail is the per-file read position.
type tail struct {
	path     string
	f        *os.File
	offset   int64
	lastSize int64
	lastStat os.FileInfo
}

func (t *tail) replace(f *os.File, offset int64) {
	if t.f != nil {
		t.f.Close()
	}
	t.f = f
	t.offset = offset
	t.lastSize = offset
	t.lastStat, _ = f.Stat()
}

func (fs *FileSource) tailFile(ctx context.Context, watcher *fsnotify.Watcher, path string) {
	defer fs.wg.Done()

	f, err := os.Open(path)
	if err != nil {
		fs.sendError(fmt.Errorf("opening %s: %w", path, err))
		return
	}
	t := &tail{path: path}
	defer func() {
		if t.f != nil {
			t.f.Close()
		}
	}()

	if fs.config.TailLines > 0 {
		if err := seekToLastN(f, fs.config.TailLines); err != nil {
			fs.sendError(fmt.Errorf("seeking in %s: %w", path, err))
		}
	}
	offset, err := fs.readLines(f, path)
	if err != nil {
		f.Close()
		fs.sendError(fmt.Errorf("initial read of %s: %w", path, err))
		return
	}
	t.replace(f, offset)

	ticker := time.NewTicker(fs.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if abs, _ := filepath.Abs(event.Name); abs != path {
				continue
			}
			if event.Has(fsnotify.Write) {
				if err := fs.handleWrite(t); err != nil {
					fs.sendError(err)
				}
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				fs.tryReopen(ctx, t)
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}

		case <-ticker.C:
			fs.poll(ctx, t)
		}
	}
}

// poll covers events fsnotify missed: truncation, rotation and plain growth.
func (fs *FileSource) poll(ctx context.Context, t *tail) {
	stat, err := os.Stat(t.path)
	if err != nil {
		fs.tryReopen(ctx, t)
		return
	}
	if stat.Size() < t.lastSize {
		f, err := os.Open(t.path)
		if err != nil {
			fs.sendError(fmt.Errorf("reopening truncated %s: %w", t.path, err))
			return
		}
		t.replace(f, 0)
	}
	off, err := fs.readLines(t.f, t.path)
	if err != nil {
		fs.sendError(err)
		return
	}
	if off > 0 {
		t.offset = off
	}
	t.lastSize = t.offset
}

func (fs *FileSource) handleWrite(t *tail) error {
	stat, err := os.Stat(t.path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", t.path, err)
	}
	if stat.Size() < t.lastSize {
		if _, err := t.f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("seek after truncation %s: %w", t.path, err)
		}
		t.offset = 0
	}
	off, err := fs.readLines(t.f, t.path)
	if err != nil {
		return err
	}
	if off > 0 {
		t.offset = off
	}
	t.lastSize = stat.Size()
	return nil
}

// tryReopen waits briefly for a rotated file to reappear under the same
// name and switches to it when it is a different file.
func (fs *FileSource) tryReopen(ctx context.Context, t *tail) {
	for i := 0; i < 5; i++ {
		f, err := os.Open(t.path)
		if err == nil {
			newStat, _ := f.Stat()
			if t.lastStat == nil || !os.SameFile(t.lastStat, newStat) {
				off, _ := fs.readLines(f, t.path)
				t.replace(f, off)
				return
			}
			f.Close()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// readLines emits every complete line from the current position and
// returns the new offset.
func (fs *FileSource) readLines(f *os.File, path string) (int64, error) {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fs.emitLine(scanner.Text(), path)
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	off, _ := f.Seek(0, io.SeekCurrent)
	return off, nil
}

func (fs *FileSource) emitLine(line, path string) {
	fs.mu.Lock()
	e := fs.config.Parser.Parse(line)
	fs.mu.Unlock()
	if e.Logger == "" {
		e.Logger = path
	}
	fs.Emit(e)
}

// seekToLastN positions f to read roughly the last n lines by scanning
// backwards from the end in fixed chunks.
func seekToLastN(f *os.File, n int) error {
	stat, err := f.Stat()
	if err != nil {
		return err
	}
	size := stat.Size()
	if size == 0 {
		return nil
	}

	const chunkSize = 8192
	newlines := 0
	offset := size

	for offset > 0 && newlines <= n {
		readSize := int64(chunkSize)
		if readSize > offset {
			readSize = offset
		}
		offset -= readSize

		buf := make([]byte, readSize)
		if _, err := f.ReadAt(buf, offset); err != nil && err != io.EOF {
			return err
		}
		found := false
		for i := len(buf) - 1; i >= 0; i-- {
			if buf[i] != '\n' {
				continue
			}
			newlines++
			if newlines > n {
				offset += int64(i) + 1
				found = true
				break
			}
		}
		if found {
			break
		}
	}

	_, err = f.Seek(offset, io.SeekStart)
	return err
}

func (fs *FileSource) sendError(err error) {
	select {
	case fs.errs <- err:
	default:
	}
}
