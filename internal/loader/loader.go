// Package loader provides capture file loading, decoding, and hot-reload
// management.
package loader

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/geekxflood/common/config"
	"github.com/geekxflood/proteus/internal/ber"
	"github.com/geekxflood/proteus/internal/types"
)

// CaptureFile represents a loaded capture file and its decode result
type CaptureFile struct {
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"mod_time"`
	LastLoaded  time.Time `json:"last_loaded"`
	LoadCount   int       `json:"load_count"`
	DecodedOK   bool      `json:"decoded_ok"`
	DecodeError string    `json:"decode_error,omitempty"`
	RootType    string    `json:"root_type,omitempty"`
	NodeCount   int       `json:"node_count,omitempty"`

	// Record is the decode record produced for the file, kept for
	// handlers and storage.
	Record *types.DecodeRecord `json:"-"`
}

// LoaderConfig holds configuration for the capture loader
type LoaderConfig struct {
	CaptureDirectories []string `json:"capture_directories"`
	FileExtensions     []string `json:"file_extensions"`
	MaxFileSize        int64    `json:"max_file_size"`
	EnableHotReload    bool     `json:"enable_hot_reload"`
	RecursiveScan      bool     `json:"recursive_scan"`
	IgnorePatterns     []string `json:"ignore_patterns"`
	ExpandEmbedded     bool     `json:"expand_embedded"`
	MaxDepth           int      `json:"max_depth"`
	MaxPayload         int64    `json:"max_payload"`
}

// DefaultLoaderConfig returns a default loader configuration
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		CaptureDirectories: []string{"./captures"},
		FileExtensions:     []string{".der", ".ber", ".crt", ".cer", ".bin"},
		MaxFileSize:        16 * 1024 * 1024, // 16MB
		EnableHotReload:    true,
		RecursiveScan:      true,
		IgnorePatterns:     []string{".*", "_*", "*.bak", "*.tmp"},
		ExpandEmbedded:     true,
	}
}

// ReloadHandler is called when capture files are loaded or reloaded
type ReloadHandler func(files []*CaptureFile) error

// RecordHandler receives the decode record produced for each loaded file
type RecordHandler func(record *types.DecodeRecord)

// Loader manages capture file loading and decoding
type Loader struct {
	config        *LoaderConfig
	files         map[string]*CaptureFile
	watcher       *fsnotify.Watcher
	mu            sync.RWMutex
	stats         *types.LoaderStats
	handlers      []ReloadHandler
	recordHandler RecordHandler
}

// NewLoader creates a new capture loader with the given configuration
func NewLoader(cfg config.Provider) (*Loader, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration provider cannot be nil")
	}

	loaderConfig := DefaultLoaderConfig()

	if dirs, err := cfg.GetStringSlice("captures.directories"); err == nil && dirs != nil {
		loaderConfig.CaptureDirectories = dirs
	}

	if exts, err := cfg.GetStringSlice("captures.file_extensions"); err == nil && exts != nil {
		loaderConfig.FileExtensions = exts
	}

	if size, err := cfg.GetInt("captures.max_file_size", int(loaderConfig.MaxFileSize)); err == nil {
		loaderConfig.MaxFileSize = int64(size)
	}

	if reload, err := cfg.GetBool("captures.enable_hot_reload", loaderConfig.EnableHotReload); err == nil {
		loaderConfig.EnableHotReload = reload
	}

	if recursive, err := cfg.GetBool("captures.recursive_scan", loaderConfig.RecursiveScan); err == nil {
		loaderConfig.RecursiveScan = recursive
	}

	if expand, err := cfg.GetBool("decoder.expand_embedded", loaderConfig.ExpandEmbedded); err == nil {
		loaderConfig.ExpandEmbedded = expand
	}

	if depth, err := cfg.GetInt("decoder.max_depth", 0); err == nil && depth > 0 {
		loaderConfig.MaxDepth = depth
	}

	if payload, err := cfg.GetInt("decoder.max_payload", 0); err == nil && payload > 0 {
		loaderConfig.MaxPayload = int64(payload)
	}

	loader := &Loader{
		config: loaderConfig,
		files:  make(map[string]*CaptureFile),
		stats:  &types.LoaderStats{},
	}

	if loaderConfig.EnableHotReload {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		loader.watcher = watcher
		go loader.watchFiles()
	}

	return loader, nil
}

// SetRecordHandler registers the handler that receives decode records for
// loaded files. Must be called before LoadAll.
func (l *Loader) SetRecordHandler(handler RecordHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recordHandler = handler
}

// LoadAll scans all configured directories and decodes capture files
func (l *Loader) LoadAll() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadAll()
}

// loadAll performs the scan. Caller must hold l.mu.
func (l *Loader) loadAll() error {
	startTime := time.Now()
	l.stats.DirectoriesScanned = 0
	l.stats.FilesLoaded = 0
	l.stats.DecodeErrors = 0

	for _, dir := range l.config.CaptureDirectories {
		if err := l.scanDirectory(dir); err != nil {
			// Skip missing or unreadable directories
			continue
		}
		l.stats.DirectoriesScanned++
	}

	l.stats.LastScanTime = time.Now()
	l.stats.ScanDuration = time.Since(startTime)

	return nil
}

// scanDirectory recursively scans a directory for capture files
func (l *Loader) scanDirectory(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("directory does not exist: %s", dir)
	}

	walkFunc := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if !l.config.RecursiveScan && path != dir {
				return filepath.SkipDir
			}
			return nil
		}

		if l.shouldIgnoreFile(path) {
			return nil
		}

		if !l.hasValidExtension(path) {
			return nil
		}

		if err := l.loadFile(path); err != nil {
			return nil
		}

		l.stats.FilesLoaded++
		return nil
	}

	return filepath.WalkDir(dir, walkFunc)
}

// loadFile loads and decodes a single capture file
func (l *Loader) loadFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}

	if info.Size() > l.config.MaxFileSize {
		return fmt.Errorf("file %s exceeds maximum size limit", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", path, err)
	}

	captureFile := &CaptureFile{
		Path:       path,
		Name:       filepath.Base(path),
		Size:       info.Size(),
		ModTime:    info.ModTime(),
		LastLoaded: time.Now(),
		LoadCount:  1,
	}

	existing, known := l.files[path]
	if known {
		captureFile.LoadCount = existing.LoadCount + 1
	}

	captureFile.Record = l.decode(content, path)
	captureFile.DecodedOK = captureFile.Record.Status == types.StatusOK
	if captureFile.DecodedOK {
		captureFile.RootType = captureFile.Record.RootType
		captureFile.NodeCount = captureFile.Record.NodeCount
	} else {
		captureFile.DecodeError = captureFile.Record.Error
		l.stats.DecodeErrors++
	}

	l.files[path] = captureFile
	l.stats.TotalSize += info.Size()

	if l.watcher != nil && !known {
		l.watcher.Add(path)
		l.stats.FilesWatched++
	}

	if l.recordHandler != nil {
		l.recordHandler(captureFile.Record)
	}

	return nil
}

// decode runs the BER decoder over one capture file's content
func (l *Loader) decode(content []byte, path string) *types.DecodeRecord {
	opts := ber.Options{
		ExpandEmbedded: l.config.ExpandEmbedded,
		MaxDepth:       l.config.MaxDepth,
		MaxPayload:     l.config.MaxPayload,
	}

	start := time.Now()
	tag, err := ber.DecodeBytes(content, opts)
	elapsed := time.Since(start)
	if err != nil {
		record := types.NewErrorRecord(path, types.TransportFile, len(content), err)
		record.DecodeDuration = elapsed
		return record
	}

	record := types.NewRecord(path, types.TransportFile, len(content), tag)
	record.DecodeDuration = elapsed
	if treeJSON, err := json.Marshal(types.Summarize(tag)); err == nil {
		record.TreeJSON = string(treeJSON)
	}
	return record
}

// shouldIgnoreFile checks if a file should be ignored based on patterns
func (l *Loader) shouldIgnoreFile(path string) bool {
	filename := filepath.Base(path)

	for _, pattern := range l.config.IgnorePatterns {
		if matched, _ := filepath.Match(pattern, filename); matched {
			return true
		}
	}

	return false
}

// hasValidExtension checks if a file has a recognized capture extension
func (l *Loader) hasValidExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))

	for _, validExt := range l.config.FileExtensions {
		if ext == strings.ToLower(validExt) {
			return true
		}
	}

	return false
}

// watchFiles monitors capture files for changes
func (l *Loader) watchFiles() {
	if l.watcher == nil {
		return
	}

	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}

			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				l.handleFileChange(event.Name)
			} else if event.Op&fsnotify.Remove == fsnotify.Remove {
				l.handleFileRemoval(event.Name)
			}

		case _, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// handleFileChange processes file change events
func (l *Loader) handleFileChange(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.loadFile(path); err != nil {
		return
	}

	l.stats.ReloadEvents++
	l.notifyHandlers()
}

// handleFileRemoval processes file removal events
func (l *Loader) handleFileRemoval(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.files, path)
	l.stats.ReloadEvents++
	l.notifyHandlers()
}

// notifyHandlers calls all registered reload handlers. Caller must hold l.mu.
func (l *Loader) notifyHandlers() {
	files := make([]*CaptureFile, 0, len(l.files))
	for _, file := range l.files {
		if file.DecodedOK {
			files = append(files, file)
		}
	}

	for _, handler := range l.handlers {
		go func(h ReloadHandler) {
			_ = h(files)
		}(handler)
	}
}

// AddReloadHandler registers a handler for capture reload events
func (l *Loader) AddReloadHandler(handler ReloadHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, handler)
}

// GetFile returns a loaded capture file by path
func (l *Loader) GetFile(path string) (*CaptureFile, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	file, exists := l.files[path]
	return file, exists
}

// GetAllFiles returns all loaded capture files
func (l *Loader) GetAllFiles() []*CaptureFile {
	l.mu.RLock()
	defer l.mu.RUnlock()

	files := make([]*CaptureFile, 0, len(l.files))
	for _, file := range l.files {
		files = append(files, file)
	}
	return files
}

// GetValidFiles returns only successfully decoded capture files
func (l *Loader) GetValidFiles() []*CaptureFile {
	l.mu.RLock()
	defer l.mu.RUnlock()

	files := make([]*CaptureFile, 0, len(l.files))
	for _, file := range l.files {
		if file.DecodedOK {
			files = append(files, file)
		}
	}
	return files
}

// GetStats returns loader statistics
func (l *Loader) GetStats() *types.LoaderStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := *l.stats
	return &stats
}

// Reload forces a rescan and re-decode of all capture files
func (l *Loader) Reload() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.files = make(map[string]*CaptureFile)
	l.stats.TotalSize = 0
	l.stats.FilesWatched = 0

	return l.loadAll()
}

// Close shuts down the loader and releases resources
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

// GetConfig returns the loader configuration
func (l *Loader) GetConfig() *LoaderConfig {
	return l.config
}
