package discovery

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"taxosort/internal/logging"
)

// Item is one image eligible for classification.
type Item struct {
	Path         string
	Key          string
	Ext          string
	DiscoveredAt time.Time
}

// Name returns the base file name.
func (i Item) Name() string {
	return filepath.Base(i.Path)
}

// KeyFunc maps a discovered path to its ledger key.
type KeyFunc func(path string) string

// PathKey keys items by their full path.
func PathKey(path string) string { return path }

// NameKey keys items by base file name.
func NameKey(path string) string { return filepath.Base(path) }

// Result is the outcome of a discovery walk.
type Result struct {
	// Items are the qualifying images not yet in the ledger, sorted by path.
	Items []Item
	// Total counts every qualifying image, processed or not.
	Total int
	// AlreadyDone counts qualifying images whose key is already processed.
	AlreadyDone int
	// Duplicates lists paths skipped because an earlier path produced the same key.
	Duplicates []string
	// Unsampled counts qualifying images left out by the per-directory sample.
	Unsampled int
}

// Option tunes a walk.
type Option func(*walker)

// WithPrune skips the given directories and everything below them.
func WithPrune(dirs ...string) Option {
	return func(w *walker) {
		for _, dir := range dirs {
			if strings.TrimSpace(dir) != "" {
				w.prune[filepath.Clean(dir)] = struct{}{}
			}
		}
	}
}

// WithLogger attaches a logger for skipped directories and duplicate keys.
func WithLogger(logger *slog.Logger) Option {
	return func(w *walker) {
		w.logger = logger
	}
}

type walker struct {
	prune       map[string]struct{}
	logger      *slog.Logger
	sampleLimit int
	sampleSeed  int64
}

// Discover walks root recursively and returns the images whose extension is in
// allow (case-insensitive) and whose key is absent from processed.
func Discover(root string, allow []string, processed map[string]struct{}, keyFn KeyFunc, opts ...Option) (*Result, error) {
	w := &walker{prune: make(map[string]struct{})}
	for _, opt := range opts {
		opt(w)
	}
	logger := logging.NewComponentLogger(w.logger, "discovery")
	if keyFn == nil {
		keyFn = PathKey
	}
	allowed := make(map[string]struct{}, len(allow))
	for _, ext := range allow {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}

	root = filepath.Clean(root)
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			logging.WarnWithContext(logger, "skipping unreadable path", "discovery_unreadable",
				logging.String("path", path),
				logging.Error(walkErr),
				logging.String(logging.FieldErrorHint, "check directory permissions"),
				logging.String(logging.FieldImpact, "images below this path are not classified"),
			)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if _, skip := w.prune[path]; skip && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if _, ok := allowed[strings.ToLower(filepath.Ext(path))]; ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovery: walk %s: %w", root, err)
	}
	slices.Sort(paths)
	paths, unsampled := w.sample(root, paths)

	now := time.Now()
	result := &Result{Unsampled: unsampled}
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		key := keyFn(path)
		if _, dup := seen[key]; dup {
			result.Duplicates = append(result.Duplicates, path)
			continue
		}
		seen[key] = struct{}{}
		result.Total++
		if _, done := processed[key]; done {
			result.AlreadyDone++
			continue
		}
		result.Items = append(result.Items, Item{
			Path:         path,
			Key:          key,
			Ext:          strings.ToLower(filepath.Ext(path)),
			DiscoveredAt: now,
		})
	}
	if len(result.Duplicates) > 0 {
		logging.WarnWithContext(logger, "images share a ledger key; keeping the first", "discovery_duplicate_keys",
			logging.Int("duplicates", len(result.Duplicates)),
			logging.String("first_skipped", result.Duplicates[0]),
			logging.String(logging.FieldErrorHint, "rename the files or use a path-keyed mode"),
			logging.String(logging.FieldImpact, "skipped images are not classified"),
		)
	}
	logger.Info("discovery complete",
		logging.String("root", root),
		logging.Int("total", result.Total),
		logging.Int("already_done", result.AlreadyDone),
		logging.Int("remaining", len(result.Items)),
		logging.Int("unsampled", result.Unsampled),
	)
	return result, nil
}

