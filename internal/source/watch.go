package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"courserag/internal/logger"
)

// Watcher hands documents to a Handler as they are created or rewritten in
// a folder. Editors often emit several writes per save, so events for one
// file are coalesced over Settle.
type Watcher struct {
	Dir    string
	Settle time.Duration
}

// documentPath reports whether ev concerns a document that should be
// (re)read. Removals, renames, chmods and hidden files are ignored.
func documentPath(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return "", false
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") {
		return "", false
	}
	if !slices.Contains(documentExts, strings.ToLower(filepath.Ext(base))) {
		return "", false
	}
	return ev.Name, true
}

// Watch blocks until ctx is cancelled. Handler errors are logged and do
// not stop the watch.
func (w Watcher) Watch(ctx context.Context, h Handler) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.Dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.Dir, err)
	}
	log := logger.WithComponent("watcher").With("dir", w.Dir)
	log.Info("watching folder")

	settle := w.Settle
	if settle <= 0 {
		settle = 200 * time.Millisecond
	}
	pending := make(map[string]time.Time)
	tick := time.NewTicker(settle / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("watcher stopping")
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if path, ok := documentPath(ev); ok {
				pending[path] = time.Now()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", "error", err)
		case now := <-tick.C:
			for path, seen := range pending {
				if now.Sub(seen) < settle {
					continue
				}
				delete(pending, path)
				data, err := os.ReadFile(path)
				if err != nil {
					log.Warn("skipping unreadable document", "name", path, "error", err)
					continue
				}
				doc := Document{Name: filepath.Base(path), Text: string(data)}
				if err := h(ctx, doc); err != nil {
					log.Warn("document handler failed", "name", doc.Name, "error", err)
				}
			}
		}
	}
}
