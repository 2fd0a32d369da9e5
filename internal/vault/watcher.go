package vault

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloo-solutions/vaultmail/internal/domain"
	"github.com/fsnotify/fsnotify"
)

// Watcher subscribes to filesystem notifications under the vault root and
// emits change notifications for markdown files. fsnotify reports a rename
// as a Rename on the old path plus a Create on the new one, so renames
// surface as delete+create; the synchronizer's contract is unaffected.
type Watcher struct {
	root    string
	fsw     *fsnotify.Watcher
	changes chan domain.Change
}

// NewWatcher creates a recursive watcher over the vault root.
func NewWatcher(root string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:    root,
		fsw:     fsw,
		changes: make(chan domain.Change, 64),
	}

	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}

	return w, nil
}

// Changes returns the channel of emitted change notifications.
func (w *Watcher) Changes() <-chan domain.Change {
	return w.changes
}

// Run pumps fsnotify events until the context is cancelled. The changes
// channel is closed on return.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.changes)
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("watcher: %v", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if isHidden(name) {
		return
	}

	// New directories must join the watch set before their contents settle.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				log.Printf("watcher: add %s: %v", event.Name, err)
			}
			return
		}
	}

	if !isMarkdown(name) {
		return
	}

	var change domain.Change
	switch {
	case event.Op.Has(fsnotify.Create):
		change = domain.Change{Type: domain.ChangeCreated, Path: event.Name}
	case event.Op.Has(fsnotify.Write):
		change = domain.Change{Type: domain.ChangeModified, Path: event.Name}
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		change = domain.Change{Type: domain.ChangeDeleted, Path: event.Name}
	default:
		return
	}

	select {
	case w.changes <- change:
	case <-ctx.Done():
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}
