package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloo-solutions/vaultmail/internal/domain"
	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T) (*Watcher, string) {
	t.Helper()
	root := t.TempDir()
	w, err := NewWatcher(root)
	require.NoError(t, err)
	t.Cleanup(func() { w.fsw.Close() })
	return w, root
}

func drainOne(t *testing.T, w *Watcher) domain.Change {
	t.Helper()
	select {
	case change := <-w.changes:
		return change
	default:
		t.Fatal("expected a change notification")
		return domain.Change{}
	}
}

func TestWatcher_EventMapping(t *testing.T) {
	ctx := context.Background()
	w, root := newTestWatcher(t)

	note := filepath.Join(root, "note.md")

	tests := []struct {
		name  string
		event fsnotify.Event
		want  domain.ChangeType
	}{
		{"create", fsnotify.Event{Name: note, Op: fsnotify.Create}, domain.ChangeCreated},
		{"write", fsnotify.Event{Name: note, Op: fsnotify.Write}, domain.ChangeModified},
		{"remove", fsnotify.Event{Name: note, Op: fsnotify.Remove}, domain.ChangeDeleted},
		{"rename", fsnotify.Event{Name: note, Op: fsnotify.Rename}, domain.ChangeDeleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w.handle(ctx, tt.event)
			change := drainOne(t, w)
			assert.Equal(t, tt.want, change.Type)
			assert.Equal(t, note, change.Path)
		})
	}
}

func TestWatcher_IgnoresNonMarkdownAndHidden(t *testing.T) {
	ctx := context.Background()
	w, root := newTestWatcher(t)

	events := []fsnotify.Event{
		{Name: filepath.Join(root, "image.png"), Op: fsnotify.Write},
		{Name: filepath.Join(root, ".hidden.md"), Op: fsnotify.Create},
		{Name: filepath.Join(root, "note.md"), Op: fsnotify.Chmod},
	}

	for _, event := range events {
		w.handle(ctx, event)
	}

	select {
	case change := <-w.changes:
		t.Fatalf("unexpected change emitted: %v", change)
	default:
	}
}

func TestWatcher_NewDirectoryJoinsWatchSet(t *testing.T) {
	ctx := context.Background()
	w, root := newTestWatcher(t)

	sub := filepath.Join(root, "projects")
	require.NoError(t, os.Mkdir(sub, 0o755))

	w.handle(ctx, fsnotify.Event{Name: sub, Op: fsnotify.Create})

	// Directory creation itself emits nothing.
	select {
	case change := <-w.changes:
		t.Fatalf("unexpected change emitted: %v", change)
	default:
	}

	assert.Contains(t, w.fsw.WatchList(), sub)
}
