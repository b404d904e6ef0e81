package livereload_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HMasataka/clientserve/internal/livereload"
	mock_livereload "github.com/HMasataka/clientserve/internal/livereload/mock"
	"github.com/HMasataka/clientserve/pkg/static"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestWatcher_Poll(t *testing.T) {
	t.Run("変更がなければ通知しない", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		notifier := mock_livereload.NewMockNotifier(ctrl)
		root := t.TempDir()
		writeFile(t, root, "a.js", "a")

		w := livereload.NewWatcher(newScanner(t, static.Mount{Prefix: "/", Dir: root}), notifier, livereload.WatcherOptions{Interval: time.Hour})

		require.NoError(t, w.Poll(context.Background()))
		require.NoError(t, w.Poll(context.Background()))
		assert.Zero(t, w.Pending())
	})

	t.Run("debounceなしは即時通知", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		notifier := mock_livereload.NewMockNotifier(ctrl)
		root := t.TempDir()

		w := livereload.NewWatcher(newScanner(t, static.Mount{Prefix: "/", Dir: root}), notifier, livereload.WatcherOptions{Interval: time.Hour})
		require.NoError(t, w.Poll(context.Background()))

		writeFile(t, root, "new.js", "new")
		notifier.EXPECT().
			Notify(gomock.Any(), []livereload.Change{{Path: "/new.js", Op: livereload.Created}}).
			Times(1)

		require.NoError(t, w.Poll(context.Background()))
		assert.Zero(t, w.Pending())
	})

	t.Run("連続した変更はまとめて通知", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		notifier := mock_livereload.NewMockNotifier(ctrl)
		root := t.TempDir()

		w := livereload.NewWatcher(newScanner(t, static.Mount{Prefix: "/", Dir: root}), notifier, livereload.WatcherOptions{
			Interval: time.Hour,
			Debounce: 200 * time.Millisecond,
		})
		require.NoError(t, w.Poll(context.Background()))

		got := make(chan []livereload.Change, 1)
		notifier.EXPECT().
			Notify(gomock.Any(), gomock.Any()).
			Do(func(_ context.Context, changes []livereload.Change) {
				got <- changes
			}).
			Times(1)

		writeFile(t, root, "a.js", "a")
		require.NoError(t, w.Poll(context.Background()))
		writeFile(t, root, "b.css", "b")
		require.NoError(t, w.Poll(context.Background()))

		select {
		case changes := <-got:
			assert.Equal(t, []livereload.Change{
				{Path: "/a.js", Op: livereload.Created},
				{Path: "/b.css", Op: livereload.Created},
			}, changes)
		case <-time.After(2 * time.Second):
			t.Fatal("notification not received")
		}
	})
}

func TestWatcher_Flush(t *testing.T) {
	t.Run("同じパスは最新のイベントだけ残る", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		notifier := mock_livereload.NewMockNotifier(ctrl)
		root := t.TempDir()

		w := livereload.NewWatcher(newScanner(t, static.Mount{Prefix: "/", Dir: root}), notifier, livereload.WatcherOptions{
			Interval: time.Hour,
			Debounce: time.Hour,
		})
		require.NoError(t, w.Poll(context.Background()))

		writeFile(t, root, "a.js", "a")
		require.NoError(t, w.Poll(context.Background()))
		writeFile(t, root, "a.js", "changed")
		touch(t, root, "a.js", time.Now().Add(time.Minute))
		require.NoError(t, w.Poll(context.Background()))
		require.NoError(t, os.Remove(filepath.Join(root, "a.js")))
		writeFile(t, root, "b.js", "b")
		require.NoError(t, w.Poll(context.Background()))
		require.Equal(t, 4, w.Pending())

		expected := []livereload.Change{
			{Path: "/a.js", Op: livereload.Removed},
			{Path: "/b.js", Op: livereload.Created},
		}
		notifier.EXPECT().Notify(gomock.Any(), expected).Times(1)

		assert.Equal(t, expected, w.Flush(context.Background()))
		assert.Zero(t, w.Pending())
	})

	t.Run("空なら通知しない", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		notifier := mock_livereload.NewMockNotifier(ctrl)

		w := livereload.NewWatcher(newScanner(t, static.Mount{Prefix: "/", Dir: t.TempDir()}), notifier, livereload.DefaultWatcherOptions())

		assert.Nil(t, w.Flush(context.Background()))
	})
}

func TestWatcher_Run(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mock_livereload.NewMockNotifier(ctrl)
	root := t.TempDir()

	got := make(chan []livereload.Change, 1)
	notifier.EXPECT().
		Notify(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, changes []livereload.Change) {
			select {
			case got <- changes:
			default:
			}
		}).
		AnyTimes()

	w := livereload.NewWatcher(newScanner(t, static.Mount{Prefix: "/", Dir: root}), notifier, livereload.WatcherOptions{
		Interval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	// Run takes its baseline before the first tick.
	time.Sleep(50 * time.Millisecond)
	writeFile(t, root, "late.js", "late")

	select {
	case changes := <-got:
		assert.Equal(t, []livereload.Change{{Path: "/late.js", Op: livereload.Created}}, changes)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not received")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
