package livereload

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/HMasataka/clientserve/pkg/static"
	"github.com/gammazero/workerpool"
)

type Op int

const (
	Created Op = iota + 1
	Modified
	Removed
)

func (o Op) String() string {
	switch o {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

func (o Op) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Op) UnmarshalText(text []byte) error {
	switch string(text) {
	case "created":
		*o = Created
	case "modified":
		*o = Modified
	case "removed":
		*o = Removed
	default:
		return fmt.Errorf("unknown op %q", text)
	}
	return nil
}

// Change is a file event reported by URL path, e.g. "/js/app.js".
type Change struct {
	Path string `json:"path"`
	Op   Op     `json:"op"`
}

type fileState struct {
	size    int64
	modTime time.Time
}

type snapshot map[string]fileState

// Scanner detects file changes under a set of mounts by comparing directory
// snapshots between calls to Scan.
type Scanner struct {
	mounts []static.Mount
	pool   *workerpool.WorkerPool

	mu       sync.Mutex
	previous snapshot
}

func NewScanner(mounts []static.Mount, workers int) *Scanner {
	if workers <= 0 {
		workers = 1
	}

	return &Scanner{
		mounts: mounts,
		pool:   workerpool.New(workers),
	}
}

// Scan walks every mount and returns what changed since the last call. The
// first call records a baseline and reports nothing.
func (s *Scanner) Scan() ([]Change, error) {
	snapshots := make([]snapshot, len(s.mounts))
	errs := make([]error, len(s.mounts))

	var wg sync.WaitGroup
	for i, m := range s.mounts {
		wg.Add(1)
		s.pool.Submit(func() {
			defer wg.Done()
			snapshots[i], errs[i] = walk(m)
		})
	}
	wg.Wait()

	current := make(snapshot)
	for _, snap := range snapshots {
		for k, v := range snap {
			current[k] = v
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if s.previous == nil {
		s.previous = current
		return nil, nil
	}

	changes := diff(s.previous, current)
	s.previous = current
	return changes, nil
}

func (s *Scanner) Close() {
	s.pool.StopWait()
}

func walk(m static.Mount) (snapshot, error) {
	snap := make(snapshot)
	prefix := "/" + strings.Trim(m.Prefix, "/")

	err := filepath.WalkDir(m.Dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == m.Dir {
				return err
			}
			// removed between listing and stat
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		rel, err := filepath.Rel(m.Dir, p)
		if err != nil {
			return nil
		}

		snap[path.Join(prefix, filepath.ToSlash(rel))] = fileState{size: info.Size(), modTime: info.ModTime()}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", m.Dir, err)
	}

	return snap, nil
}

func diff(prev, cur snapshot) []Change {
	var changes []Change

	for p, st := range cur {
		old, ok := prev[p]
		switch {
		case !ok:
			changes = append(changes, Change{Path: p, Op: Created})
		case old.size != st.size || !old.modTime.Equal(st.modTime):
			changes = append(changes, Change{Path: p, Op: Modified})
		}
	}

	for p := range prev {
		if _, ok := cur[p]; !ok {
			changes = append(changes, Change{Path: p, Op: Removed})
		}
	}

	slices.SortFunc(changes, func(a, b Change) int {
		return cmp.Compare(a.Path, b.Path)
	})

	return changes
}
