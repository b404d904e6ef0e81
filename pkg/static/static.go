package static

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

var (
	ErrRootNotFound = errors.New("static root not found")
	ErrNotDirectory = errors.New("static root is not a directory")
)

// AllowedMethods are the only methods a mount answers.
var AllowedMethods = []string{http.MethodGet, http.MethodHead}

// Mount exposes Dir under the URL path Prefix.
type Mount struct {
	Prefix string
	Dir    string
}

// Options configures a Handler
type Options struct {
	// Index is served for directory requests when set, e.g. "index.html".
	// Empty means directories are not found.
	Index string
}

type mount struct {
	Mount
	root *os.Root
}

// Handler serves files from one or more mounted directories.
type Handler struct {
	router  *mux.Router
	mounts  []*mount
	options Options
}

var _ http.Handler = (*Handler)(nil)

func NewHandler(mounts []Mount, options Options) (*Handler, error) {
	if len(mounts) == 0 {
		return nil, errors.New("no mounts configured")
	}

	h := &Handler{
		router:  mux.NewRouter(),
		options: options,
	}

	for _, m := range mounts {
		root, err := openRoot(m.Dir)
		if err != nil {
			h.Close()
			return nil, err
		}
		h.mounts = append(h.mounts, &mount{Mount: Mount{Prefix: normalizePrefix(m.Prefix), Dir: m.Dir}, root: root})
	}

	// mux matches routes in registration order, so the longest prefix goes first.
	slices.SortStableFunc(h.mounts, func(a, b *mount) int {
		return cmp.Compare(len(b.Prefix), len(a.Prefix))
	})

	for _, m := range h.mounts {
		h.router.PathPrefix(m.Prefix).Methods(AllowedMethods...).Handler(h.serveMount(m))
	}

	h.router.NotFoundHandler = http.HandlerFunc(http.NotFound)
	h.router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	return h, nil
}

func openRoot(dir string) (*os.Root, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRootNotFound, dir)
		}
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open root %s: %w", dir, err)
	}
	return root, nil
}

// normalizePrefix turns "recordings", "/recordings/" and "/recordings" into "/recordings/".
func normalizePrefix(prefix string) string {
	p := "/" + strings.Trim(prefix, "/")
	if p != "/" {
		p += "/"
	}
	return p
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Mounts returns the configured mounts ordered by prefix.
func (h *Handler) Mounts() []Mount {
	mounts := lo.Map(h.mounts, func(m *mount, _ int) Mount {
		return m.Mount
	})
	slices.SortFunc(mounts, func(a, b Mount) int {
		return cmp.Compare(a.Prefix, b.Prefix)
	})
	return mounts
}

// Close releases the directory handles held by the mounts.
func (h *Handler) Close() error {
	var errs []error
	for _, m := range h.mounts {
		if err := m.root.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Handler) serveMount(m *mount) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, ok := relativeName(m.Prefix, r.URL.Path)
		if !ok {
			http.NotFound(w, r)
			return
		}

		dirOnly := strings.HasSuffix(r.URL.Path, "/")
		f, info, err := h.open(m.root, name, dirOnly)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()

		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("ETag", ETag(info))
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}

// relativeName maps a URL path under prefix to a slash-separated name relative
// to the mount directory. "." names the directory itself.
func relativeName(prefix, urlPath string) (string, bool) {
	if !strings.HasPrefix(urlPath, prefix) && urlPath+"/" != prefix {
		return "", false
	}

	rel := strings.TrimPrefix(urlPath, strings.TrimSuffix(prefix, "/"))
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	if rel == "" {
		rel = "."
	}
	return rel, true
}

// open resolves name to a file, falling back to the index document for
// directories. With dirOnly set, as for a URL ending in "/", name must be a
// directory.
func (h *Handler) open(root *os.Root, name string, dirOnly bool) (*os.File, fs.FileInfo, error) {
	f, info, err := openFile(root, name)
	if err != nil {
		return nil, nil, err
	}
	if !info.IsDir() {
		if dirOnly {
			f.Close()
			return nil, nil, fs.ErrNotExist
		}
		return f, info, nil
	}
	f.Close()

	if h.options.Index == "" {
		return nil, nil, fs.ErrNotExist
	}

	f, info, err = openFile(root, path.Join(name, h.options.Index))
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, fs.ErrNotExist
	}
	return f, info, nil
}

func openFile(root *os.Root, name string) (*os.File, fs.FileInfo, error) {
	f, err := root.Open(name)
	if err != nil {
		return nil, nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, info, nil
}

// ETag identifies a file revision by modification time and size.
func ETag(info fs.FileInfo) string {
	return fmt.Sprintf(`"%x-%x"`, info.ModTime().UnixNano(), info.Size())
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", strings.Join(AllowedMethods, ", "))
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
