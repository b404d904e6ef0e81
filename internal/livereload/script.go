package livereload

import (
	_ "embed"
	"net/http"
)

//go:embed livereload.js
var clientScript []byte

// ScriptHandler serves the browser client. Pages opt in with
// <script src="/_livereload.js"></script>.
func ScriptHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		if r.Method == http.MethodHead {
			return
		}
		w.Write(clientScript)
	})
}
