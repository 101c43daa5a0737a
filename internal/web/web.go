// Package web serves the embedded board UI.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var assets embed.FS

// Handler serves /login, / and /static/*. Anything else is a 404.
func Handler() http.Handler {
	static, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	files := http.FileServer(http.FS(static))

	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", files))
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		servePage(w, r, static, "login.html")
	})
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		servePage(w, r, static, "index.html")
	})
	return mux
}

func servePage(w http.ResponseWriter, r *http.Request, static fs.FS, name string) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	page, err := fs.ReadFile(static, name)
	if err != nil {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(page)
}
