/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the upload page

ROUTE GROUPS:
  /api/runs/*           Report runs, downloads and previews
  /api/health           Liveness
  /                     Index page listing the endpoints

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			ExposedHeaders:   []string{"Content-Disposition"},
			AllowCredentials: false,
		}))
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.ListRuns)
			r.Post("/upload", h.UploadRun)
			r.Post("/folder", h.FolderRun)
			r.Get("/{id}", h.GetRun)
			r.Get("/{id}/report", h.DownloadReport)
			r.Get("/{id}/preview/{sheet}", h.PreviewSheet)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(indexPage))
	})

	return r
}

const indexPage = `<!DOCTYPE html>
<html>
<head><title>Authorization Report</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Authorization Report</h1>
<form action="/api/runs/upload" method="post" enctype="multipart/form-data">
<p>Upload a zip of the CKH, KKH, MUC 30, SMS and SCM010 extracts:</p>
<input type="file" name="file" accept=".zip">
<button type="submit">Run</button>
</form>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/runs">/api/runs</a> - Run history</li>
<li><a href="/api/health">/api/health</a> - Health</li>
</ul>
</body>
</html>`
