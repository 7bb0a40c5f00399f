package router

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"context-teleporter/backend/pkg/di"
	"context-teleporter/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// sessionKey holds whether the request carries a valid session after the
// refresh step.
const sessionKey = "hasSession"

// sessionRefresh keeps browser sessions alive on every request. A refreshed
// token is visible to the handlers of the same request.
func sessionRefresh(container *di.Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(sessionKey, container.Sessions.Refresh(c.Writer, c.Request))
		c.Next()
	}
}

// setupGateway guards the web UI pages and serves them.
func (r *Router) setupGateway() {
	r.Engine.NoRoute(r.pages())
}

func (r *Router) pages() gin.HandlerFunc {
	cfg := r.Config.Session
	staticDir := r.Config.Server.StaticDir

	return func(c *gin.Context) {
		p := c.Request.URL.Path
		if p == "/api" || strings.HasPrefix(p, "/api/") {
			c.Error(errors.NewNotFoundError("Not found"))
			return
		}
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Error(errors.NewNotFoundError("Not found"))
			return
		}

		hasSession := c.GetBool(sessionKey)
		switch {
		case !hasSession && isProtected(p, cfg.ProtectedPrefixes):
			c.Redirect(http.StatusFound, cfg.LoginPath)
			return
		case hasSession && p == cfg.LoginPath:
			c.Redirect(http.StatusFound, cfg.HomePath)
			return
		}

		if staticDir != "" {
			if file, ok := resolveStatic(staticDir, p); ok {
				c.File(file)
				return
			}
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(placeholderPage))
	}
}

// isProtected matches whole path segments: "/dashboard" protects
// "/dashboard" and "/dashboard/x" but not "/dashboards".
func isProtected(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if p == prefix || strings.HasPrefix(p, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}

// resolveStatic maps a URL path into dir, falling back to the single-page
// app's index.html.
func resolveStatic(dir, urlPath string) (string, bool) {
	clean := path.Clean("/" + urlPath)
	candidates := []string{
		filepath.Join(dir, filepath.FromSlash(clean)),
		filepath.Join(dir, filepath.FromSlash(clean), "index.html"),
		filepath.Join(dir, filepath.FromSlash(clean)+".html"),
		filepath.Join(dir, "index.html"),
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

const placeholderPage = `<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>Context Teleporter</title></head>
<body>
<h1>Context Teleporter</h1>
<p>The web UI is not bundled with this server. Set STATIC_DIR to serve it.</p>
</body>
</html>
`
