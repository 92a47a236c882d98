// Package server serves built files from the output directory.
// When no index.html has been built yet the embedded skeleton from the
// root-level webui package is served instead.
package server

import (
	"bytes"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	gzip "github.com/klauspost/compress/gzip"

	"github.com/vesaa/sitepack/webui"
)

const clientTag = `<script src="` + clientPath + `"></script>`

// RegisterStaticFiles mounts the output directory on the Gin engine.
// Routes registered before this take precedence.
func (s *Server) RegisterStaticFiles(r *gin.Engine) {
	skeleton, err := fs.Sub(webui.FS, "web")
	if err != nil {
		panic("embed: web sub-fs failed: " + err.Error())
	}

	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusMethodNotAllowed)
			return
		}
		name := strings.TrimPrefix(path.Clean("/"+c.Request.URL.Path), "/")
		if name == "" {
			name = "index.html"
		}

		full := filepath.Join(s.OutDir(), filepath.FromSlash(name))
		if fi, err := os.Stat(full); err == nil && fi.IsDir() {
			full = filepath.Join(full, "index.html")
			name = path.Join(name, "index.html")
		}
		if fileExists(full) {
			s.serveFile(c, full)
			return
		}

		if name == "index.html" {
			if data, err := fs.ReadFile(skeleton, name); err == nil {
				s.serveHTML(c, data)
				return
			}
		}
		c.String(http.StatusNotFound, "not found: /%s (run 'sitepack build')", name)
	})
}

func (s *Server) serveFile(c *gin.Context, full string) {
	ext := strings.ToLower(filepath.Ext(full))
	if ext == ".html" || ext == ".htm" {
		data, err := os.ReadFile(full)
		if err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		s.serveHTML(c, data)
		return
	}

	c.Header("Cache-Control", "no-cache")
	if acceptsGzip(c) && fileExists(full+".gz") {
		data, err := os.ReadFile(full + ".gz")
		if err == nil {
			ctype := mime.TypeByExtension(ext)
			if ctype == "" {
				ctype = "application/octet-stream"
			}
			c.Header("Content-Encoding", "gzip")
			c.Header("Vary", "Accept-Encoding")
			c.Data(http.StatusOK, ctype, data)
			return
		}
	}
	c.File(full)
}

// serveHTML writes an HTML page, with the live-reload client when inline
// mode is on.
func (s *Server) serveHTML(c *gin.Context, data []byte) {
	if s.opts.Inline {
		data = InjectClient(data)
	}
	c.Header("Cache-Control", "no-cache")
	if !acceptsGzip(c) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", data)
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Header("Content-Encoding", "gzip")
	c.Header("Vary", "Accept-Encoding")
	c.Status(http.StatusOK)
	zw := gzip.NewWriter(c.Writer)
	if _, err := zw.Write(data); err != nil {
		s.log.Debug().Err(err).Msg("[http] write")
	}
	zw.Close()
}

// InjectClient inserts the reload client before the last </body>, or appends
// it when the page has none. Pages that already load it are left alone.
func InjectClient(html []byte) []byte {
	if bytes.Contains(html, []byte(clientPath)) {
		return html
	}
	i := bytes.LastIndex(bytes.ToLower(html), []byte("</body>"))
	if i < 0 {
		return append(append([]byte{}, html...), []byte(clientTag+"\n")...)
	}
	out := make([]byte, 0, len(html)+len(clientTag))
	out = append(out, html[:i]...)
	out = append(out, clientTag...)
	out = append(out, html[i:]...)
	return out
}

func acceptsGzip(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept-Encoding"), "gzip")
}
