// Package staticfiles is a built-in pipeline handler that serves files from
// a document root. Requests whose path matches no allow pattern or no file
// pass through untouched so the rest of the chain (or the miss policy) can
// take over.
package staticfiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/modserve/modserve/pkg/httpmsg"
	"github.com/modserve/modserve/pkg/module"
	"github.com/modserve/modserve/pkg/modules"
	"github.com/modserve/modserve/pkg/reqctx"
)

// ModuleName is the catalog name of this handler.
const ModuleName = "static"

func init() {
	modules.RegisterHandler(ModuleName, func(conf module.Conf) (module.Handler, error) {
		return New(conf)
	})
}

// ErrNoRoot is returned when the configuration names no document root.
var ErrNoRoot = errors.New("staticfiles: no root configured")

// Config is the module configuration.
type Config struct {
	// Root is the document root directory.
	Root string `json:"root"`

	// Patterns are doublestar globs a request path must match, relative
	// to the root (ex: "**/*.html"). Empty means everything is eligible.
	Patterns []string `json:"patterns"`

	// Index is served for directory paths. Default "index.html".
	Index string `json:"index"`
}

// Handler serves files for GET and HEAD requests. HEAD gets the same body
// as GET; the core stays semantics-light and serializes what handlers set.
type Handler struct {
	cfg Config
}

// New builds the handler from its module configuration.
func New(conf module.Conf) (*Handler, error) {
	var cfg Config
	if data := conf.Read(); len(data) > 0 {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("staticfiles: conf: %w", err)
		}
	}
	if cfg.Root == "" {
		return nil, ErrNoRoot
	}
	if cfg.Index == "" {
		cfg.Index = "index.html"
	}
	for _, p := range cfg.Patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("staticfiles: invalid pattern %q", p)
		}
	}
	return &Handler{cfg: cfg}, nil
}

// Handle implements module.Handler.
func (h *Handler) Handle(req *httpmsg.Request, resp *httpmsg.Response, _ *reqctx.Bag, log module.Logger) error {
	if req.Method != httpmsg.MethodGet && req.Method != httpmsg.MethodHead {
		return nil
	}

	rel := strings.TrimPrefix(path.Clean("/"+req.Path), "/")
	if rel == "" || strings.HasSuffix(req.Path, "/") {
		rel = path.Join(rel, h.cfg.Index)
	}
	if !h.allowed(rel) {
		return nil
	}

	full := filepath.Join(h.cfg.Root, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		// Not served here; later handlers may still resolve it.
		return nil
	}

	data, err := os.ReadFile(full)
	if err != nil {
		log.Log("static read failed: " + err.Error())
		resp.Status = 500
		return nil
	}

	ctype := mime.TypeByExtension(filepath.Ext(full))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	resp.SetHeader("Content-Type", ctype)
	resp.Body = data
	log.Log(fmt.Sprintf("static served %s (%d bytes)", rel, len(data)))
	return nil
}

// allowed reports whether rel matches the configured patterns.
func (h *Handler) allowed(rel string) bool {
	if len(h.cfg.Patterns) == 0 {
		return true
	}
	for _, p := range h.cfg.Patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}
