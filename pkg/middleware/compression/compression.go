// Package compression encodes API responses with Brotli or gzip, as
// negotiated through Accept-Encoding.
package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/nimburion/storefront/pkg/server/router"
)

const (
	encodingBrotli = "br"
	encodingGzip   = "gzip"
)

// Config controls response compression.
type Config struct {
	Enabled     bool
	GzipLevel   int
	BrotliLevel int
	// MinSize is the body size below which responses are sent as is.
	MinSize int
	// ContentTypes lists the compressible media type prefixes.
	ContentTypes []string
	// ExcludedPathPrefixes are never compressed, e.g. streaming endpoints.
	ExcludedPathPrefixes []string
}

// DefaultConfig compresses JSON and plain text bodies of at least 1 KiB.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		GzipLevel:    gzip.DefaultCompression,
		BrotliLevel:  4,
		MinSize:      1024,
		ContentTypes: []string{"application/json", "text/plain", "application/problem+json"},
	}
}

// Middleware compresses eligible responses. The decision is taken once
// MinSize bytes are buffered or the handler returns, so small bodies and
// bodies that already carry a Content-Encoding pass through untouched.
func Middleware(cfg Config) router.MiddlewareFunc {
	def := DefaultConfig()
	if cfg.GzipLevel == 0 {
		cfg.GzipLevel = def.GzipLevel
	}
	if cfg.BrotliLevel <= 0 {
		cfg.BrotliLevel = def.BrotliLevel
	}
	if cfg.MinSize < 0 {
		cfg.MinSize = 0
	}
	if len(cfg.ContentTypes) == 0 {
		cfg.ContentTypes = def.ContentTypes
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			req := c.Request()
			if !cfg.Enabled || req == nil || req.Method == http.MethodHead || excluded(req.URL.Path, cfg.ExcludedPathPrefixes) {
				return next(c)
			}
			encoding := negotiate(req.Header.Get("Accept-Encoding"))
			if encoding == "" {
				return next(c)
			}
			addVary(c.Response().Header(), "Accept-Encoding")

			w := &responseWriter{base: c.Response(), encoding: encoding, cfg: cfg}
			c.SetResponse(w)
			err := next(c)
			if closeErr := w.Close(); err == nil {
				err = closeErr
			}
			c.SetResponse(w.base)
			return err
		}
	}
}

func excluded(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// negotiate prefers Brotli, then gzip, honouring q values and "*".
func negotiate(header string) string {
	if header == "" {
		return ""
	}
	weights := map[string]float64{}
	for _, part := range strings.Split(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		q := 1.0
		if v, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				q = parsed
			}
		}
		weights[name] = q
	}
	weight := func(enc string) float64 {
		if q, ok := weights[enc]; ok {
			return q
		}
		return weights["*"]
	}
	br, gz := weight(encodingBrotli), weight(encodingGzip)
	switch {
	case br > 0 && br >= gz:
		return encodingBrotli
	case gz > 0:
		return encodingGzip
	default:
		return ""
	}
}

type responseWriter struct {
	base     router.ResponseWriter
	encoding string
	cfg      Config

	status  int
	decided bool
	encoder io.WriteCloser
	pending bytes.Buffer
}

func (w *responseWriter) Header() http.Header { return w.base.Header() }

func (w *responseWriter) WriteHeader(code int) {
	if w.status != 0 {
		return
	}
	w.status = code
	if !bodyAllowed(code) {
		w.decided = true
		w.base.WriteHeader(code)
	}
}

func (w *responseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	if !w.decided {
		w.pending.Write(p)
		if w.pending.Len() < w.cfg.MinSize {
			return len(p), nil
		}
		if err := w.decide(); err != nil {
			return 0, err
		}
		return len(p), nil
	}
	if w.encoder != nil {
		return w.encoder.Write(p)
	}
	return w.base.Write(p)
}

// decide picks plain or encoded output and flushes what was buffered.
func (w *responseWriter) decide() error {
	w.decided = true
	h := w.Header()
	compress := w.pending.Len() >= w.cfg.MinSize &&
		h.Get("Content-Encoding") == "" &&
		compressible(h.Get("Content-Type"), w.cfg.ContentTypes)

	if compress {
		h.Del("Content-Length")
		h.Set("Content-Encoding", w.encoding)
		switch w.encoding {
		case encodingBrotli:
			w.encoder = brotli.NewWriterLevel(w.base, w.cfg.BrotliLevel)
		default:
			gz, err := gzip.NewWriterLevel(w.base, w.cfg.GzipLevel)
			if err != nil {
				return fmt.Errorf("create gzip writer: %w", err)
			}
			w.encoder = gz
		}
	}
	if !w.base.Written() {
		w.base.WriteHeader(w.statusOrOK())
	}
	if w.pending.Len() == 0 {
		return nil
	}
	out := io.Writer(w.base)
	if w.encoder != nil {
		out = w.encoder
	}
	_, err := out.Write(w.pending.Bytes())
	w.pending.Reset()
	return err
}

// Close flushes a body shorter than MinSize and terminates the encoding.
func (w *responseWriter) Close() error {
	if !w.decided {
		if w.status == 0 && w.pending.Len() == 0 {
			return nil
		}
		if err := w.decide(); err != nil {
			return err
		}
	}
	if w.encoder != nil {
		return w.encoder.Close()
	}
	return nil
}

func (w *responseWriter) Flush() {
	if !w.decided {
		_ = w.decide()
	}
	if f, ok := w.encoder.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
	if f, ok := w.base.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *responseWriter) Status() int {
	if w.base.Written() {
		return w.base.Status()
	}
	return w.statusOrOK()
}

func (w *responseWriter) Written() bool {
	return w.status != 0 || w.base.Written()
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *responseWriter) Unwrap() http.ResponseWriter { return w.base }

func (w *responseWriter) statusOrOK() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func bodyAllowed(code int) bool {
	return code >= 200 && code != http.StatusNoContent && code != http.StatusNotModified
}

func compressible(contentType string, allowed []string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" {
		return false
	}
	for _, prefix := range allowed {
		if strings.HasPrefix(ct, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

func addVary(h http.Header, value string) {
	for _, v := range h.Values("Vary") {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), value) {
				return
			}
		}
	}
	h.Add("Vary", value)
}
