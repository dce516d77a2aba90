package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // Minimum response size to compress (bytes)
	CompressionLevel int      // Gzip compression level (1-9, 9 is best compression)
	ContentTypes     []string // Content types to compress
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024, // Compress responses >= 1KB
		CompressionLevel: 6,    // Balanced compression level
		ContentTypes: []string{
			"application/json",
			"text/plain",
			"text/html",
			"text/css",
			"application/javascript",
			"application/xml",
			"text/xml",
		},
	}
}

// CompressionMiddleware provides gzip compression for HTTP responses
type CompressionMiddleware struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool // Pool of gzip writers
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	if config.CompressionLevel < gzip.BestSpeed || config.CompressionLevel > gzip.BestCompression {
		config.CompressionLevel = gzip.DefaultCompression
	}
	if config.MinSize < 0 {
		config.MinSize = 0
	}

	cm := &CompressionMiddleware{
		config: config,
		stats:  NewCompressionStats(),
	}
	cm.pool.New = func() interface{} {
		gz, _ := gzip.NewWriterLevel(io.Discard, cm.config.CompressionLevel)
		return gz
	}
	return cm
}

// Handler returns a Gin middleware that gzips eligible responses. Bodies are
// buffered until MinSize so small payloads go out uncompressed.
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cm.clientAcceptsGzip(c.Request) ||
			c.Request.Method == http.MethodHead ||
			c.GetHeader("Upgrade") != "" {
			c.Next()
			return
		}

		gzw := &gzipResponseWriter{ResponseWriter: c.Writer, cm: cm}
		c.Writer = gzw

		defer func() {
			original, sent, compressed := gzw.finish()
			cm.stats.RecordRequest(original, sent, compressed)
		}()

		c.Next()
	}
}

// clientAcceptsGzip checks if the client accepts gzip compression
func (cm *CompressionMiddleware) clientAcceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

// shouldCompress checks if the content type should be compressed
func (cm *CompressionMiddleware) shouldCompress(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.Contains(contentType, ct) {
			return true
		}
	}
	return false
}

func (cm *CompressionMiddleware) getGzipWriter(w io.Writer) *gzip.Writer {
	gz := cm.pool.Get().(*gzip.Writer)
	gz.Reset(w)
	return gz
}

func (cm *CompressionMiddleware) returnGzipWriter(gz *gzip.Writer) {
	cm.pool.Put(gz)
}

// countingWriter measures bytes reaching the wire under the gzip writer
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// gzipResponseWriter wraps a gin.ResponseWriter. It buffers the body until
// MinSize is reached, then either starts a gzip stream or flushes plain bytes,
// depending on the response content type.
type gzipResponseWriter struct {
	gin.ResponseWriter
	cm       *CompressionMiddleware
	buf      bytes.Buffer
	counter  *countingWriter
	gz       *gzip.Writer
	decided  bool
	original int64
}

// Write buffers or forwards response bytes
func (gzw *gzipResponseWriter) Write(data []byte) (int, error) {
	gzw.original += int64(len(data))

	if !gzw.decided {
		gzw.buf.Write(data)
		if gzw.buf.Len() >= gzw.cm.config.MinSize {
			if err := gzw.decide(); err != nil {
				return 0, err
			}
		}
		return len(data), nil
	}

	if gzw.gz != nil {
		return gzw.gz.Write(data)
	}
	return gzw.ResponseWriter.Write(data)
}

// WriteString routes string writes through Write so they are compressed too
func (gzw *gzipResponseWriter) WriteString(s string) (int, error) {
	return gzw.Write([]byte(s))
}

// decide commits to compressed or plain output and drains the buffer. Headers
// can still be changed here because gin defers the header flush until the
// first underlying write.
func (gzw *gzipResponseWriter) decide() error {
	gzw.decided = true

	if gzw.cm.shouldCompress(gzw.Header().Get("Content-Type")) {
		gzw.Header().Set("Content-Encoding", "gzip")
		gzw.Header().Add("Vary", "Accept-Encoding")
		gzw.Header().Del("Content-Length")

		gzw.counter = &countingWriter{w: gzw.ResponseWriter}
		gzw.gz = gzw.cm.getGzipWriter(gzw.counter)

		if gzw.buf.Len() > 0 {
			if _, err := gzw.gz.Write(gzw.buf.Bytes()); err != nil {
				return err
			}
		}
		gzw.buf.Reset()
		return nil
	}

	if gzw.buf.Len() > 0 {
		if _, err := gzw.ResponseWriter.Write(gzw.buf.Bytes()); err != nil {
			return err
		}
	}
	gzw.buf.Reset()
	return nil
}

// Flush forces a compression decision and flushes both writers
func (gzw *gzipResponseWriter) Flush() {
	if !gzw.decided {
		if err := gzw.decide(); err != nil {
			return
		}
	}
	if gzw.gz != nil {
		gzw.gz.Flush()
	}
	gzw.ResponseWriter.Flush()
}

// finish completes the response and reports sizes for the stats counters
func (gzw *gzipResponseWriter) finish() (original, sent int64, compressed bool) {
	if !gzw.decided {
		// Body stayed under MinSize, send it plain
		if gzw.buf.Len() > 0 {
			gzw.ResponseWriter.Write(gzw.buf.Bytes())
			gzw.buf.Reset()
		}
		return gzw.original, gzw.original, false
	}

	if gzw.gz != nil {
		gzw.gz.Close()
		gzw.cm.returnGzipWriter(gzw.gz)
		return gzw.original, gzw.counter.n, true
	}

	return gzw.original, gzw.original, false
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalRequests      int64
	CompressedRequests int64
	TotalBytes         int64
	SentBytes          int64
	mutex              sync.RWMutex
}

// NewCompressionStats creates new compression statistics
func NewCompressionStats() *CompressionStats {
	return &CompressionStats{}
}

// RecordRequest records a response's original and on-the-wire sizes
func (cs *CompressionStats) RecordRequest(originalSize, sentSize int64, compressed bool) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.TotalRequests++
	cs.TotalBytes += originalSize
	cs.SentBytes += sentSize

	if compressed {
		cs.CompressedRequests++
	}
}

// GetStats returns current compression statistics
func (cs *CompressionStats) GetStats() map[string]interface{} {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	compressionRatio := float64(0)
	if cs.TotalBytes > 0 {
		compressionRatio = float64(cs.SentBytes) / float64(cs.TotalBytes)
	}

	return map[string]interface{}{
		"total_requests":      cs.TotalRequests,
		"compressed_requests": cs.CompressedRequests,
		"total_bytes":         cs.TotalBytes,
		"sent_bytes":          cs.SentBytes,
		"compression_ratio":   compressionRatio,
		"compression_savings": 1.0 - compressionRatio,
	}
}

// GetStats returns compression statistics
func (cm *CompressionMiddleware) GetStats() map[string]interface{} {
	return cm.stats.GetStats()
}
