package middleware

import (
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// brotliWriter wraps a ResponseWriter, transparently brotli-encoding
// everything written to it.
type brotliWriter struct {
	http.ResponseWriter
	bw *brotli.Writer
}

func (w *brotliWriter) Write(p []byte) (int, error) {
	return w.bw.Write(p)
}

// Brotli encodes admin JSON responses with brotli when the client
// advertises "br" support, as an alternate encoding to the gzip/deflate the
// global compression middleware already provides for the rest of the API.
func Brotli() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.Contains(r.Header.Get("Accept-Encoding"), "br") {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Encoding", "br")
			w.Header().Add("Vary", "Accept-Encoding")
			bw := brotli.NewWriterLevel(w, brotli.DefaultCompression)
			defer bw.Close()

			next.ServeHTTP(&brotliWriter{ResponseWriter: w, bw: bw}, r)
		})
	}
}
