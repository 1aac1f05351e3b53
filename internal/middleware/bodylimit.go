package middleware

import (
	"net/http"
	"strconv"
)

// MaxBodyBytes caps every request body at n bytes.
//
// A request that declares a larger Content-Length is refused up front with
// 413. Bodies without a length (chunked) are wrapped in http.MaxBytesReader,
// so the JSON decoder fails once it reads past the limit.
func MaxBodyBytes(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if n <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > n {
				writeEnvelope(w, http.StatusRequestEntityTooLarge,
					"Request body must not exceed "+strconv.FormatInt(n, 10)+" bytes", "validation_error")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
