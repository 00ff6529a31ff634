package httputil

import "net/http"

// CapturingResponseWriter remembers status code and number of bytes written
// so that they can be logged after the request is handled
type CapturingResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Size       int64
}

func NewCapturingResponseWriter(w http.ResponseWriter) *CapturingResponseWriter {
	return &CapturingResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

func (w *CapturingResponseWriter) WriteHeader(statusCode int) {
	w.StatusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *CapturingResponseWriter) Write(d []byte) (int, error) {
	n, err := w.ResponseWriter.Write(d)
	w.Size += int64(n)
	return n, err
}

// Unwrap allows http.ResponseController to reach the underlying writer
func (w *CapturingResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
