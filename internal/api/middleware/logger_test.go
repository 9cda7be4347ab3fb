package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResponseWriter_CapturesStatusAndBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusTeapot)
	n, err := rw.Write([]byte("short and stout"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	if rw.statusCode != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rw.statusCode, http.StatusTeapot)
	}
	if rw.bytes != n || n != 15 {
		t.Errorf("bytes = %d (n=%d), want 15", rw.bytes, n)
	}
}

func TestResponseWriter_Flush(t *testing.T) {
	rec := httptest.NewRecorder()
	var w http.ResponseWriter = newResponseWriter(rec)

	f, ok := w.(http.Flusher)
	if !ok {
		t.Fatal("wrapper must implement http.Flusher")
	}
	f.Flush()
	if !rec.Flushed {
		t.Error("expected underlying recorder to be flushed")
	}
}

func TestLogger_PassesThrough(t *testing.T) {
	handler := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
}
