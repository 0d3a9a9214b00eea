package imgprobe

import (
	"bytes"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
)

type mapCache map[string]string

func (c mapCache) Get(key string) (string, bool) {
	v, ok := c[key]
	return v, ok
}

func (c mapCache) Set(key, value string) { c[key] = value }

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestProbe(t *testing.T) {
	body := pngBytes(t, 320, 200)
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write(body)
	}))
	defer srv.Close()

	prober := New(mapCache{})

	info, err := prober.Probe(srv.URL + "/pic.png")
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if info.Width != 320 || info.Height != 200 {
		t.Errorf("size = %dx%d, want 320x200", info.Width, info.Height)
	}
	if info.Mime != "image/png" {
		t.Errorf("Mime = %q, want %q", info.Mime, "image/png")
	}

	// Second probe hits the cache.
	if _, err := prober.Probe(srv.URL + "/pic.png"); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if requests != 1 {
		t.Errorf("requests = %d, want 1", requests)
	}
}

func TestProbe_NotAnImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not an image</html>"))
	}))
	defer srv.Close()

	if _, err := New(nil).Probe(srv.URL); err == nil {
		t.Error("Probe() error = nil, want decode failure")
	}
}

func TestProbe_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	if _, err := New(nil).Probe(srv.URL); err == nil {
		t.Error("Probe() error = nil, want status failure")
	}
}
