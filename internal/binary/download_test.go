package binary

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// newTestDownloader returns a downloader whose sleeps are recorded instead
// of waited.
func newTestDownloader(delays *[]time.Duration) *Downloader {
	d := NewDownloader(nil, nil, NewMetrics(nil))
	d.sleep = func(ctx context.Context, delay time.Duration) error {
		*delays = append(*delays, delay)
		return ctx.Err()
	}
	return d
}

func TestDownloaderDownloadToFile(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantErr    bool
	}{
		{
			name:       "successful_download",
			statusCode: http.StatusOK,
			body:       "test binary content",
		},
		{
			name:       "accepted_2xx",
			statusCode: http.StatusNonAuthoritativeInfo,
			body:       "still fine",
		},
		{
			name:       "404_not_found",
			statusCode: http.StatusNotFound,
			body:       "not found",
			wantErr:    true,
		},
		{
			name:       "500_server_error",
			statusCode: http.StatusInternalServerError,
			body:       "server error",
			wantErr:    true,
		},
		{
			name:       "empty_body",
			statusCode: http.StatusOK,
			body:       "",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("User-Agent") != DefaultUserAgent {
					t.Errorf("unexpected User-Agent: %s", r.Header.Get("User-Agent"))
				}
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			var delays []time.Duration
			downloader := newTestDownloader(&delays)

			destPath := filepath.Join(t.TempDir(), "nested", "app.zip")
			err := downloader.DownloadToFile(context.Background(), server.URL, destPath)

			if tt.wantErr {
				var derr *DownloadError
				if !errors.As(err, &derr) {
					t.Fatalf("expected *DownloadError, got %v", err)
				}
				if _, err := os.Stat(destPath); !os.IsNotExist(err) {
					t.Error("destination should not exist after failure")
				}
				if _, err := os.Stat(destPath + ".tmp"); !os.IsNotExist(err) {
					t.Error("temp file should be cleaned up")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			content, err := os.ReadFile(destPath)
			if err != nil {
				t.Fatalf("failed to read downloaded file: %v", err)
			}
			if string(content) != tt.body {
				t.Errorf("content mismatch:\ngot:  %q\nwant: %q", string(content), tt.body)
			}
			if len(delays) != 0 {
				t.Errorf("expected no retries, slept %v", delays)
			}
		})
	}
}

func TestDownloaderRetryLogic(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("success"))
	}))
	defer server.Close()

	var delays []time.Duration
	downloader := newTestDownloader(&delays)

	destPath := filepath.Join(t.TempDir(), "app.zip")
	if err := downloader.DownloadToFile(context.Background(), server.URL, destPath); err != nil {
		t.Fatalf("expected success after retries, got error: %v", err)
	}

	if got := attempts.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(delays) != len(want) || delays[0] != want[0] || delays[1] != want[1] {
		t.Errorf("delays = %v, want %v", delays, want)
	}
}

func TestDownloaderExhaustsRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	var delays []time.Duration
	downloader := newTestDownloader(&delays)

	err := downloader.DownloadToFile(context.Background(), server.URL, filepath.Join(t.TempDir(), "app.zip"))

	var derr *DownloadError
	if !errors.As(err, &derr) {
		t.Fatalf("expected *DownloadError, got %v", err)
	}
	if derr.Attempts != DefaultRetries || derr.URL != server.URL {
		t.Errorf("DownloadError = %+v", derr)
	}
	if derr.Err == nil {
		t.Error("expected last error to be recorded")
	}
	if got := attempts.Load(); got != DefaultRetries {
		t.Errorf("expected %d attempts, got %d", DefaultRetries, got)
	}
	// No sleep after the final attempt.
	if len(delays) != DefaultRetries-1 {
		t.Errorf("expected %d sleeps, got %v", DefaultRetries-1, delays)
	}
}

func TestBackoffDelay(t *testing.T) {
	d := NewDownloader(nil, nil, nil)

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}
	prev := time.Duration(0)
	for i, w := range want {
		got := d.backoffDelay(i + 1)
		if got != w {
			t.Errorf("backoffDelay(%d) = %v, want %v", i+1, got, w)
		}
		if got < prev {
			t.Errorf("backoffDelay(%d) = %v decreased from %v", i+1, got, prev)
		}
		if got > defaultMaxDelay {
			t.Errorf("backoffDelay(%d) = %v exceeds cap", i+1, got)
		}
		prev = got
	}
}

func TestDownloaderContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	downloader := NewDownloader(nil, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := downloader.DownloadToFile(ctx, server.URL, filepath.Join(t.TempDir(), "app.zip"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context deadline error, got: %v", err)
	}
}

func TestDownloaderRedirectHandling(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("redirected content"))
	}))
	defer final.Close()

	redirect := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL, http.StatusFound)
	}))
	defer redirect.Close()

	destPath := filepath.Join(t.TempDir(), "app.zip")
	if err := NewDownloader(nil, nil, nil).DownloadToFile(context.Background(), redirect.URL, destPath); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, _ := os.ReadFile(destPath)
	if string(content) != "redirected content" {
		t.Errorf("unexpected content: %s", content)
	}
}

func TestLatestVersion(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
	}{
		{name: "v_prefixed_tag", status: http.StatusOK, body: `{"tag_name":"v0.40.0","name":"0.40.0"}`, want: "0.40.0"},
		{name: "bare_tag", status: http.StatusOK, body: `{"tag_name":"0.39.5"}`, want: "0.39.5"},
		{name: "missing_tag", status: http.StatusOK, body: `{"name":"x"}`, wantErr: true},
		{name: "invalid_json", status: http.StatusOK, body: `not json`, wantErr: true},
		{name: "rate_limited", status: http.StatusForbidden, body: `{}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			got, err := NewDownloader(nil, nil, nil).LatestVersion(context.Background(), server.URL)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got version %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("LatestVersion = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveVersion(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tag_name":"0.41.0"}`))
	}))
	defer up.Close()

	d := NewDownloader(nil, nil, nil)
	ctx := context.Background()

	if got := d.resolveVersion(ctx, "0.30.0", up.URL, "9.9.9"); got != "0.30.0" {
		t.Errorf("pinned: got %q", got)
	}
	if got := d.resolveVersion(ctx, "", up.URL, "9.9.9"); got != "0.41.0" {
		t.Errorf("latest: got %q", got)
	}
	if got := d.resolveVersion(ctx, "", down.URL, "9.9.9"); got != "9.9.9" {
		t.Errorf("fallback: got %q", got)
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()

	nonEmpty := filepath.Join(dir, "file")
	if err := os.WriteFile(nonEmpty, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{nonEmpty, true},
		{empty, false},
		{dir, false},
		{filepath.Join(dir, "missing"), false},
	}
	for _, tt := range tests {
		if got := fileExists(tt.path); got != tt.want {
			t.Errorf("fileExists(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
