package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNilProvider(t *testing.T) {
	var p *Provider
	if got := p.GetCountryCode("8.8.8.8"); got != "" {
		t.Errorf("GetCountryCode = %q, want empty", got)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}

func TestParseIP(t *testing.T) {
	tests := map[string]string{
		"203.0.113.9":       "203.0.113.9",
		"203.0.113.9:27015": "203.0.113.9",
		"[2001:db8::1]:80":  "2001:db8::1",
		"not-an-ip":         "<nil>",
	}
	for in, want := range tests {
		if got := parseIP(in).String(); got != want {
			t.Errorf("parseIP(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestEnsureDBDownloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("mmdb"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "GeoLite2-Country.mmdb")
	if err := EnsureDB(context.Background(), path, srv.URL, time.Hour); err != nil {
		t.Fatalf("EnsureDB: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil || string(data) != "mmdb" {
		t.Errorf("file = %q, %v", data, err)
	}
}

func TestEnsureDBFreshFileSkipsDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("unexpected download")
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "db.mmdb")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := EnsureDB(context.Background(), path, srv.URL, time.Hour); err != nil {
		t.Fatal(err)
	}
}

func TestEnsureDBBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "db.mmdb")
	if err := EnsureDB(context.Background(), path, srv.URL, time.Hour); err == nil {
		t.Fatal("EnsureDB must fail on 403")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("no file must be left behind on failure")
	}
}
