package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/woozymasta/vitals/internal/models"
)

func TestHTTPClientSend(t *testing.T) {
	var (
		gotPath string
		gotUA   string
		gotAuth string
		gotBody models.Heartbeat
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", "secret", time.Second)
	hb := models.Heartbeat{ServerID: "s1", Players: []string{"Alice"}, PlayerCount: 1}
	if err := c.Send(context.Background(), hb); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotPath != PathServerStatus {
		t.Errorf("path = %q", gotPath)
	}
	if !strings.HasPrefix(gotUA, "vitals-agent/") {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody.ServerID != "s1" || gotBody.PlayerCount != 1 {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestHTTPClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid server_id: \"status\"","code":"INVALID_SERVER_ID"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", time.Second)
	err := c.Join(context.Background(), models.SessionEvent{ServerID: "status", PlayerName: "Alice"})
	if err == nil || !strings.Contains(err.Error(), "INVALID_SERVER_ID") {
		t.Errorf("Join error = %v, want collector error code", err)
	}
}

func TestHTTPClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", 50*time.Millisecond)
	start := time.Now()
	if err := c.Leave(context.Background(), models.SessionEvent{ServerID: "s1", PlayerName: "Alice"}); err == nil {
		t.Fatal("Leave must time out")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %s", elapsed)
	}
}
