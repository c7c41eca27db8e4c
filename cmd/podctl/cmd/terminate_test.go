package cmd

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTerminateCommand(t *testing.T) {
	var method, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	t.Setenv("PODCTL_PROVIDER", "rest")
	t.Setenv("RUNPOD_API_KEY", "test-key")
	t.Setenv("RUNPOD_API_URL", server.URL)

	output, err := executeCommand(t, "terminate", "pod-7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != http.MethodDelete || path != "/pods/pod-7" {
		t.Errorf("expected DELETE /pods/pod-7, got %s %s", method, path)
	}
	if !strings.Contains(output, "Pod pod-7 terminated") {
		t.Errorf("expected confirmation message, got: %s", output)
	}
}

func TestTerminateCommand_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("no such pod"))
	}))
	defer server.Close()

	t.Setenv("PODCTL_PROVIDER", "rest")
	t.Setenv("RUNPOD_API_KEY", "test-key")
	t.Setenv("RUNPOD_API_URL", server.URL)

	_, err := executeCommand(t, "terminate", "pod-7")
	if err == nil || !strings.Contains(err.Error(), "failed to terminate pod") {
		t.Errorf("expected terminate error, got %v", err)
	}
}
