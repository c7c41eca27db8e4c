package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// graphqlServer decodes each posted document and dispatches on its content.
func graphqlServer(t *testing.T, handler func(query string, variables map[string]any) (any, []map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		data, errs := handler(req.Query, req.Variables)
		resp := map[string]any{}
		if data != nil {
			resp["data"] = data
		}
		if errs != nil {
			resp["errors"] = errs
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestGraphQLCreate_Success(t *testing.T) {
	var gotInput map[string]any
	server := graphqlServer(t, func(query string, variables map[string]any) (any, []map[string]any) {
		if !strings.Contains(query, "podLaunch") {
			t.Errorf("unexpected query %q", query)
		}
		gotInput, _ = variables["in"].(map[string]any)
		return map[string]any{"podLaunch": map[string]any{"podId": "pod-gql"}}, nil
	})
	defer server.Close()

	client := NewGraphQLClient(server.URL, "test-key", 5*time.Second)
	podID, err := client.Create(context.Background(), JobRequest{
		Name:      "spec-render",
		Image:     "ghcr.io/acme/spec-render:v1",
		CloudType: "COMMUNITY",
		GPUTypeID: "NVIDIA_RTX4090",
		GPUCount:  1,
		VolumeGB:  20,
		Env:       map[string]string{"PROMPTS_NDJSON": "hi"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if podID != "pod-gql" {
		t.Errorf("expected pod-gql, got %s", podID)
	}

	// This generation takes env as a key/value pair array.
	env, ok := gotInput["env"].([]any)
	if !ok || len(env) != 1 {
		t.Fatalf("expected env pair array, got %v", gotInput["env"])
	}
	pair := env[0].(map[string]any)
	if pair["key"] != "PROMPTS_NDJSON" || pair["value"] != "hi" {
		t.Errorf("unexpected env pair %v", pair)
	}
}

func TestGraphQLCreate_RawKeyAuth(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"podLaunch": map[string]any{"podId": "pod-1"}},
		})
	}))
	defer server.Close()

	client := NewGraphQLClient(server.URL, "raw-key", 5*time.Second)
	if _, err := client.Create(context.Background(), JobRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if auth != "raw-key" {
		t.Errorf("expected raw key auth header, got %q", auth)
	}
}

func TestGraphQLCreate_AppErrors(t *testing.T) {
	server := graphqlServer(t, func(query string, variables map[string]any) (any, []map[string]any) {
		return nil, []map[string]any{
			{"message": "gpu type not available"},
			{"message": "insufficient balance"},
		}
	})
	defer server.Close()

	client := NewGraphQLClient(server.URL, "test-key", 5*time.Second)
	_, err := client.Create(context.Background(), JobRequest{})

	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if len(appErr.Messages) != 2 {
		t.Errorf("expected both error messages, got %v", appErr.Messages)
	}
	if IsRetryable(err) {
		t.Error("application errors must not be retried")
	}
}

func TestGraphQLCreate_MissingPodID(t *testing.T) {
	server := graphqlServer(t, func(query string, variables map[string]any) (any, []map[string]any) {
		return map[string]any{"podLaunch": map[string]any{}}, nil
	})
	defer server.Close()

	client := NewGraphQLClient(server.URL, "test-key", 5*time.Second)
	_, err := client.Create(context.Background(), JobRequest{})
	if !errors.Is(err, ErrMissingPodID) {
		t.Fatalf("expected ErrMissingPodID, got %v", err)
	}
}

func TestGraphQLStatus(t *testing.T) {
	server := graphqlServer(t, func(query string, variables map[string]any) (any, []map[string]any) {
		if !strings.Contains(query, "podDetails") {
			t.Errorf("unexpected query %q", query)
		}
		if variables["id"] != "pod-gql" {
			t.Errorf("expected id pod-gql, got %v", variables["id"])
		}
		return map[string]any{"podDetails": map[string]any{
			"phase":    "SUCCEEDED",
			"runtime":  120.0,
			"exitCode": 0,
		}}, nil
	})
	defer server.Close()

	client := NewGraphQLClient(server.URL, "test-key", 5*time.Second)
	status, err := client.Status(context.Background(), "pod-gql")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Phase != PhaseSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", status.Phase)
	}
	if status.ExitCode == nil || *status.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %v", status.ExitCode)
	}
}

func TestGraphQLStatus_MissingDetails(t *testing.T) {
	server := graphqlServer(t, func(query string, variables map[string]any) (any, []map[string]any) {
		return map[string]any{"podDetails": nil}, nil
	})
	defer server.Close()

	client := NewGraphQLClient(server.URL, "test-key", 5*time.Second)
	_, err := client.Status(context.Background(), "pod-gql")

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestGraphQLLogs(t *testing.T) {
	server := graphqlServer(t, func(query string, variables map[string]any) (any, []map[string]any) {
		return map[string]any{"podLogs": "render 1/30 done\n"}, nil
	})
	defer server.Close()

	client := NewGraphQLClient(server.URL, "test-key", 5*time.Second)
	logs, err := client.Logs(context.Background(), "pod-gql")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logs != "render 1/30 done\n" {
		t.Errorf("unexpected logs %q", logs)
	}
}

func TestGraphQLTerminate(t *testing.T) {
	var sawTerminate bool
	server := graphqlServer(t, func(query string, variables map[string]any) (any, []map[string]any) {
		if strings.Contains(query, "podTerminate") {
			sawTerminate = true
		}
		return map[string]any{"podTerminate": true}, nil
	})
	defer server.Close()

	client := NewGraphQLClient(server.URL, "test-key", 5*time.Second)
	if err := client.Terminate(context.Background(), "pod-gql"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sawTerminate {
		t.Error("expected podTerminate mutation")
	}
}

func TestGraphQLBalance(t *testing.T) {
	server := graphqlServer(t, func(query string, variables map[string]any) (any, []map[string]any) {
		if !strings.Contains(query, "accountBalance") {
			t.Errorf("unexpected query %q", query)
		}
		return map[string]any{"me": map[string]any{
			"id":             "user-1",
			"email":          "ops@example.com",
			"accountBalance": 12.34,
		}}, nil
	})
	defer server.Close()

	client := NewGraphQLClient(server.URL, "test-key", 5*time.Second)
	account, err := client.Balance(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.ID != "user-1" || account.Email != "ops@example.com" || account.Balance != 12.34 {
		t.Errorf("unexpected account %+v", account)
	}
}

func TestGraphQLHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	client := NewGraphQLClient(server.URL, "test-key", 5*time.Second)
	_, err := client.Status(context.Background(), "pod-gql")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != 502 || !apiErr.Retryable() {
		t.Errorf("expected retryable 502, got %d", apiErr.StatusCode)
	}
}
