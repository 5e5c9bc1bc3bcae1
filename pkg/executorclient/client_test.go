package executorclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ExecuteSDK_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/execute/sdk", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req SDKRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "refactor the parser", req.Prompt)

		json.NewEncoder(w).Encode(SDKResult{Success: true, Result: "done", TokensUsed: 120})
	}))
	defer server.Close()

	client := New(server.URL, "test-token", 5*time.Second)
	result, err := client.ExecuteSDK(context.Background(), SDKRequest{Prompt: "refactor the parser"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 120, result.TokensUsed)
}

func TestClient_ExecuteContainer_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/execute", r.URL.Path)

		var req ContainerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "implement the migration", req.Task)

		exitCode := 0
		json.NewEncoder(w).Encode(ContainerResult{Success: true, Logs: "applied migration", ExitCode: &exitCode})
	}))
	defer server.Close()

	client := New(server.URL, "test-token", 5*time.Second)
	result, err := client.ExecuteContainer(context.Background(), ContainerRequest{Task: "implement the migration"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.ExitCode)
	assert.Equal(t, 0, *result.ExitCode)
}

func TestClient_ExecuteSDK_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer server.Close()

	client := New(server.URL, "test-token", 5*time.Second)
	_, err := client.ExecuteSDK(context.Background(), SDKRequest{Prompt: "x"})
	require.Error(t, err)
}

func TestClient_Health_Healthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(HealthStatus{Status: StatusHealthy})
	}))
	defer server.Close()

	client := New(server.URL, "", 5*time.Second)
	require.NoError(t, client.Health(context.Background()))
}

func TestClient_Health_DegradedIsUsable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(HealthStatus{Status: StatusDegraded})
	}))
	defer server.Close()

	client := New(server.URL, "", 5*time.Second)
	require.NoError(t, client.Health(context.Background()))
}

func TestClient_Health_Unhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(HealthStatus{Status: StatusUnhealthy})
	}))
	defer server.Close()

	client := New(server.URL, "", 5*time.Second)
	require.Error(t, client.Health(context.Background()))
}

func TestClient_Health_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "", 5*time.Second)
	require.Error(t, client.Health(context.Background()))
}
