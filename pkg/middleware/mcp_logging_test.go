package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMCPRequestLogger(t *testing.T) {
	t.Run("logs successful tool call", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		logger := zap.New(core)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"success"}]}}`))
		})

		wrapped := MCPRequestLogger(logger)(handler)

		reqBody := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_schema","arguments":{"database":"sales"}}}`
		req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(reqBody))
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, 2, logs.Len(), "Should log request and response")

		requestLog := logs.All()[0]
		assert.Equal(t, "MCP request", requestLog.Message)
		assert.Equal(t, "tools/call", requestLog.ContextMap()["method"])
		assert.Equal(t, "get_schema", requestLog.ContextMap()["tool"])
		assert.NotNil(t, requestLog.ContextMap()["arguments"])

		responseLog := logs.All()[1]
		assert.Equal(t, "MCP response success", responseLog.Message)
		assert.Equal(t, "get_schema", responseLog.ContextMap()["tool"])
		assert.NotNil(t, responseLog.ContextMap()["duration"])
	})

	t.Run("logs tool call with error response", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		logger := zap.New(core)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK) // JSON-RPC errors return HTTP 200
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"database connection 'ghost' not found"}}`))
		})

		wrapped := MCPRequestLogger(logger)(handler)

		reqBody := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"run_query","arguments":{"database":"ghost","sql":"SELECT 1"}}}`
		req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(reqBody))
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, 2, logs.Len())

		responseLog := logs.All()[1]
		assert.Equal(t, "MCP response error", responseLog.Message)
		assert.Equal(t, "run_query", responseLog.ContextMap()["tool"])
		assert.Equal(t, int64(-32603), responseLog.ContextMap()["error_code"])
		assert.Equal(t, "database connection 'ghost' not found", responseLog.ContextMap()["error_message"])
		assert.NotNil(t, responseLog.ContextMap()["duration"])
	})

	t.Run("sanitizes sensitive parameters", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		logger := zap.New(core)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
		})

		wrapped := MCPRequestLogger(logger)(handler)

		reqBody := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"run_query","arguments":{"password":"secret123","api_key":"abc123","database":"sales"}}}`
		req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(reqBody))
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		requestLog := logs.All()[0]
		args := requestLog.ContextMap()["arguments"].(map[string]interface{})
		assert.Equal(t, "[REDACTED]", args["password"])
		assert.Equal(t, "[REDACTED]", args["api_key"])
		assert.Equal(t, "sales", args["database"])
	})

	t.Run("truncates long sql values", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		logger := zap.New(core)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
		})

		wrapped := MCPRequestLogger(logger)(handler)

		longSQL := "SELECT " + strings.Repeat("a", 250)
		reqBody := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"run_query","arguments":{"sql":"` + longSQL + `"}}}`
		req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(reqBody))
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		requestLog := logs.All()[0]
		args := requestLog.ContextMap()["arguments"].(map[string]interface{})
		truncated := args["sql"].(string)
		assert.LessOrEqual(t, len(truncated), 203, "Should truncate to 200 chars + '...'")
		assert.Contains(t, truncated, "...")
	})

	t.Run("passes through with nil logger", func(t *testing.T) {
		called := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		})

		wrapped := MCPRequestLogger(nil)(handler)

		req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(`{}`))
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		assert.True(t, called, "Should pass through to handler")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("handles malformed JSON request gracefully", func(t *testing.T) {
		core, _ := observer.New(zapcore.DebugLevel)
		logger := zap.New(core)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"bad request"}`))
		})

		wrapped := MCPRequestLogger(logger)(handler)

		req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(`{invalid json`))
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("handles empty request body", func(t *testing.T) {
		core, _ := observer.New(zapcore.DebugLevel)
		logger := zap.New(core)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		wrapped := MCPRequestLogger(logger)(handler)

		req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(""))
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestSanitizeArguments(t *testing.T) {
	t.Run("redacts sensitive keywords", func(t *testing.T) {
		args := map[string]any{
			"password":      "secret",
			"api_key":       "abc123",
			"access_token":  "xyz789",
			"client_secret": "hidden",
			"credential":    "cred123",
			"database":      "sales",
		}

		result := sanitizeArguments(args)

		assert.Equal(t, "[REDACTED]", result["password"])
		assert.Equal(t, "[REDACTED]", result["api_key"])
		assert.Equal(t, "[REDACTED]", result["access_token"])
		assert.Equal(t, "[REDACTED]", result["client_secret"])
		assert.Equal(t, "[REDACTED]", result["credential"])
		assert.Equal(t, "sales", result["database"])
	})

	t.Run("truncates long strings", func(t *testing.T) {
		args := map[string]any{
			"sql":   strings.Repeat("x", 250),
			"short": "abc",
		}

		result := sanitizeArguments(args)

		truncated := result["sql"].(string)
		assert.LessOrEqual(t, len(truncated), 203)
		assert.Contains(t, truncated, "...")
		assert.Equal(t, "abc", result["short"])
	})

	t.Run("handles nil arguments", func(t *testing.T) {
		assert.Nil(t, sanitizeArguments(nil))
	})

	t.Run("handles empty arguments", func(t *testing.T) {
		result := sanitizeArguments(map[string]any{})
		assert.NotNil(t, result)
		assert.Empty(t, result)
	})

	t.Run("preserves non-string values", func(t *testing.T) {
		args := map[string]any{
			"number": 42,
			"bool":   true,
			"null":   nil,
			"array":  []string{"a", "b"},
		}

		result := sanitizeArguments(args)

		assert.Equal(t, 42, result["number"])
		assert.Equal(t, true, result["bool"])
		assert.Nil(t, result["null"])
		assert.Equal(t, args["array"], result["array"])
	})

	t.Run("case insensitive keyword matching", func(t *testing.T) {
		args := map[string]any{
			"PASSWORD":    "secret",
			"Api_Key":     "abc123",
			"AccessToken": "xyz789",
		}

		result := sanitizeArguments(args)

		assert.Equal(t, "[REDACTED]", result["PASSWORD"])
		assert.Equal(t, "[REDACTED]", result["Api_Key"])
		assert.Equal(t, "[REDACTED]", result["AccessToken"])
	})
}
