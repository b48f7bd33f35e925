package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	return NewClient(&Config{
		BaseURL: baseURL,
		Model:   "gemini-2.0-flash",
		Timeout: 5 * time.Second,
	}, nil)
}

func candidateResponse(text string) GenerateResponse {
	return GenerateResponse{
		Candidates: []Candidate{
			{Content: Content{Role: "model", Parts: []Part{{Text: text}}}},
		},
	}
}

func TestGenerateContentSuccess(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		assert.Equal(t, "/models/gemini-2.0-flash:generateContent", r.URL.Path)

		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "hello", req.Contents[0].Parts[0].Text)

		json.NewEncoder(w).Encode(candidateResponse(`{"mood":"calm"}`))
	}))
	defer srv.Close()

	text, err := newTestClient(srv.URL).GenerateContent(context.Background(), "secret-key", "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"mood":"calm"}`, text)
	assert.Equal(t, "secret-key", gotKey)
}

func TestGenerateContentJoinsParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(GenerateResponse{
			Candidates: []Candidate{
				{Content: Content{Parts: []Part{{Text: `{"mood":`}, {Text: `"calm"}`}}}},
			},
		})
	}))
	defer srv.Close()

	text, err := newTestClient(srv.URL).GenerateContent(context.Background(), "k", "p")
	require.NoError(t, err)
	assert.Equal(t, `{"mood":"calm"}`, text)
}

func TestGenerateContentQuotaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(GenerateResponse{Error: &APIError{
			Code:    429,
			Message: "Quota exceeded for requests per minute",
			Status:  "RESOURCE_EXHAUSTED",
		}})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GenerateContent(context.Background(), "k", "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuota))
}

func TestGenerateContentQuotaByStatusMarker(t *testing.T) {
	// 200 响应体内嵌 RESOURCE_EXHAUSTED 错误载荷也要按限额处理
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(GenerateResponse{Error: &APIError{
			Code:    400,
			Message: "resource exhausted",
			Status:  "RESOURCE_EXHAUSTED",
		}})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GenerateContent(context.Background(), "k", "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuota))
}

func TestGenerateContentServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("upstream unavailable"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GenerateContent(context.Background(), "k", "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServer))
}

func TestGenerateContentClientErrorIsNotClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(GenerateResponse{Error: &APIError{
			Code:    400,
			Message: "invalid argument",
			Status:  "INVALID_ARGUMENT",
		}})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GenerateContent(context.Background(), "k", "p")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrQuota))
	assert.False(t, errors.Is(err, ErrServer))
}

func TestGenerateContentEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(GenerateResponse{})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GenerateContent(context.Background(), "k", "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}

func TestGenerateContentBlankText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(candidateResponse("   \n"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GenerateContent(context.Background(), "k", "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}
