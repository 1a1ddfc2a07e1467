package executor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remoteRequest(t *testing.T, content string) Request {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "contract.docx")
	require.NoError(t, os.WriteFile(source, []byte(content), 0o644))
	return Request{
		SourcePath:     source,
		TargetPath:     filepath.Join(dir, "translated.docx"),
		SourceLanguage: "de",
		TargetLanguage: "en",
		DocumentType:   "legal",
	}
}

func TestRemoteExecutorInlineResult(t *testing.T) {
	var gotFields map[string]string
	var gotFile []byte

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotFields = map[string]string{
			"source_language": r.FormValue("source_language"),
			"target_language": r.FormValue("target_language"),
			"document_type":   r.FormValue("document_type"),
		}
		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		gotFile, err = io.ReadAll(file)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("translated bytes"))
	}))
	defer ts.Close()

	req := remoteRequest(t, "vertrag")
	err := NewRemoteExecutor(ts.URL, "", nil).Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"source_language": "de",
		"target_language": "en",
		"document_type":   "legal",
	}, gotFields)
	assert.Equal(t, []byte("vertrag"), gotFile)

	out, err := os.ReadFile(req.TargetPath)
	require.NoError(t, err)
	assert.Equal(t, "translated bytes", string(out))
}

func TestRemoteExecutorDownloadURL(t *testing.T) {
	var sawAuth string

	mux := http.NewServeMux()
	mux.HandleFunc("/translate", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"download_url": "/results/42"})
	})
	mux.HandleFunc("/results/42", func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("fetched result"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	req := remoteRequest(t, "vertrag")
	err := NewRemoteExecutor(ts.URL+"/translate", "key-123", nil).Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "Bearer key-123", sawAuth)
	out, err := os.ReadFile(req.TargetPath)
	require.NoError(t, err)
	assert.Equal(t, "fetched result", string(out))
}

func TestRemoteExecutorNonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine unavailable", http.StatusInternalServerError)
	}))
	defer ts.Close()

	req := remoteRequest(t, "vertrag")
	err := NewRemoteExecutor(ts.URL, "", nil).Execute(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "engine unavailable")

	_, statErr := os.Stat(req.TargetPath)
	assert.True(t, os.IsNotExist(statErr), "no output must exist after a failed call")
}

func TestRemoteExecutorJSONWithoutDownloadURL(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"queued"}`))
	}))
	defer ts.Close()

	req := remoteRequest(t, "vertrag")
	err := NewRemoteExecutor(ts.URL, "", nil).Execute(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download_url")
}

func TestRemoteExecutorEmptyResult(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
	}))
	defer ts.Close()

	req := remoteRequest(t, "vertrag")
	err := NewRemoteExecutor(ts.URL, "", nil).Execute(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty result")
}
