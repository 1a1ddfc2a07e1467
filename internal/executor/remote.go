package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const responseBodyLimit = 4096

// RemoteExecutor delegates translation to an HTTP API: the source file goes
// up as binary form data, the translated bytes come back either inline or
// behind a secondary download URL that is fetched before success is
// signaled.
type RemoteExecutor struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

var _ Executor = (*RemoteExecutor)(nil)

func NewRemoteExecutor(endpoint, apiKey string, client *http.Client) *RemoteExecutor {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteExecutor{endpoint: endpoint, apiKey: apiKey, client: client}
}

type remoteResponse struct {
	DownloadURL string `json:"download_url"`
}

func (e *RemoteExecutor) Execute(ctx context.Context, req Request) error {
	source, err := os.Open(req.SourcePath)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer source.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	part, err := form.CreateFormFile("file", filepath.Base(req.SourcePath))
	if err != nil {
		return fmt.Errorf("building form: %w", err)
	}
	if _, err := io.Copy(part, source); err != nil {
		return fmt.Errorf("reading source file: %w", err)
	}
	for field, value := range map[string]string{
		"source_language": req.SourceLanguage,
		"target_language": req.TargetLanguage,
		"document_type":   req.DocumentType,
	} {
		if err := form.WriteField(field, value); err != nil {
			return fmt.Errorf("building form: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("building form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, &body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("calling translation API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
		return fmt.Errorf("translation API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var remote remoteResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, responseBodyLimit)).Decode(&remote); err != nil {
			return fmt.Errorf("decoding translation API response: %w", err)
		}
		if remote.DownloadURL == "" {
			return fmt.Errorf("translation API response carries no download_url")
		}
		return e.download(ctx, remote.DownloadURL, req.TargetPath)
	}

	// non-JSON responses carry the translated bytes inline
	return writeTarget(req.TargetPath, resp.Body)
}

func (e *RemoteExecutor) download(ctx context.Context, rawURL, targetPath string) error {
	resolved, err := e.resolveURL(rawURL)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return fmt.Errorf("building download request: %w", err)
	}
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("fetching translated file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
		return fmt.Errorf("result download returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	return writeTarget(targetPath, resp.Body)
}

// resolveURL allows the API to return download URLs relative to its endpoint.
func (e *RemoteExecutor) resolveURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing download url: %w", err)
	}
	if u.IsAbs() {
		return rawURL, nil
	}
	base, err := url.Parse(e.endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint url: %w", err)
	}
	return base.ResolveReference(u).String(), nil
}

func writeTarget(targetPath string, r io.Reader) error {
	f, err := os.Create(targetPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	n, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(targetPath)
		return fmt.Errorf("writing output file: %w", err)
	}
	if n == 0 {
		_ = f.Close()
		_ = os.Remove(targetPath)
		return fmt.Errorf("translation API returned an empty result")
	}
	return f.Close()
}
