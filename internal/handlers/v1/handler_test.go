package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/doctrans/doctrans/internal/auth"
	"github.com/doctrans/doctrans/internal/dispatcher"
	"github.com/doctrans/doctrans/internal/executor"
	apiv1 "github.com/doctrans/doctrans/internal/handlers/v1"
	"github.com/doctrans/doctrans/internal/intake"
	"github.com/doctrans/doctrans/internal/service"
	"github.com/doctrans/doctrans/internal/storage"
	"github.com/doctrans/doctrans/internal/store"
)

type execFunc func(ctx context.Context, req executor.Request) error

func (f execFunc) Execute(ctx context.Context, req executor.Request) error {
	return f(ctx, req)
}

func echoExecutor(_ context.Context, req executor.Request) error {
	data, err := os.ReadFile(req.SourcePath)
	if err != nil {
		return err
	}
	return os.WriteFile(req.TargetPath, data, 0o600)
}

type testAPI struct {
	store      store.Store
	blobs      storage.Storage
	dispatcher *dispatcher.Dispatcher
	router     *chi.Mux
	user       auth.User
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "jobs.db")), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	s := store.NewStore(db)
	require.NoError(t, s.InitialMigration())
	t.Cleanup(func() { _ = s.Close() })

	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	d := dispatcher.New(s, blobs, execFunc(echoExecutor), time.Minute)
	svc := service.NewJobService(s, blobs, intake.New(blobs, 1<<20), d, false)

	api := &testAPI{
		store:      s,
		blobs:      blobs,
		dispatcher: d,
		user:       auth.User{Username: "alice", Organization: "acme"},
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.NewUserContext(r.Context(), api.user)))
		})
	})
	router.Route("/api/v1", apiv1.NewHandler(svc, 1<<20).Routes)

	api.router = router
	return api
}

func (a *testAPI) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func multipartUpload(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/translations", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func defaultFields() map[string]string {
	return map[string]string{
		"sourceLanguage": "en",
		"targetLanguage": "es",
		"documentType":   "general",
	}
}

func decodeJob(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestCreateThenPollThenDownload(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, multipartUpload(t, "notes.txt", "hello world", defaultFields()))
	require.Equal(t, http.StatusCreated, rec.Code)

	created := decodeJob(t, rec.Body)
	assert.Equal(t, "pending", created["status"])
	assert.Equal(t, float64(0), created["progress"])
	jobID := created["jobId"].(string)

	api.dispatcher.Wait()

	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/translations/"+jobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeJob(t, rec.Body)
	assert.Equal(t, "completed", got["status"])
	assert.Equal(t, float64(100), got["progress"])
	require.Contains(t, got, "resultHandle")

	rec = api.do(t, httptest.NewRequest(http.MethodGet, got["resultHandle"].(string), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello world", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".txt")
	assert.Equal(t, fmt.Sprint(len("hello world")), rec.Header().Get("Content-Length"))
}

func TestCreateValidationError(t *testing.T) {
	api := newTestAPI(t)

	fields := defaultFields()
	fields["documentType"] = "poetry"
	rec := api.do(t, multipartUpload(t, "notes.txt", "hello", fields))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeJob(t, rec.Body)
	assert.Equal(t, "documentType", body["field"])
}

func TestCreateRejectsUnsupportedExtension(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, multipartUpload(t, "notes.exe", "hello", defaultFields()))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeJob(t, rec.Body)
	assert.Equal(t, "file", body["field"])
}

func TestCreateRequiresFile(t *testing.T) {
	api := newTestAPI(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range defaultFields() {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/translations", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := api.do(t, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUnknownJob(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/translations/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/translations/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetForeignJobForbidden(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, multipartUpload(t, "notes.txt", "hello", defaultFields()))
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID := decodeJob(t, rec.Body)["jobId"].(string)
	api.dispatcher.Wait()

	api.user = auth.User{Username: "mallory", Organization: "evilcorp"}
	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/translations/"+jobID, nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/translations/"+jobID+"/download", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDownloadBeforeCompletion(t *testing.T) {
	// A slow executor keeps the job out of the completed state.
	blocked := make(chan struct{})

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "jobs.db")), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	s := store.NewStore(db)
	require.NoError(t, s.InitialMigration())
	t.Cleanup(func() { _ = s.Close() })

	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	d := dispatcher.New(s, blobs, execFunc(func(ctx context.Context, req executor.Request) error {
		<-blocked
		return echoExecutor(ctx, req)
	}), time.Minute)
	svc := service.NewJobService(s, blobs, intake.New(blobs, 1<<20), d, false)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.NewUserContext(r.Context(), auth.User{Username: "alice", Organization: "acme"})))
		})
	})
	router.Route("/api/v1", apiv1.NewHandler(svc, 1<<20).Routes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartUpload(t, "notes.txt", "hello", defaultFields()))
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID := decodeJob(t, rec.Body)["jobId"].(string)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/translations/"+jobID+"/download", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(blocked)
	d.Wait()
}

func TestDownloadMissingResult(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, multipartUpload(t, "notes.txt", "hello", defaultFields()))
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID := decodeJob(t, rec.Body)["jobId"].(string)
	api.dispatcher.Wait()

	job, err := api.store.Job().Get(context.Background(), uuid.MustParse(jobID))
	require.NoError(t, err)
	require.NoError(t, api.blobs.Delete(context.Background(), *job.OutputPath))

	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/translations/"+jobID+"/download", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListPagination(t *testing.T) {
	api := newTestAPI(t)

	for i := 0; i < 3; i++ {
		rec := api.do(t, multipartUpload(t, "notes.txt", "hello", defaultFields()))
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	api.dispatcher.Wait()

	rec := api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/translations?limit=2&offset=0", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Items      []map[string]any `json:"items"`
		Pagination struct {
			Limit  int   `json:"limit"`
			Offset int   `json:"offset"`
			Total  int64 `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Len(t, page.Items, 2)
	assert.Equal(t, int64(3), page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.Limit)

	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/translations?limit=2&offset=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Len(t, page.Items, 1)
}

func TestListStatusFilter(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, multipartUpload(t, "notes.txt", "hello", defaultFields()))
	require.Equal(t, http.StatusCreated, rec.Code)
	api.dispatcher.Wait()

	var page struct {
		Items []map[string]any `json:"items"`
	}

	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/translations?status=completed", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Len(t, page.Items, 1)

	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/translations?status=failed", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Empty(t, page.Items)

	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/translations?status=sideways", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
