/*
handlers_test.go - HTTP tests for the report API

Tests for:
- Upload runs (success, missing extract, wrong extension, corrupt zip)
- Folder runs and folder root confinement
- Run history, lookup, download and sheet preview
*/
package api_test

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/authz-report/api"
	"github.com/warp/authz-report/config"
	"github.com/warp/authz-report/export"
	"github.com/warp/authz-report/recon"
	memstore "github.com/warp/authz-report/recon/store"
	"github.com/warp/authz-report/service"
	"go.uber.org/zap/zaptest"
)

// =============================================================================
// FIXTURES
// =============================================================================

func extracts() map[string]string {
	return map[string]string{
		"HDV_CHITIET_CKH_01.txt": "IDXACNO\tCUSTSEQ\n9001\t100\n",
		"HDV_CHITIET_KKH_01.txt": "IDXACNO\tCUSTSEQ\n100\t555\n",
		"MUC 30 2241.txt": "DESCRIPTION\tEFFECTIVEDATE\tEXPIRYDATE\tNGUOI_UY_QUYEN\tNGUOI_DUOC_UY_QUYEN\tTK_DUOC_UY_QUYEN\tPRIMARY_SOL_ID\n" +
			"uy quyen chu ky\t20200101\t21190101\tTRAN VAN C\tNGUYEN VAN B - 0901\t100\t2241\n" +
			"uy quyen chu ky\t20200101\t20210101\tLE THI D\tNGUYEN VAN B - 0901\t9001\t2241\n",
		"Muc14_DK_SMS.txt": "FORACID\tCUSTTPCD\n100\tKHCN\n",
		"SCM010_2241.txt":  "CIF_ID\n555\n",
		"notes/readme.txt": "not an extract\n",
	}
}

func zipOf(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type testServer struct {
	router http.Handler
	store  *memstore.Memory
	cfg    *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Folders.Root = t.TempDir()

	logger := zaptest.NewLogger(t)
	store := memstore.NewMemory()
	pipeline := recon.NewPipeline(logger)
	pipeline.Patterns = cfg.Sources
	runner := service.NewRunner(store, pipeline, logger)

	h := api.NewHandler(runner, store, cfg, logger)
	return &testServer{router: api.NewRouter(h, nil), store: store, cfg: cfg}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) upload(t *testing.T, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/runs/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(t, req)
}

func (s *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, httptest.NewRequest(http.MethodGet, path, nil))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// UPLOAD RUNS
// =============================================================================

func TestUploadRun_Success(t *testing.T) {
	s := newTestServer(t)

	rec := s.upload(t, "extracts.zip", zipOf(t, extracts()))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	run := decode[api.RunDTO](t, rec)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "archive", run.Source)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, "/api/runs/"+run.ID+"/report", run.ReportURL)
	assert.Equal(t, "MUC 30 2241.txt", run.Inputs.Authorization)
	assert.Equal(t, []string{"HDV_CHITIET_CKH_01.txt"}, run.Inputs.FixedTerm)
	assert.Equal(t, 2, run.Inputs.AuthorizationRows)

	require.Len(t, run.Sheets, 5)
	assert.Equal(t, "tieu chi 1", run.Sheets[2].Name)
	assert.Equal(t, "/api/runs/"+run.ID+"/preview/tieu%20chi%201", run.Sheets[2].PreviewURL)
}

func TestUploadRun_MissingDemandExtract(t *testing.T) {
	s := newTestServer(t)
	files := extracts()
	delete(files, "HDV_CHITIET_KKH_01.txt")

	rec := s.upload(t, "extracts.zip", zipOf(t, files))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	resp := decode[api.ErrorResponse](t, rec)
	assert.Contains(t, resp.Details, "KKH")
	require.NotEmpty(t, resp.RunID)

	// The rejected run is still in the history.
	got := s.get(t, "/api/runs/"+resp.RunID)
	require.Equal(t, http.StatusOK, got.Code)
	run := decode[api.RunDTO](t, got)
	assert.Equal(t, "failed", run.Status)
	assert.Empty(t, run.ReportURL)
}

func TestUploadRun_RejectsNonZip(t *testing.T) {
	s := newTestServer(t)
	rec := s.upload(t, "extracts.rar", []byte("whatever"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRun_CorruptZip(t *testing.T) {
	s := newTestServer(t)
	rec := s.upload(t, "extracts.zip", []byte("not a zip"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRun_MissingFileField(t *testing.T) {
	s := newTestServer(t)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/runs/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, s.do(t, req).Code)
}

// =============================================================================
// FOLDER RUNS
// =============================================================================

func writeFolder(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func folderRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/runs/folder", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestFolderRun_Success(t *testing.T) {
	s := newTestServer(t)
	files := extracts()
	delete(files, "notes/readme.txt")

	writeFolder(t, filepath.Join(s.cfg.Folders.Root, "ckh"), map[string]string{
		"HDV_CHITIET_CKH_01.txt": files["HDV_CHITIET_CKH_01.txt"],
	})
	delete(files, "HDV_CHITIET_CKH_01.txt")
	writeFolder(t, filepath.Join(s.cfg.Folders.Root, "common"), files)

	rec := s.do(t, folderRequest(`{"fixed_term_dir": "ckh", "common_dir": "common"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	run := decode[api.RunDTO](t, rec)
	assert.Equal(t, "folder", run.Source)
	assert.Equal(t, "completed", run.Status)
	// One grantee signs for two grantors with different CIFs.
	require.Len(t, run.Warnings, 1)
	assert.Equal(t, "imputation_conflict", run.Warnings[0].Code)
}

func TestFolderRun_RejectsEscape(t *testing.T) {
	s := newTestServer(t)
	tests := map[string]string{
		"parent":   `{"fixed_term_dir": "../ckh", "common_dir": "common"}`,
		"absolute": `{"fixed_term_dir": "/etc", "common_dir": "common"}`,
		"nested":   `{"fixed_term_dir": "ckh", "common_dir": "a/../../common"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, s.do(t, folderRequest(body)).Code)
		})
	}
}

func TestFolderRun_MissingFolder(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, folderRequest(`{"fixed_term_dir": "nope", "common_dir": "nope"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFolderRun_Disabled(t *testing.T) {
	s := newTestServer(t)
	s.cfg.Folders.Root = ""
	rec := s.do(t, folderRequest(`{"fixed_term_dir": "ckh", "common_dir": "common"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// HISTORY, DOWNLOAD, PREVIEW
// =============================================================================

func TestGetRun_NotFound(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, s.get(t, "/api/runs/unknown").Code)
	assert.Equal(t, http.StatusNotFound, s.get(t, "/api/runs/unknown/report").Code)
}

func TestListRuns(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.upload(t, "a.zip", zipOf(t, extracts())).Code)
	files := extracts()
	delete(files, "HDV_CHITIET_KKH_01.txt")
	require.Equal(t, http.StatusUnprocessableEntity, s.upload(t, "b.zip", zipOf(t, files)).Code)

	rec := s.get(t, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.RunDTO](t, rec), 2)

	rec = s.get(t, "/api/runs?status=failed")
	require.Equal(t, http.StatusOK, rec.Code)
	failed := decode[[]api.RunDTO](t, rec)
	require.Len(t, failed, 1)
	assert.Equal(t, "archive b.zip", failed[0].Description)

	rec = s.get(t, "/api/runs?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.RunDTO](t, rec), 1)

	assert.Equal(t, http.StatusBadRequest, s.get(t, "/api/runs?status=done").Code)
	assert.Equal(t, http.StatusBadRequest, s.get(t, "/api/runs?limit=x").Code)
}

func TestListRuns_Empty(t *testing.T) {
	s := newTestServer(t)
	rec := s.get(t, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestDownloadReport(t *testing.T) {
	s := newTestServer(t)
	run := decode[api.RunDTO](t, s.upload(t, "a.zip", zipOf(t, extracts())))

	rec := s.get(t, run.ReportURL)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "DVKH_2241.xlsx")

	names, err := export.SheetNames(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"CKH", "KKH", "tieu chi 1", "tieu chi 2", "tieu chi 3"}, names)
}

func TestPreviewSheet(t *testing.T) {
	s := newTestServer(t)
	run := decode[api.RunDTO](t, s.upload(t, "a.zip", zipOf(t, extracts())))

	rec := s.get(t, run.Sheets[4].PreviewURL)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[api.PreviewDTO](t, rec)
	assert.Equal(t, "tieu chi 3", p.Sheet)
	assert.Equal(t, 2, p.TotalRows)
	assert.Len(t, p.Rows, 2)
	assert.Contains(t, p.Columns, recon.ColConcentration)

	rec = s.get(t, run.Sheets[4].PreviewURL+"?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[api.PreviewDTO](t, rec).Rows, 1)

	rec = s.get(t, "/api/runs/"+run.ID+"/preview/"+url.PathEscape("no such sheet"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.get(t, run.Sheets[4].PreviewURL+"?limit=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.get(t, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
