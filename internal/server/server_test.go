package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsyy/eye-pacs/internal/archive"
	"github.com/nsyy/eye-pacs/internal/common"
	"github.com/nsyy/eye-pacs/internal/export"
	"github.com/nsyy/eye-pacs/internal/repository"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeTasks struct {
	calls []string
	err   error
}

func (f *fakeTasks) Run(_ context.Context, name string) error {
	f.calls = append(f.calls, name)
	return f.err
}

type fixture struct {
	router http.Handler
	repo   repository.ReportRepository
	tasks  *fakeTasks
	dest   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := repository.OpenSQLite("file:"+filepath.Join(t.TempDir(), "ehp.db"), discard())
	require.NoError(t, err)
	t.Cleanup(func() { repository.Close(db, discard()) })
	require.NoError(t, repository.EnsureSchema(ctx, db, discard()))

	repo := repository.NewReportRepository(db, discard())
	dest := t.TempDir()
	tasks := &fakeTasks{}
	api := NewAPI(tasks, repo, export.NewService(repo, discard()), archive.NewMover(dest, discard()), discard())
	return &fixture{router: api.Router(), repo: repo, tasks: tasks, dest: dest}
}

func (f *fixture) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestTaskTriggers(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, httptest.NewRequest(http.MethodPost, "/ehp/monitor_task", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, CodeOK, env.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	f.tasks.err = common.NewAppError("TASK_BUSY", "extract is already running", common.ErrBusy)
	rec, env = f.do(t, httptest.NewRequest(http.MethodGet, "/ehp/analysis_task", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeError, env.Code)
	assert.Contains(t, env.Res, "already running")

	assert.Equal(t, []string{TaskIngest, TaskExtract}, f.tasks.calls)
}

func TestServeReport(t *testing.T) {
	f := newFixture(t)
	p := filepath.Join(f.dest, "20250328", "角膜内皮 report.pdf")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4 body"), 0o644))

	target := "/ehp/report/" + url.PathEscape(archive.EncodePath(p))
	rec, _ := f.do(t, httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.4 body", rec.Body.String())

	missing := "/ehp/report/" + url.PathEscape(archive.EncodePath(filepath.Join(f.dest, "gone.pdf")))
	rec, env := f.do(t, httptest.NewRequest(http.MethodGet, missing, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeError, env.Code)

	escape := "/ehp/report/" + url.PathEscape(archive.EncodePath(filepath.Join(f.dest, "..", "secret.pdf")))
	rec, _ = f.do(t, httptest.NewRequest(http.MethodGet, escape, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func uploadRequest(t *testing.T, name, body string, form map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(body))
	require.NoError(t, err)
	for k, v := range form {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/ehp/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadBindAndQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, env := f.do(t, uploadRequest(t, "scan.pdf", "%PDF", map[string]string{"register_id": "R100", "patient_id": "P7"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, CodeOK, env.Code)

	rows, err := f.repo.ListByRegister(ctx, "R100")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "人工上传", row.Machine)
	require.NotNil(t, row.RegisterID)
	assert.Equal(t, "R100", *row.RegisterID)
	assert.FileExists(t, archive.DecodePath(row.Addr))
	assert.True(t, strings.HasPrefix(archive.DecodePath(row.Addr), f.dest))

	require.NoError(t, f.repo.UpdateParsed(ctx, row.ID, "张三_scan.pdf", json.RawMessage(`{"r_cd":"2650","l_cd":"2701","r_k1":"43.1D"}`)))

	rec, env = f.do(t, httptest.NewRequest(http.MethodGet, "/ehp/query_reports?register_id=R100", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	data := env.Data.(map[string]any)
	list := data["report_list"].([]any)
	require.Len(t, list, 1)
	first := list[0].(map[string]any)
	assert.Equal(t, "张三_scan.pdf", first["report_name"])
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, first["report_time"])

	para := data[SectionRGPFitting].(map[string]any)["corneal_para"].(map[string]any)
	assert.Equal(t, "2650", para["inner_od"])
	assert.Equal(t, "2701", para["inner_os"])

	body := strings.NewReader(`{"report_id":"` + row.ID.String() + `","register_id":""}`)
	req := httptest.NewRequest(http.MethodPost, "/ehp/bind_report", body)
	req.Header.Set("Content-Type", "application/json")
	rec, env = f.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := f.repo.Get(ctx, row.ID)
	require.NoError(t, err)
	assert.Nil(t, got.RegisterID)
	assert.Nil(t, got.PatientID)
}

func TestUploadWithoutFile(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/ehp/upload", strings.NewReader("register_id=R1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec, env := f.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Res, "No file part")
}

func TestUploadRejectsUnsafeFilename(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"a&b.pdf", `..\evil.pdf`} {
		rec, env := f.do(t, uploadRequest(t, name, "%PDF", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Contains(t, env.Res, "filename")
	}
	entries, err := os.ReadDir(f.dest)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBindValidation(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, httptest.NewRequest(http.MethodGet, "/ehp/bind_report?report_id=not-a-uuid&register_id=R1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Res, "report_id")

	rec, _ = f.do(t, httptest.NewRequest(http.MethodGet, "/ehp/bind_report?report_id=8f2b7a3e-1c4d-4e5f-9a6b-7c8d9e0f1a2b&register_id=R1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExport(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, httptest.NewRequest(http.MethodGet, "/ehp/export?from=2025-01-01&to=2025-12-31", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.NotZero(t, rec.Body.Len())

	rec, env := f.do(t, httptest.NewRequest(http.MethodGet, "/ehp/export?from=28/03/2025", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeError, env.Code)

	rec, _ = f.do(t, httptest.NewRequest(http.MethodGet, "/ehp/export?from=2025-03-02&to=2025-03-01", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecodeParamsDefaultsToQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ehp/query_reports?register_id=R9", nil)
	var v struct {
		RegisterID string `json:"register_id"`
	}
	require.NoError(t, decodeParams(req, &v, map[string]*string{"register_id": &v.RegisterID}))
	assert.Equal(t, "R9", v.RegisterID)
}

func TestViewFormatsReportTime(t *testing.T) {
	f := newFixture(t)
	row, err := archive.NewMover(f.dest, discard(), archive.WithClock(func() time.Time {
		return time.Date(2025, 3, 28, 10, 46, 45, 0, time.Local)
	})).Save("a.pdf", strings.NewReader("x"))
	require.NoError(t, err)

	b, err := json.Marshal(viewOf(row))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"report_time":"2025-03-28 10:46:45"`)
}
