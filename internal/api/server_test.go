package api

import (
	"bytes"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/chmdznr/recsync/internal/config"
	"github.com/chmdznr/recsync/internal/db"
	"github.com/chmdznr/recsync/internal/metrics"
	recsync "github.com/chmdznr/recsync/internal/sync"
	"github.com/chmdznr/recsync/pkg/models"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	profile := &config.Profile{
		KeyColumn:       "KEY",
		RequiredColumns: []string{"KEY", "CAT"},
		ExportOrder:     []string{"KEY", "CAT"},
		PageSize:        2,
	}

	store, err := db.New(filepath.Join(t.TempDir(), "api.db"), db.Options{KeyColumn: "KEY", Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := metrics.New()
	syncer := recsync.NewSyncer(store, &recsync.SyncerConfig{Logger: logger, Observer: m})
	ts := httptest.NewServer(NewServer(store, syncer, profile, m, logger).Router())
	t.Cleanup(ts.Close)
	return ts
}

func upload(t *testing.T, ts *httptest.Server, name, content string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/ingest?source="+name, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func get(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func post(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", nil)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp := get(t, ts, "/health")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestIngestRollbackFlow(t *testing.T) {
	ts := newTestServer(t)

	// ARRANGE: initial batch
	resp := upload(t, ts, "first.csv", "KEY,CAT\n1,X\n2,X\n3,X\n")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decode[models.SyncSummary](t, resp)
	assert.Equal(t, 3, first.New)

	// ACT: update one record
	resp = upload(t, ts, "second.csv", "KEY,CAT\n1,Y\n2,X\n")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decode[models.SyncSummary](t, resp)

	// ASSERT
	assert.Equal(t, 1, second.Updated)
	assert.Equal(t, 1, second.Unchanged)
	assert.Equal(t, []models.Modification{{Key: "1", Field: "CAT", Old: "X", New: "Y"}}, second.Modifications)

	resp = get(t, ts, "/api/records/1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rec := decode[models.StoredRecord](t, resp)
	assert.Equal(t, "Y", rec.Fields.Get("CAT"))
	assert.Equal(t, "second.csv", rec.SourceFile)

	resp = get(t, ts, "/api/records/1/history")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	history := decode[[]models.HistoryEntry](t, resp)
	require.Len(t, history, 1)
	assert.Equal(t, "X", history[0].Fields.Get("CAT"))
	assert.Equal(t, models.ChangeSyncUpdateOld, history[0].ChangeType)

	resp = post(t, ts, "/api/records/1/rollback")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[models.RollbackResult](t, resp)
	assert.Equal(t, []models.Modification{{Key: "1", Field: "CAT", Old: "Y", New: "X"}}, result.Restored)

	resp = post(t, ts, "/api/records/1/rollback")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = get(t, ts, "/metrics")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `recsync_records_total{outcome="updated"} 1`)
	assert.Contains(t, string(body), `recsync_rollbacks_total{result="not_found"} 1`)
}

func TestIngestRejections(t *testing.T) {
	ts := newTestServer(t)

	resp := upload(t, ts, "missing.csv", "KEY,OWNER\n1,ann\n")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	errResp := decode[errorResponse](t, resp)
	assert.Equal(t, []string{"CAT"}, errResp.Missing)

	resp = upload(t, ts, "notes.txt", "KEY,CAT\n1,X\n")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, ts, "/api/ingest")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListRecords(t *testing.T) {
	ts := newTestServer(t)
	resp := upload(t, ts, "seed.csv", "KEY,CAT\n3,c\n1,a\n2,b\n")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, ts, "/api/records?limit=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[listResponse](t, resp)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "1", page.Records[0].Key)
	assert.Equal(t, "2", page.Records[1].Key)
	assert.Equal(t, "2", page.Next)

	resp = get(t, ts, "/api/records?limit=2&after="+page.Next)
	page = decode[listResponse](t, resp)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "3", page.Records[0].Key)
	assert.Empty(t, page.Next)

	resp = get(t, ts, "/api/records?limit=abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = get(t, ts, "/api/records/404")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExportAndStatus(t *testing.T) {
	ts := newTestServer(t)
	resp := upload(t, ts, "seed.csv", "CAT,KEY,NOTE\nb,2,\na,1,hi\n")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, ts, "/api/export")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "KEY,CAT,NOTE\n1,a,hi\n2,b,\n", string(body))

	resp = get(t, ts, "/api/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[models.Stats](t, resp)
	assert.Equal(t, int64(2), stats.Records)
	assert.Equal(t, 3, stats.Columns)
	assert.Equal(t, "seed.csv", stats.LastSource)
}
