package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revguard/reconciler/internal/config"
	"github.com/revguard/reconciler/internal/engine"
	"github.com/revguard/reconciler/internal/ingestion"
	"github.com/revguard/reconciler/internal/repository"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	records := repository.NewRecordRepo(db)
	findings := repository.NewFindingRepo(db)
	runs := repository.NewRunRepo(db)
	svc := ingestion.NewService(records, cfg)
	runner := engine.NewRunner(engine.New(cfg), records, findings, runs)

	ts := httptest.NewServer(NewRouter(records, findings, runs, svc, runner))
	t.Cleanup(ts.Close)
	return ts
}

func ingestFile(t *testing.T, ts *httptest.Server, source, name string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("source", source))
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	resp, err := http.Post(ts.URL+"/api/v1/datasets/ingest", w.FormDataContentType(), &buf)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out), "body: %s", body)
	return out
}

var (
	billingCSV = []byte("invoice_id,customer_id,service_type,billed_rate,total_charge,period_start,period_end\n" +
		"INV-1,C1001,compute_instances,0.08,8.00,2024-01-01,2024-02-01\n")
	contractsJSON = []byte(`[{"contract_id": "CT-1", "customer_id": "C1001",
		"service_type": "compute_instances", "agreed_rate": 0.10,
		"start_date": "2024-01-01", "end_date": "2024-02-01"}]`)
	usageJSON = []byte(`[{"customer_id": "C1001", "service_type": "compute_instances",
		"recorded_usage": 100, "unit": "hours",
		"period_start": "2024-01-01", "period_end": "2024-02-01"}]`)
)

func seedAndRun(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	for _, d := range []struct {
		source, name string
		data         []byte
	}{
		{"billing", "billing.csv", billingCSV},
		{"contract", "contracts.json", contractsJSON},
		{"usage", "usage.json", usageJSON},
	} {
		resp := ingestFile(t, ts, d.source, d.name, d.data)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp, err := http.Post(ts.URL+"/api/v1/runs", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	runID, _ := body["run_id"].(string)
	require.NotEmpty(t, runID)
	return runID
}

func TestIngestDataset_OK(t *testing.T) {
	ts := testServer(t)

	resp := ingestFile(t, ts, "billing", "billing.csv", billingCSV)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.EqualValues(t, 1, body["records_ingested"])
}

func TestIngestDataset_MissingSource(t *testing.T) {
	ts := testServer(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, _ := w.CreateFormFile("file", "billing.csv")
	part.Write(billingCSV)
	w.Close()

	resp, err := http.Post(ts.URL+"/api/v1/datasets/ingest", w.FormDataContentType(), &buf)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestIngestDataset_BadSource(t *testing.T) {
	ts := testServer(t)

	resp := ingestFile(t, ts, "payroll", "x.csv", billingCSV)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()
}

func TestListDatasets(t *testing.T) {
	ts := testServer(t)
	ingestFile(t, ts, "billing", "billing.csv", billingCSV).Body.Close()

	resp, err := http.Get(ts.URL + "/api/v1/datasets")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.EqualValues(t, 1, body["total"])
}

func TestCreateRun_NoDataConflicts(t *testing.T) {
	ts := testServer(t)

	resp, err := http.Post(ts.URL+"/api/v1/runs", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateRun_AndGetRun(t *testing.T) {
	ts := testServer(t)
	runID := seedAndRun(t, ts)

	resp, err := http.Get(ts.URL + "/api/v1/runs/" + runID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, runID, body["run_id"])
}

func TestGetRun_NotFound(t *testing.T) {
	ts := testServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/runs/does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestListFindings(t *testing.T) {
	ts := testServer(t)
	runID := seedAndRun(t, ts)

	resp, err := http.Get(ts.URL + "/api/v1/findings?run_id=" + runID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)

	// The undercharged compute invoice yields a rate mismatch.
	findings, ok := body["findings"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, findings)
	first := findings[0].(map[string]any)
	assert.Equal(t, "RATE_MISMATCH", first["kind"])
	assert.InDelta(t, 2.0, first["financial_impact"].(float64), 1e-6)
}

func TestListFindings_KindFilter(t *testing.T) {
	ts := testServer(t)
	runID := seedAndRun(t, ts)

	resp, err := http.Get(ts.URL + "/api/v1/findings?run_id=" + runID + "&kind=DUPLICATE_ENTRY")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.EqualValues(t, 0, body["total"])
}

func TestGetFindingSummary_DefaultsToLatestRun(t *testing.T) {
	ts := testServer(t)
	runID := seedAndRun(t, ts)

	resp, err := http.Get(ts.URL + "/api/v1/findings/summary")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, runID, body["run_id"])

	summary := body["summary"].(map[string]any)
	assert.EqualValues(t, 1, summary["total_count"])
}

func TestListCases(t *testing.T) {
	ts := testServer(t)
	runID := seedAndRun(t, ts)

	resp, err := http.Get(ts.URL + "/api/v1/cases?run_id=" + runID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)

	cases, ok := body["cases"].([]any)
	require.True(t, ok)
	require.Len(t, cases, 1)
	first := cases[0].(map[string]any)
	assert.Equal(t, "C1001", first["customer_id"])
}

func TestListCases_NoRunsYet(t *testing.T) {
	ts := testServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/cases")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestGetDashboard(t *testing.T) {
	ts := testServer(t)
	runID := seedAndRun(t, ts)

	resp, err := http.Get(ts.URL + "/api/v1/dashboard")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)

	assert.Equal(t, runID, body["latest_run_id"])
	assert.EqualValues(t, 3, body["records_ingested"])
	assert.EqualValues(t, 1, body["case_count"])
	assert.Contains(t, body, "total_recoverable")
}
