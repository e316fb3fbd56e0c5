package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fabworks/fabtrack/internal/config"
	"github.com/fabworks/fabtrack/internal/core"
	"github.com/fabworks/fabtrack/internal/store/memory"
)

const testCSV = "materialIdentifier,description,materialType,systemType,quantityEstimated,unitOfMeasure\n" +
	"P-001,6in CHW supply,PIPE,CHW,120.5,LF\n"

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 30 * time.Second
	cfg.Import.MaxFileSize = 1 << 20
	cfg.Import.Timeout = time.Minute

	store := memory.New()
	return NewServer(core.NewService(store, nil), cfg), store
}

func doRequest(t *testing.T, s *Server, method, path, actor string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if actor != "" {
		req.Header.Set(actorHeader, actor)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func importCSV(t *testing.T, s *Server, jobID string) core.ImportResult {
	t.Helper()
	rec := doRequest(t, s, http.MethodPost, "/api/jobs/"+jobID+"/import", "importer", []byte(testCSV), "text/csv")
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result core.ImportResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode import result: %v", err)
	}
	return result
}

func TestHandleImport_RawBody(t *testing.T) {
	s, store := newTestServer(t)

	result := importCSV(t, s, "JOB-100")
	if result.Created != 1 {
		t.Fatalf("result = %+v, want {Created:1}", result)
	}

	m, err := store.GetMaterialByKey(context.Background(), "JOB-100", "P-001")
	if err != nil {
		t.Fatalf("material not stored: %v", err)
	}
	if m.CreatedBy != "importer" {
		t.Errorf("CreatedBy = %q, want the header actor", m.CreatedBy)
	}
}

func TestHandleImport_MultipartFile(t *testing.T) {
	s, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "materials.csv")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(testCSV))
	mw.Close()

	rec := doRequest(t, s, http.MethodPost, "/api/jobs/JOB-100/import", "importer", buf.Bytes(), mw.FormDataContentType())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result core.ImportResult
	json.Unmarshal(rec.Body.Bytes(), &result)
	if result.Created != 1 {
		t.Errorf("result = %+v, want {Created:1}", result)
	}
}

func TestHandleImport_MissingActor(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/jobs/JOB-100/import", "", []byte(testCSV), "text/csv")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), actorHeader) {
		t.Errorf("body should name the missing header: %s", rec.Body.String())
	}
}

func TestHandleImport_ParseFailure(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/jobs/JOB-100/import", "importer", []byte("materialIdentifier\nP-001\n"), "text/csv")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Code != "IMP001" {
		t.Errorf("Code = %q, want IMP001", resp.Code)
	}
}

func TestHandleGetMaterial(t *testing.T) {
	s, store := newTestServer(t)
	importCSV(t, s, "JOB-100")
	m, _ := store.GetMaterialByKey(context.Background(), "JOB-100", "P-001")

	rec := doRequest(t, s, http.MethodGet, "/api/materials/"+m.ID, "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got core.Material
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.MaterialIdentifier != "P-001" || got.Status != core.StatusEstimated {
		t.Errorf("got %+v", got)
	}
}

func TestHandleGetMaterial_NotFound(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/materials/no-such-id", "", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Code != "MAT001" {
		t.Errorf("Code = %q, want MAT001", resp.Code)
	}
}

func TestHandleUpdateStatus(t *testing.T) {
	s, store := newTestServer(t)
	importCSV(t, s, "JOB-100")
	m, _ := store.GetMaterialByKey(context.Background(), "JOB-100", "P-001")

	body := []byte(`{"status":"DETAILED","notes":"drawings approved"}`)
	rec := doRequest(t, s, http.MethodPost, "/api/materials/"+m.ID+"/status", "detailer", body, "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got core.Material
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != core.StatusDetailed {
		t.Errorf("Status = %s, want DETAILED", got.Status)
	}
}

func TestHandleUpdateStatus_InvalidTransition(t *testing.T) {
	s, store := newTestServer(t)
	importCSV(t, s, "JOB-100")
	m, _ := store.GetMaterialByKey(context.Background(), "JOB-100", "P-001")

	body := []byte(`{"status":"INSTALLED"}`)
	rec := doRequest(t, s, http.MethodPost, "/api/materials/"+m.ID+"/status", "field", body, "application/json")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Code != "MAT002" {
		t.Errorf("Code = %q, want MAT002", resp.Code)
	}
}

func TestHandleUpdateStatus_BadRequests(t *testing.T) {
	s, store := newTestServer(t)
	importCSV(t, s, "JOB-100")
	m, _ := store.GetMaterialByKey(context.Background(), "JOB-100", "P-001")

	tests := []struct {
		name  string
		actor string
		body  string
	}{
		{"missing actor", "", `{"status":"DETAILED"}`},
		{"malformed json", "x", `{`},
		{"unknown status", "x", `{"status":"SHINY"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/api/materials/"+m.ID+"/status", tt.actor, []byte(tt.body), "application/json")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleGetHistory(t *testing.T) {
	s, store := newTestServer(t)
	importCSV(t, s, "JOB-100")
	m, _ := store.GetMaterialByKey(context.Background(), "JOB-100", "P-001")

	body := []byte(`{"status":"DETAILED"}`)
	doRequest(t, s, http.MethodPost, "/api/materials/"+m.ID+"/status", "detailer", body, "application/json")

	rec := doRequest(t, s, http.MethodGet, "/api/materials/"+m.ID+"/history", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var entries []core.HistoryEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want CREATE + UPDATE_STATUS", len(entries))
	}
	if entries[0].Action != core.ActionCreate || entries[1].Action != core.ActionUpdateStatus {
		t.Errorf("actions = %s, %s", entries[0].Action, entries[1].Action)
	}
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
