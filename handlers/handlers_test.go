package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/serisow/sagefemme/models"
	"github.com/serisow/sagefemme/services/llm_service"
	"github.com/serisow/sagefemme/services/rag_service"
)

const protocolText = "Protocole de surveillance de la tension artérielle pendant la grossesse. " +
	"Mesurer la tension à chaque consultation et orienter vers la maternité au-delà de 140/90."

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// wordEmbedder scores a text on two keywords, enough to rank results.
type wordEmbedder struct {
	unavailable bool
}

func (e *wordEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	return []float32{
		float32(strings.Count(lower, "tension")) + 0.1,
		float32(strings.Count(lower, "allaitement")) + 0.1,
	}
}

func (e *wordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e *wordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *wordEmbedder) IsAvailable() bool { return !e.unavailable }

func (e *wordEmbedder) Dimension() int { return 2 }

type testApp struct {
	store  *rag_service.MemoryStore
	router *mux.Router
	llm    *llm_service.MockLLMService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	logger := discardLogger()
	store := rag_service.NewMemoryStore()
	embedder := &wordEmbedder{}
	extractor := rag_service.NewTextExtractor(&llm_service.MockDocumentReader{}, logger)
	processor := rag_service.NewProcessor(store, extractor, embedder, logger)
	retriever := rag_service.NewRetriever(store, embedder, logger)
	llm := &llm_service.MockLLMService{}
	advisor := rag_service.NewAdvisor(retriever, llm, "", logger)

	documents := NewDocumentHandler(processor, store, 1<<20, logger)
	assistant := NewAssistantHandler(advisor, logger)

	r := mux.NewRouter()
	r.HandleFunc("/documents/upload", documents.Upload).Methods("POST")
	r.HandleFunc("/documents", documents.List).Methods("GET")
	r.Handle("/documents/search", NewDocumentSearchHandler(retriever, logger)).Methods("POST")
	r.HandleFunc("/documents/{id}", documents.Get).Methods("GET")
	r.HandleFunc("/documents/{id}", documents.Delete).Methods("DELETE")
	r.HandleFunc("/assistant/ask", assistant.Ask).Methods("POST")
	r.HandleFunc("/assistant/insight", assistant.Insight).Methods("POST")
	r.Handle("/health", NewHealthHandler(store, embedder, extractor, advisor, logger)).Methods("GET")

	return &testApp{store: store, router: r, llm: llm}
}

func (a *testApp) do(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func multipartBody(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(content))
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func (a *testApp) upload(t *testing.T, name, content string) models.Document {
	t.Helper()
	body, ct := multipartBody(t, map[string]string{"name": name, "uploadedBy": "sf-1"}, "protocole.txt", content)
	rr := a.do(http.MethodPost, "/documents/upload", body, ct)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var doc models.Document
	if err := json.NewDecoder(rr.Body).Decode(&doc); err != nil {
		t.Fatalf("Failed to decode document: %v", err)
	}
	return doc
}

func TestUploadListGetDelete(t *testing.T) {
	app := newTestApp(t)

	doc := app.upload(t, "Protocole HTA", protocolText)
	if doc.ID == "" || doc.Name != "Protocole HTA" || doc.FileType != "text/plain" {
		t.Errorf("Unexpected document %+v", doc)
	}
	if doc.UploadedBy == nil || *doc.UploadedBy != "sf-1" || doc.ChunkCount != 1 {
		t.Errorf("Unexpected document %+v", doc)
	}

	rr := app.do(http.MethodGet, "/documents", nil, "")
	var docs []models.Document
	json.NewDecoder(rr.Body).Decode(&docs)
	if rr.Code != http.StatusOK || len(docs) != 1 || docs[0].ContentText != "" {
		t.Fatalf("Unexpected listing %d %+v", rr.Code, docs)
	}

	rr = app.do(http.MethodGet, "/documents/"+doc.ID, nil, "")
	var got models.Document
	json.NewDecoder(rr.Body).Decode(&got)
	if rr.Code != http.StatusOK || got.ContentText != protocolText {
		t.Fatalf("Unexpected document %d %+v", rr.Code, got)
	}

	rr = app.do(http.MethodDelete, "/documents/"+doc.ID, nil, "")
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != `{"success":true}` {
		t.Errorf("Unexpected delete response %d %s", rr.Code, rr.Body.String())
	}
	rr = app.do(http.MethodDelete, "/documents/"+doc.ID, nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected repeated delete to succeed, got %d", rr.Code)
	}

	rr = app.do(http.MethodGet, "/documents/"+doc.ID, nil, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}

	rr = app.do(http.MethodGet, "/documents", nil, "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("Expected empty list, got %s", rr.Body.String())
	}
}

func TestUploadValidation(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name     string
		fields   map[string]string
		filename string
		content  string
		want     int
	}{
		{"missing file", map[string]string{"name": "Doc"}, "", "", http.StatusBadRequest},
		{"missing name", map[string]string{}, "a.txt", protocolText, http.StatusBadRequest},
		{"blank name", map[string]string{"name": "  "}, "a.txt", protocolText, http.StatusBadRequest},
		{"too short", map[string]string{"name": "Doc"}, "a.txt", "trop court", http.StatusInternalServerError},
		{"empty content", map[string]string{"name": "Doc"}, "a.txt", "\x00\x01", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.fields, tt.filename, tt.content)
			rr := app.do(http.MethodPost, "/documents/upload", body, ct)
			if rr.Code != tt.want {
				t.Errorf("Expected status %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
			var resp map[string]string
			json.NewDecoder(rr.Body).Decode(&resp)
			if resp["error"] == "" {
				t.Errorf("Expected an error message")
			}
		})
	}

	docs, _ := app.store.ListDocuments(context.Background())
	if len(docs) != 0 {
		t.Errorf("Expected failed uploads to store nothing, got %d documents", len(docs))
	}
}

func TestUploadTooLarge(t *testing.T) {
	app := newTestApp(t)

	body, ct := multipartBody(t, map[string]string{"name": "Doc"}, "big.txt", strings.Repeat("a", 2<<20))
	rr := app.do(http.MethodPost, "/documents/upload", body, ct)
	if rr.Code == http.StatusOK {
		t.Errorf("Expected oversized upload to be rejected")
	}
}

func TestSearchHandler(t *testing.T) {
	app := newTestApp(t)
	doc := app.upload(t, "Protocole HTA", protocolText)
	app.upload(t, "Allaitement", strings.Repeat("Conseils pour un allaitement serein et sans douleur. ", 3))

	rr := app.do(http.MethodPost, "/documents/search",
		strings.NewReader(`{"query":"seuil de tension","limit":1}`), "application/json")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var results []models.SearchResult
	json.NewDecoder(rr.Body).Decode(&results)
	if len(results) != 1 || results[0].DocumentID != doc.ID || results[0].DocumentName != "Protocole HTA" {
		t.Errorf("Unexpected results %+v", results)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing query", `{}`, http.StatusBadRequest},
		{"blank query", `{"query":"   "}`, http.StatusBadRequest},
		{"malformed ids", `{"query":"tension","documentIds":["nope"]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := app.do(http.MethodPost, "/documents/search", strings.NewReader(tt.body), "application/json")
			if rr.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, rr.Code)
			}
		})
	}

	rr = app.do(http.MethodPost, "/documents/search",
		strings.NewReader(`{"query":"tension","documentIds":["0b7e3c52-6c5b-4a8e-9d55-1f3b7f2a9c11"]}`), "application/json")
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("Expected empty results for unknown document, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestAssistantAsk(t *testing.T) {
	app := newTestApp(t)
	app.upload(t, "Protocole HTA", protocolText)

	var prompt string
	app.llm.CallLLMFunc = func(ctx context.Context, config map[string]interface{}, p string) (string, error) {
		prompt = p
		return "Orienter au-delà de 140/90.", nil
	}

	rr := app.do(http.MethodPost, "/assistant/ask",
		strings.NewReader(`{"question":"Quel seuil de tension ?","strict":true,"patientContext":{"firstName":"Léa","lastName":"Martin","status":"Enceinte"}}`),
		"application/json")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp rag_service.AskResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Answer != "Orienter au-delà de 140/90." || len(resp.Sources) != 1 {
		t.Errorf("Unexpected response %+v", resp)
	}
	if !strings.Contains(prompt, "Léa Martin") || !strings.Contains(prompt, "Protocole HTA") {
		t.Errorf("Expected patient and document in prompt, got %q", prompt)
	}

	rr = app.do(http.MethodPost, "/assistant/ask", strings.NewReader(`{"question":""}`), "application/json")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}

	app.llm.CallLLMFunc = func(ctx context.Context, config map[string]interface{}, p string) (string, error) {
		return "", errors.New("provider down")
	}
	rr = app.do(http.MethodPost, "/assistant/ask", strings.NewReader(`{"question":"tension ?"}`), "application/json")
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", rr.Code)
	}

	app.llm.Unavailable = true
	rr = app.do(http.MethodPost, "/assistant/ask", strings.NewReader(`{"question":"tension ?"}`), "application/json")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", rr.Code)
	}
}

func TestAssistantInsight(t *testing.T) {
	app := newTestApp(t)
	app.llm.CallLLMFunc = func(ctx context.Context, config map[string]interface{}, p string) (string, error) {
		return "- surveiller la tension", nil
	}

	rr := app.do(http.MethodPost, "/assistant/insight", strings.NewReader(`{"term":"pré-éclampsie"}`), "application/json")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["insight"] != "- surveiller la tension" {
		t.Errorf("Unexpected response %v", resp)
	}

	rr = app.do(http.MethodPost, "/assistant/insight", strings.NewReader(`{"term":" "}`), "application/json")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	app := newTestApp(t)

	rr := app.do(http.MethodGet, "/health", nil, "")
	var resp HealthResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	want := HealthResponse{Status: "ok", Storage: true, Embeddings: true, Extraction: true, Generation: true}
	if rr.Code != http.StatusOK || resp != want {
		t.Errorf("Unexpected health %d %+v", rr.Code, resp)
	}

	h := NewHealthHandler(rag_service.NewPgStore(nil, discardLogger()), &wordEmbedder{unavailable: true}, nil, nil, discardLogger())
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	resp = HealthResponse{}
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp != (HealthResponse{Status: "ok"}) {
		t.Errorf("Expected every capability to be down, got %+v", resp)
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{rag_service.ErrInvalidQuery, http.StatusBadRequest},
		{rag_service.ErrInvalidInput, http.StatusBadRequest},
		{rag_service.ErrDocumentNotFound, http.StatusNotFound},
		{rag_service.ErrGenerationUnavailable, http.StatusServiceUnavailable},
		{rag_service.ErrStorageUnavailable, http.StatusInternalServerError},
		{&rag_service.EmbeddingError{Stage: rag_service.StageBatch, Index: 2, Err: io.EOF}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
