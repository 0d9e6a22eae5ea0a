package api

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/kalambet/semdoc/internal/documents"
)

func TestAddDocument(t *testing.T) {
	app := newTestApp(t)

	rr := app.do(t, http.MethodPost, "/api/documents",
		`{"title":"Enflasyon raporu","content":"Merkez bankası faiz kararı","category":"ekonomi","tags":["faiz"]}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body = %s", rr.Code, rr.Body.String())
	}
	body := decode[map[string]string](t, rr)
	if body["id"] != "doc-001" {
		t.Fatalf("id = %q, want doc-001", body["id"])
	}

	rr = app.do(t, http.MethodGet, "/api/documents/doc-001", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	doc := decode[documents.Document](t, rr)
	if doc.Title != "Enflasyon raporu" || doc.Category != "ekonomi" {
		t.Errorf("doc = %+v", doc)
	}
	if len(doc.Tags) != 1 || doc.Tags[0] != "faiz" {
		t.Errorf("tags = %v, want [faiz]", doc.Tags)
	}
	if doc.UpdatedAt != nil {
		t.Errorf("updated_at = %v, want null", doc.UpdatedAt)
	}
}

func TestAddDocument_Validation(t *testing.T) {
	app := newTestApp(t)
	tests := []struct {
		name string
		body string
	}{
		{"blank title", `{"title":"  ","content":"x"}`},
		{"missing content", `{"title":"t"}`},
		{"long title", fmt.Sprintf(`{"title":%q,"content":"x"}`, strings.Repeat("ş", MaxTitleRunes+1))},
		{"malformed", `{"title":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := app.do(t, http.MethodPost, "/api/documents", tt.body)
			expectError(t, rr, http.StatusBadRequest, "invalid_request_error")
		})
	}
}

func TestAddDocument_TitleAtLimit(t *testing.T) {
	app := newTestApp(t)
	body := fmt.Sprintf(`{"title":%q,"content":"x"}`, strings.Repeat("ş", MaxTitleRunes))
	rr := app.do(t, http.MethodPost, "/api/documents", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body = %s", rr.Code, rr.Body.String())
	}
}

func TestAddBulk(t *testing.T) {
	app := newTestApp(t)

	rr := app.do(t, http.MethodPost, "/api/documents/bulk",
		`{"documents":[{"title":"a","content":"one"},{"title":"b","content":"two"}]}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body = %s", rr.Code, rr.Body.String())
	}
	body := decode[struct {
		IDs   []string `json:"ids"`
		Count int      `json:"count"`
	}](t, rr)
	if body.Count != 2 || len(body.IDs) != 2 {
		t.Fatalf("body = %+v, want 2 ids", body)
	}
}

func TestAddBulk_OneInvalidStoresNothing(t *testing.T) {
	app := newTestApp(t)

	rr := app.do(t, http.MethodPost, "/api/documents/bulk",
		`{"documents":[{"title":"a","content":"one"},{"title":"","content":"two"}]}`)
	expectError(t, rr, http.StatusBadRequest, "invalid_request_error")

	rr = app.do(t, http.MethodGet, "/api/documents", "")
	if docs := decode[[]documents.Document](t, rr); len(docs) != 0 {
		t.Fatalf("stored %d documents, want 0", len(docs))
	}
}

func TestAddBulk_Empty(t *testing.T) {
	app := newTestApp(t)

	for _, body := range []string{`{"documents":[]}`, `{}`} {
		rr := app.do(t, http.MethodPost, "/api/documents/bulk", body)
		expectError(t, rr, http.StatusBadRequest, "invalid_request_error")
	}
}

func TestAddDocument_PunctuationOnly(t *testing.T) {
	app := newTestApp(t)

	rr := app.do(t, http.MethodPost, "/api/documents", `{"title":"!!","content":"??"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", rr.Code, rr.Body.String())
	}
}

func TestListDocuments(t *testing.T) {
	app := newTestApp(t)
	for i := 0; i < 5; i++ {
		app.add(t, documents.NewDocument{Title: fmt.Sprintf("t%d", i), Content: "c"})
	}

	rr := app.do(t, http.MethodGet, "/api/documents?limit=2&offset=1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	docs := decode[[]documents.Document](t, rr)
	if len(docs) != 2 || docs[0].ID != "doc-002" || docs[1].ID != "doc-003" {
		t.Fatalf("docs = %+v, want doc-002 and doc-003", docs)
	}

	for _, q := range []string{"limit=0", "limit=1001", "limit=x", "offset=-1"} {
		rr := app.do(t, http.MethodGet, "/api/documents?"+q, "")
		expectError(t, rr, http.StatusBadRequest, "invalid_request_error")
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	app := newTestApp(t)
	rr := app.do(t, http.MethodGet, "/api/documents/missing", "")
	expectError(t, rr, http.StatusNotFound, "not_found_error")
}

func TestUpdateDocument(t *testing.T) {
	app := newTestApp(t)
	id := app.add(t, documents.NewDocument{Title: "t", Content: "c", Tags: []string{"x"}})

	rr := app.do(t, http.MethodPut, "/api/documents/"+id, `{"tags":["y","z"],"category":"news"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rr.Code, rr.Body.String())
	}

	doc := decode[documents.Document](t, app.do(t, http.MethodGet, "/api/documents/"+id, ""))
	if doc.Category != "news" || len(doc.Tags) != 2 || doc.UpdatedAt == nil {
		t.Errorf("doc = %+v", doc)
	}
	if doc.Title != "t" {
		t.Errorf("title = %q, want unchanged t", doc.Title)
	}
}

func TestUpdateDocument_Errors(t *testing.T) {
	app := newTestApp(t)
	id := app.add(t, documents.NewDocument{Title: "t", Content: "c"})

	expectError(t, app.do(t, http.MethodPut, "/api/documents/"+id, `{}`), http.StatusBadRequest, "invalid_request_error")
	expectError(t, app.do(t, http.MethodPut, "/api/documents/"+id, `{"title":" "}`), http.StatusBadRequest, "invalid_request_error")
	expectError(t, app.do(t, http.MethodPut, "/api/documents/missing", `{"title":"x"}`), http.StatusNotFound, "not_found_error")
}

func TestDeleteDocument(t *testing.T) {
	app := newTestApp(t)
	id := app.add(t, documents.NewDocument{Title: "t", Content: "c"})

	rr := app.do(t, http.MethodDelete, "/api/documents/"+id, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	expectError(t, app.do(t, http.MethodDelete, "/api/documents/"+id, ""), http.StatusNotFound, "not_found_error")
	expectError(t, app.do(t, http.MethodGet, "/api/documents/"+id, ""), http.StatusNotFound, "not_found_error")
}

func TestStats(t *testing.T) {
	app := newTestApp(t)
	app.add(t, documents.NewDocument{Title: "1", Content: "c", Category: "ekonomi", Tags: []string{"a", "b"}})
	app.add(t, documents.NewDocument{Title: "2", Content: "c", Category: "ekonomi", Tags: []string{"a"}})
	app.add(t, documents.NewDocument{Title: "3", Content: "c", SourceType: "haber", Tags: []string{"b", "c"}})

	rr := app.do(t, http.MethodGet, "/api/documents/stats", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decode[struct {
		Total       int            `json:"total_documents"`
		Categories  map[string]int `json:"categories"`
		SourceTypes map[string]int `json:"source_types"`
		Tags        map[string]int `json:"tags"`
	}](t, rr)
	if body.Total != 3 || body.Categories["ekonomi"] != 2 || body.SourceTypes["haber"] != 1 {
		t.Errorf("stats = %+v", body)
	}
	if body.Tags["a"] != 2 || body.Tags["b"] != 2 || body.Tags["c"] != 1 {
		t.Errorf("tags = %v, want a:2 b:2 c:1", body.Tags)
	}
}
