package api

import (
	"net/http"
	"testing"

	"github.com/kalambet/semdoc/internal/documents"
	"github.com/kalambet/semdoc/internal/graph"
)

func seedNews(t *testing.T, app *testApp) {
	t.Helper()
	app.add(t, documents.NewDocument{Title: "Enflasyon raporu", Content: "Merkez bankası enflasyon raporu yayımladı", Category: "ekonomi", SourceType: "haber"})
	app.add(t, documents.NewDocument{Title: "Enflasyon beklentisi", Content: "Merkez bankası enflasyon beklentisi açıkladı", Category: "ekonomi", SourceType: "rapor"})
	app.add(t, documents.NewDocument{Title: "Futbol", Content: "Derbi maçı berabere bitti", Category: "spor", SourceType: "haber"})
}

func TestSearch(t *testing.T) {
	app := newTestApp(t)
	seedNews(t, app)

	rr := app.do(t, http.MethodPost, "/api/search", `{"query":"enflasyon raporu","limit":5,"score_threshold":0}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rr.Code, rr.Body.String())
	}
	resp := decode[SearchResponse](t, rr)
	if resp.TotalResults != len(resp.Results) || resp.TotalResults == 0 {
		t.Fatalf("total_results = %d, results = %d", resp.TotalResults, len(resp.Results))
	}
	if resp.Results[0].ID != "doc-001" {
		t.Errorf("top result = %s, want doc-001", resp.Results[0].ID)
	}
	for i := 1; i < len(resp.Results); i++ {
		if resp.Results[i].Score > resp.Results[i-1].Score {
			t.Errorf("results not sorted by score at %d", i)
		}
	}
	if resp.TotalResults >= 2 && resp.Relationships == nil {
		t.Error("relationships missing for a multi-result search")
	}
}

func TestSearch_CategoryFilter(t *testing.T) {
	app := newTestApp(t)
	seedNews(t, app)

	rr := app.do(t, http.MethodPost, "/api/search", `{"query":"enflasyon","score_threshold":0,"filter_category":"spor"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rr.Code, rr.Body.String())
	}
	resp := decode[SearchResponse](t, rr)
	for _, r := range resp.Results {
		if r.Category != "spor" {
			t.Errorf("result %s has category %q", r.ID, r.Category)
		}
	}
	if resp.TotalResults < 2 && resp.Relationships != nil {
		t.Error("relationships present for fewer than two results")
	}
}

func TestSearch_Validation(t *testing.T) {
	app := newTestApp(t)
	for _, body := range []string{
		`{"query":""}`,
		`{"query":"x","limit":0}`,
		`{"query":"x","limit":101}`,
		`{"query":"x","score_threshold":1.5}`,
		`{"query":"x","score_threshold":-0.1}`,
	} {
		rr := app.do(t, http.MethodPost, "/api/search", body)
		expectError(t, rr, http.StatusBadRequest, "invalid_request_error")
	}
}

func TestFindSimilar(t *testing.T) {
	app := newTestApp(t)
	seedNews(t, app)

	rr := app.do(t, http.MethodPost, "/api/search/similar", `{"document_id":"doc-001","limit":5,"score_threshold":0}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rr.Code, rr.Body.String())
	}
	resp := decode[SimilarResponse](t, rr)
	if resp.ReferenceDocument.ID != "doc-001" || resp.ReferenceDocument.Title != "Enflasyon raporu" {
		t.Errorf("reference = %+v", resp.ReferenceDocument)
	}
	if resp.TotalFound != len(resp.SimilarDocuments) {
		t.Errorf("total_found = %d, similar = %d", resp.TotalFound, len(resp.SimilarDocuments))
	}
	for _, d := range resp.SimilarDocuments {
		if d.ID == "doc-001" {
			t.Error("reference document returned as similar to itself")
		}
	}
}

func TestFindSimilar_NotFound(t *testing.T) {
	app := newTestApp(t)
	rr := app.do(t, http.MethodPost, "/api/search/similar", `{"document_id":"missing"}`)
	expectError(t, rr, http.StatusNotFound, "not_found_error")
}

func TestRelationships(t *testing.T) {
	app := newTestApp(t)
	seedNews(t, app)

	rr := app.do(t, http.MethodPost, "/api/search/relationships",
		`{"document_ids":["doc-001","doc-002","doc-003","missing"],"similarity_threshold":0}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rr.Code, rr.Body.String())
	}
	g := decode[graph.Graph](t, rr)
	if len(g.Nodes) != 3 {
		t.Errorf("nodes = %d, want 3", len(g.Nodes))
	}
	seen := map[[2]string]bool{}
	for _, e := range g.Edges {
		if e.Source >= e.Target {
			t.Errorf("edge %s -> %s is not canonical", e.Source, e.Target)
		}
		k := [2]string{e.Source, e.Target}
		if seen[k] {
			t.Errorf("duplicate edge %v", k)
		}
		seen[k] = true
	}

	rr = app.do(t, http.MethodPost, "/api/search/relationships", `{"document_ids":["doc-001"],"similarity_threshold":2}`)
	expectError(t, rr, http.StatusBadRequest, "invalid_request_error")
}

func TestExplore(t *testing.T) {
	app := newTestApp(t)
	seedNews(t, app)

	rr := app.do(t, http.MethodGet, "/api/search/explore?category=ekonomi&threshold=0", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", rr.Code, rr.Body.String())
	}
	g := decode[graph.Graph](t, rr)
	if len(g.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(g.Nodes))
	}

	rr = app.do(t, http.MethodGet, "/api/search/explore?category=spor", "")
	g = decode[graph.Graph](t, rr)
	if g.Nodes == nil || len(g.Nodes) != 0 || len(g.Edges) != 0 {
		t.Errorf("graph = %+v, want empty node and edge lists", g)
	}

	expectError(t, app.do(t, http.MethodGet, "/api/search/explore?limit=abc", ""), http.StatusBadRequest, "invalid_request_error")
}
