package recipes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
)

func TestListCandidatesNormalizesCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/recipes" || r.URL.Query().Get("limit") != "5" {
			t.Fatalf("unexpected request: %s", r.URL.String())
		}
		_, _ = w.Write([]byte(`{"data":[
			{"id":"r-1","title":"Oat porridge","ingredients":["oats","milk"],"nutrition":{"kcal":320},"author":"x"},
			{"id":42,"title":"Lentil soup"},
			{"title":"no id"}
		]}`))
	}))
	defer srv.Close()

	got, err := New(srv.URL, 0, nil).ListCandidates(context.Background(), 5)
	if err != nil {
		t.Fatalf("ListCandidates() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].ID != "r-1" || string(got[0].Ingredients) != `["oats","milk"]` {
		t.Fatalf("unexpected first candidate: %+v", got[0])
	}
	if got[1].ID != "42" || string(got[1].Nutrition) != "{}" || string(got[1].Ingredients) != "[]" {
		t.Fatalf("unexpected second candidate: %+v", got[1])
	}
}

func TestListCandidatesUsesVersionedBase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/recipes" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	got, err := New(srv.URL+"/api/v1", 0, nil).ListCandidates(context.Background(), 3)
	if err != nil || len(got) != 0 {
		t.Fatalf("ListCandidates() = %v, %v", got, err)
	}
}

func TestListCandidatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL, 0, nil).ListCandidates(context.Background(), 5)
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}
