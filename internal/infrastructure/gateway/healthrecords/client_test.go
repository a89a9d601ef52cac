package healthrecords

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
)

func TestGetSnapshotForwardsCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health/medical-records/rec-1" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer abc" {
			t.Fatalf("expected credential forwarded verbatim, got %q", got)
		}
		_, _ = w.Write([]byte(`{"id":"rec-1","fileUrl":"/media/download/scan.pdf","userId":"user-1","title":"Checkup"}`))
	}))
	defer srv.Close()

	client := New(srv.URL+"/", Options{})
	snapshot, err := client.GetSnapshot(context.Background(), "rec-1", "Bearer abc")
	if err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if snapshot.FileURL != "/media/download/scan.pdf" || snapshot.OwnerID != "user-1" || snapshot.Title != "Checkup" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestGetSnapshotAcceptsDataEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"fileUrl":"https://media/x.png","userId":"u-2"}}`))
	}))
	defer srv.Close()

	snapshot, err := New(srv.URL, Options{}).GetSnapshot(context.Background(), "rec-2", "")
	if err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if snapshot.ID != "rec-2" || snapshot.FileURL != "https://media/x.png" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestGetSnapshotMapsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "record not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL, Options{}).GetSnapshot(context.Background(), "missing", "")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWriteBackSendsDiscriminatedPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/health/medical-records/rec-1/ai-callback" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := New(srv.URL, Options{}).WriteBack(context.Background(), "rec-1", "Bearer abc", domain.FailedWriteBack("download failed"))
	if err != nil {
		t.Fatalf("WriteBack() error = %v", err)
	}
	if got["status"] != "failed" || got["errorMessage"] != "download failed" {
		t.Fatalf("unexpected payload: %v", got)
	}
	if _, ok := got["extractedData"]; ok {
		t.Fatalf("failed payload must not carry extractedData: %v", got)
	}
}

func TestWriteBackServerErrorIsTemporary(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL, Options{}).WriteBack(context.Background(), "rec-1", "", domain.ProcessedWriteBack("t", domain.EmptyHealthData()))
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("write-back must be attempted once, got %d", calls)
	}
}
