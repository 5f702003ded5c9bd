package tryon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"proteus/internal/api"
	"proteus/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	session, err := api.NewSession(api.Options{BaseURL: server.URL, Token: "tok"})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	client, err := New(Options{Session: session})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestCreateRecord(t *testing.T) {
	var gotBody map[string]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/vton" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]string{"id": "r1", "user_id": "u1", "user_snap": gotBody["user_snap"]})
	}))

	rec, err := client.Create(context.Background(), CreateParams{UserSnapKey: "k1", UncleanedOutfitKey: "k2"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID != "r1" {
		t.Fatalf("id = %q, want r1", rec.ID)
	}
	if gotBody["user_snap"] != "k1" || gotBody["uncleaned_outfit"] != "k2" {
		t.Fatalf("request body = %v", gotBody)
	}
}

func TestCreateRecordFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := client.Create(context.Background(), CreateParams{})
	if !errors.Is(err, domain.ErrRecordCreateFailed) {
		t.Fatalf("error = %v, want ErrRecordCreateFailed", err)
	}
	if !errors.Is(err, domain.ErrServerFailure) {
		t.Fatalf("error = %v, should retain server-failure classification", err)
	}
}

func TestListEnvelopeShapes(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		wantLen int
		wantErr bool
	}{
		{"bare array", `[{"id":"r1"},{"id":"r2"}]`, 2, false},
		{"data envelope", `{"data":[{"id":"r1"}]}`, 1, false},
		{"empty array", `[]`, 0, false},
		{"empty envelope", `{"data":[]}`, 0, false},
		{"wrong shape", `{"items":[{"id":"r1"}]}`, 0, true},
		{"scalar", `42`, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.URL.Query().Get("user_id"); got != "u1" {
					t.Errorf("user_id query = %q, want u1", got)
				}
				fmt.Fprint(w, tc.payload)
			}))

			records, err := client.List(context.Background(), ListQuery{UserID: "u1"})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected parse error for %s", tc.payload)
				}
				return
			}
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(records) != tc.wantLen {
				t.Fatalf("len = %d, want %d", len(records), tc.wantLen)
			}
		})
	}
}

func TestUpdateAndDeletePaths(t *testing.T) {
	var gotMethod, gotPath string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		json.NewEncoder(w).Encode(map[string]string{"id": "r1"})
	}))

	if _, err := client.Update(context.Background(), "r1", UpdateParams{}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/vton/r1" {
		t.Fatalf("update hit %s %s", gotMethod, gotPath)
	}

	if err := client.Delete(context.Background(), "r1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/vton/r1" {
		t.Fatalf("delete hit %s %s", gotMethod, gotPath)
	}
}

func TestEnqueueJobPayloads(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody = map[string]string{}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]string{"id": "j1", "vton_id": gotBody["vton_id"]})
	}))

	job, err := client.EnqueueWeaver(context.Background(), "r1", "k1", "k2")
	if err != nil {
		t.Fatalf("EnqueueWeaver: %v", err)
	}
	if gotPath != "/jobs/weaver" {
		t.Fatalf("weaver path = %q", gotPath)
	}
	if gotBody["vton_id"] != "r1" || gotBody["user_snap_s3"] != "k1" || gotBody["uncleaned_outfit_s3"] != "k2" {
		t.Fatalf("weaver body = %v", gotBody)
	}
	if job.TryOnID != "r1" {
		t.Fatalf("job TryOnID = %q", job.TryOnID)
	}

	if _, err := client.EnqueueTailor(context.Background(), "r1", "k2"); err != nil {
		t.Fatalf("EnqueueTailor: %v", err)
	}
	if gotPath != "/jobs/tailor" {
		t.Fatalf("tailor path = %q", gotPath)
	}
	if gotBody["vton_id"] != "r1" || gotBody["uncleaned_outfit_s3"] != "k2" {
		t.Fatalf("tailor body = %v", gotBody)
	}
	if _, ok := gotBody["user_snap_s3"]; ok {
		t.Fatalf("tailor body must not carry user_snap_s3: %v", gotBody)
	}
}

func TestEnqueueFailureClassification(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue down", http.StatusInternalServerError)
	}))

	_, err := client.EnqueueWeaver(context.Background(), "r1", "k1", "k2")
	if !errors.Is(err, domain.ErrJobEnqueueFailed) {
		t.Fatalf("error = %v, want ErrJobEnqueueFailed", err)
	}
}
