package e2e

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"pocketlm/internal/manager"
	"pocketlm/pkg/types"
)

func payload100() []byte { return bytes.Repeat([]byte{0x42}, 100) }

// TestE2E_DownloadLoadGenerateDelete walks a model through its whole life:
// download with progress, load, a chat turn over HTTP, delete while loaded.
func TestE2E_DownloadLoadGenerateDelete(t *testing.T) {
	s := openStack(t, t.TempDir(), chunkTransport{payload: payload100(), steps: []int{25, 50, 100}})
	ctx := context.Background()

	// Download with progress 0.25, 0.5, 1.0.
	var fractions []float64
	path, err := s.downloads.Download(ctx, "m1", func(p types.Progress) { fractions = append(fractions, p.Fraction) })
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if path == "" {
		t.Fatal("expected a local path")
	}
	want := []float64{0.25, 0.5, 1}
	if len(fractions) != len(want) {
		t.Fatalf("fractions = %v, want %v", fractions, want)
	}
	for i := range want {
		if fractions[i] != want[i] {
			t.Fatalf("fractions = %v, want %v", fractions, want)
		}
	}
	var models types.ModelsResponse
	if code := s.call(t, http.MethodGet, "/models", "", &models); code != http.StatusOK {
		t.Fatalf("models status=%d", code)
	}
	if models.Models[0].Status != types.StatusDownloaded || models.Models[0].LocalPath != path {
		t.Fatalf("unexpected model state: %+v", models.Models[0])
	}

	// Load and send one prompt.
	var st types.StatusResponse
	if code := s.call(t, http.MethodPost, "/models/m1/load", "", &st); code != http.StatusOK {
		t.Fatalf("load status=%d", code)
	}
	session, _ := s.sessions.Active()
	var sent types.SendResponse
	if code := s.call(t, http.MethodPost, "/sessions/"+session.ID+"/messages", `{"prompt":"hi"}`, &sent); code != http.StatusOK {
		t.Fatalf("send status=%d", code)
	}
	if sent.Reply.Content == "" || sent.Reply.Role != types.RoleModel {
		t.Fatalf("unexpected reply: %+v", sent.Reply)
	}
	if code := s.call(t, http.MethodGet, "/status", "", &st); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if st.State != string(manager.StateLoaded) {
		t.Fatalf("state after generate = %s", st.State)
	}

	// Deleting the loaded model unloads it; prompts then need a model again.
	if code := s.call(t, http.MethodDelete, "/models/m1", "", nil); code != http.StatusNoContent {
		t.Fatalf("delete status=%d", code)
	}
	if snap := s.models.Snapshot(); snap.State != manager.StateUnloaded {
		t.Fatalf("state after delete = %s", snap.State)
	}
	if _, err := s.models.Generate(ctx, "hi"); !manager.IsNotLoaded(err) {
		t.Fatalf("expected NotLoaded, got %v", err)
	}
	if code := s.call(t, http.MethodPost, "/sessions/"+session.ID+"/messages", `{"prompt":"again"}`, nil); code != http.StatusConflict {
		t.Fatalf("send without model status=%d", code)
	}
}

// TestE2E_RestartRoundTrip checks that sessions, histories and model statuses
// survive closing and reopening the data directory.
func TestE2E_RestartRoundTrip(t *testing.T) {
	dir := t.TempDir()
	transport := chunkTransport{payload: payload100(), steps: []int{100}}
	s := openStack(t, dir, transport)

	if _, err := s.downloads.Download(context.Background(), "m1", nil); err != nil {
		t.Fatalf("download: %v", err)
	}
	if code := s.call(t, http.MethodPost, "/models/m1/load", "", nil); code != http.StatusOK {
		t.Fatalf("load status=%d", code)
	}
	first, _ := s.sessions.Active()
	if code := s.call(t, http.MethodPost, "/sessions/"+first.ID+"/messages", `{"prompt":"write a haiku"}`, nil); code != http.StatusOK {
		t.Fatalf("send status=%d", code)
	}
	var second types.SessionResponse
	if code := s.call(t, http.MethodPost, "/sessions", "", &second); code != http.StatusCreated {
		t.Fatalf("create status=%d", code)
	}
	if code := s.call(t, http.MethodPatch, "/sessions/"+second.ID, `{"name":"Scratch"}`, nil); code != http.StatusOK {
		t.Fatalf("rename status=%d", code)
	}
	s.close()

	r := openStack(t, dir, transport)
	var list types.SessionsResponse
	if code := r.call(t, http.MethodGet, "/sessions", "", &list); code != http.StatusOK {
		t.Fatalf("sessions status=%d", code)
	}
	if len(list.Sessions) != 2 {
		t.Fatalf("sessions after restart = %d", len(list.Sessions))
	}
	// The most recently created session is active after a restart.
	if list.Active != second.ID || list.Sessions[0].Name != "Scratch" {
		t.Fatalf("unexpected sessions after restart: %+v", list)
	}
	if list.Sessions[1].Name != "Waves fold into light, salt remembers" {
		t.Fatalf("auto title not persisted: %q", list.Sessions[1].Name)
	}

	var hist types.MessagesResponse
	if code := r.call(t, http.MethodGet, "/sessions/"+first.ID+"/messages", "", &hist); code != http.StatusOK {
		t.Fatalf("history status=%d", code)
	}
	if len(hist.Messages) != 2 || hist.Messages[0].Role != types.RoleUser || hist.Messages[1].Role != types.RoleModel {
		t.Fatalf("unexpected history: %+v", hist.Messages)
	}
	if hist.Messages[1].ModelName != "m1" {
		t.Fatalf("model name lost: %+v", hist.Messages[1])
	}

	// The artifact is still known; no model is loaded in the new process.
	var models types.ModelsResponse
	r.call(t, http.MethodGet, "/models", "", &models)
	if models.Models[0].Status != types.StatusDownloaded {
		t.Fatalf("status after restart = %s", models.Models[0].Status)
	}
	var st types.StatusResponse
	r.call(t, http.MethodGet, "/status", "", &st)
	if st.State != string(manager.StateUnloaded) {
		t.Fatalf("state after restart = %s", st.State)
	}
}
