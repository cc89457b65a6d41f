package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"bookline/internal/config"
	"bookline/internal/db"
	"bookline/internal/domain"
	"bookline/internal/engine"
	"bookline/internal/migrate"
	"bookline/internal/repo"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := New(Config{
		Engine: e,
		Auth:   AuthConfig{AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope %s: %v", string(data), err)
	}
	return env.Error.Code
}

func seedArtist(t *testing.T, e engine.Engine, name, category string) domain.Artist {
	t.Helper()
	a, err := e.CreateArtist(context.Background(), domain.Artist{Name: name, Category: category, Tier: 1}, "seed")
	if err != nil {
		t.Fatalf("seed artist: %v", err)
	}
	return a
}

func seedRecord(t *testing.T, e engine.Engine, category string) domain.ClientServiceRecord {
	t.Helper()
	nowStr := time.Now().UTC().Format(time.RFC3339)
	record, err := e.Repo.UpsertClientService(context.Background(), domain.ClientServiceRecord{
		ID:          "rec-1",
		BoardItemID: "item-1",
		Category:    category,
		ClientName:  "Novak wedding",
		CreatedAt:   nowStr,
		UpdatedAt:   nowStr,
	})
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
	return record
}

func TestRespondFlow(t *testing.T) {
	srv := newTestServer(t)
	admin := map[string]string{"X-Actor-Id": "coordinator"}
	a1 := seedArtist(t, srv.Engine, "Lena", domain.CategoryHair)
	seedArtist(t, srv.Engine, "Vera", domain.CategoryHair)
	record := seedRecord(t, srv.Engine, domain.CategoryHair)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/batches", map[string]any{
		"client_service_id": record.ID,
		"mode":              "broadcast",
	}, admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create batch status %d: %s", res.StatusCode, string(data))
	}
	var created BatchCreatedResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.ProposalCount != 2 {
		t.Fatalf("proposal_count = %d, want 2", created.ProposalCount)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/artists/"+a1.ID+"/proposals", nil, map[string]string{"X-Actor-Id": a1.ID})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list proposals status %d: %s", res.StatusCode, string(data))
	}
	var open []domain.OpenProposalView
	if err := json.Unmarshal(data, &open); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(open) != 1 || open[0].BatchID != created.BatchID {
		t.Fatalf("open = %+v", open)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/proposals/"+open[0].ProposalID+"/respond", map[string]any{
		"response": "yes",
	}, map[string]string{"X-Actor-Id": a1.ID})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("respond status %d: %s", res.StatusCode, string(data))
	}
	var p domain.Proposal
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Response == nil || *p.Response != "yes" {
		t.Fatalf("proposal = %+v", p)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/proposals/"+open[0].ProposalID+"/respond", map[string]any{
		"response": "no",
	}, map[string]string{"X-Actor-Id": a1.ID})
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "already_responded" {
		t.Fatalf("second respond status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/batches", map[string]any{
		"client_service_id": record.ID,
		"mode":              "single",
	}, admin)
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "open_batch_exists" {
		t.Fatalf("conflicting batch status %d: %s", res.StatusCode, string(data))
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/artists", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestAPIKeyRoles(t *testing.T) {
	srv := newTestServer(t)
	admin := map[string]string{"X-Actor-Id": "coordinator"}
	a1 := seedArtist(t, srv.Engine, "Mia", domain.CategoryMakeup)
	record := seedRecord(t, srv.Engine, domain.CategoryMakeup)

	key := "blk_test_key"
	err := srv.Engine.Repo.InsertAPIKey(context.Background(), domain.APIKey{
		ID:        "key-1",
		ActorID:   a1.ID,
		Role:      "artist",
		Name:      "mia key",
		KeyHash:   repo.HashAPIKey(key),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("seed api key: %v", err)
	}
	artistHeaders := map[string]string{"X-Api-Key": key}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/batches", map[string]any{
		"client_service_id": record.ID,
		"mode":              "single",
	}, admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create batch status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/artists/"+a1.ID+"/proposals", nil, artistHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("own proposals status %d: %s", res.StatusCode, string(data))
	}
	var open []domain.OpenProposalView
	if err := json.Unmarshal(data, &open); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("open = %+v", open)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/proposals/"+open[0].ProposalID+"/respond", map[string]any{
		"response": "no",
	}, artistHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("respond status %d: %s", res.StatusCode, string(data))
	}

	// Artist credentials cannot reach admin surfaces.
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/audit", nil, artistHeaders)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("audit status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/sweep", nil, artistHeaders)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("sweep status %d: %s", res.StatusCode, string(data))
	}

	// Invalid key is rejected outright.
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/artists", nil, map[string]string{"X-Api-Key": "nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad key status %d: %s", res.StatusCode, string(data))
	}
}
