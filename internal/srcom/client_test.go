package srcom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClient(serverURL string) *Client {
	return NewClient(WithBaseURL(serverURL), WithMinInterval(0))
}

func runDocJSON(id string) map[string]interface{} {
	return map[string]interface{}{
		"id":      id,
		"weblink": "https://www.speedrun.com/runs/" + id,
		"game":    "gam3id",
		"category": map[string]interface{}{
			"data": map[string]interface{}{"id": "cat1", "name": "Any%"},
		},
		"level": map[string]interface{}{
			"data": []interface{}{},
		},
		"players": map[string]interface{}{
			"data": []interface{}{
				map[string]interface{}{
					"rel":   "user",
					"id":    "usr1",
					"names": map[string]interface{}{"international": "speedster"},
					"assets": map[string]interface{}{
						"image": map[string]interface{}{"uri": "https://img/usr1"},
					},
				},
			},
		},
		"platform": map[string]interface{}{
			"data": map[string]interface{}{"id": "plat1", "name": "PC"},
		},
		"status":    map[string]interface{}{"status": "new"},
		"submitted": "2024-03-01T10:30:00Z",
		"times":     map[string]interface{}{"primary_t": 3723.5},
		"videos": map[string]interface{}{
			"links": []interface{}{
				map[string]interface{}{"uri": "https://youtu.be/" + id},
			},
		},
	}
}

func writeRunsPage(w http.ResponseWriter, ids []string, next string) {
	page := map[string]interface{}{
		"data": func() []interface{} {
			docs := make([]interface{}, len(ids))
			for i, id := range ids {
				docs[i] = runDocJSON(id)
			}
			return docs
		}(),
		"pagination": map[string]interface{}{
			"size": len(ids),
			"links": func() []interface{} {
				if next == "" {
					return nil
				}
				return []interface{}{map[string]interface{}{"rel": "next", "uri": next}}
			}(),
		},
	}
	json.NewEncoder(w).Encode(page)
}

func TestFetchRunsFollowsPagination(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			writeRunsPage(w, []string{"r20", "r21"}, "")
			return
		}
		ids := make([]string, runsPageSize)
		for i := range ids {
			ids[i] = fmt.Sprintf("r%d", i)
		}
		writeRunsPage(w, ids, server.URL+"/runs?page=2")
	}))
	defer server.Close()

	client := testClient(server.URL)
	runs, err := client.FetchRuns(context.Background(), "gam3id", StatusNew)
	if err != nil {
		t.Fatalf("fetch runs: %v", err)
	}

	if len(runs) != runsPageSize+2 {
		t.Fatalf("expected %d runs across pages, got %d", runsPageSize+2, len(runs))
	}
	if runs[0].ID != "r0" || runs[len(runs)-1].ID != "r21" {
		t.Fatalf("order not preserved: first=%s last=%s", runs[0].ID, runs[len(runs)-1].ID)
	}

	r := runs[0]
	if r.Player != "speedster" || r.Category != "Any%" || r.Platform != "PC" {
		t.Fatalf("embeds not flattened: %+v", r)
	}
	if r.TimeSeconds != 3723.5 || r.VideoURI != "https://youtu.be/r0" {
		t.Fatalf("run fields wrong: %+v", r)
	}
	if r.Submitted.IsZero() {
		t.Fatal("submitted timestamp not parsed")
	}
}

func TestFetchRunsStopsAtPageCeiling(t *testing.T) {
	var server *httptest.Server
	requests := 0
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		ids := make([]string, runsPageSize)
		for i := range ids {
			ids[i] = fmt.Sprintf("p%d-r%d", requests, i)
		}
		// Always offer another page
		writeRunsPage(w, ids, server.URL+fmt.Sprintf("/runs?page=%d", requests+1))
	}))
	defer server.Close()

	client := testClient(server.URL)
	runs, err := client.FetchRuns(context.Background(), "gam3id", StatusNew)
	if err != nil {
		t.Fatalf("fetch runs: %v", err)
	}
	if requests != maxRunPages {
		t.Fatalf("expected %d page fetches, got %d", maxRunPages, requests)
	}
	if len(runs) != maxRunPages*runsPageSize {
		t.Fatalf("unexpected run count %d", len(runs))
	}
}

func TestRateLimitRetriesOnceThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeRunsPage(w, []string{"r1"}, "")
	}))
	defer server.Close()

	client := testClient(server.URL)
	runs, err := client.FetchRuns(context.Background(), "gam3id", StatusNew)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(runs) != 1 || attempts != 2 {
		t.Fatalf("runs=%d attempts=%d", len(runs), attempts)
	}
}

func TestPersistentRateLimitIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.FetchRuns(context.Background(), "gam3id", StatusNew)

	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientError, got %v", err)
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.FetchRuns(context.Background(), "gam3id", StatusNew)

	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientError, got %v", err)
	}
	if transient.Status != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", transient.Status)
	}
}

func TestClientErrorIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.FetchRuns(context.Background(), "bogus", StatusNew)

	var permanent *PermanentError
	if !errors.As(err, &permanent) {
		t.Fatalf("expected PermanentError, got %v", err)
	}
}

func TestMalformedBodyIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.FetchRuns(context.Background(), "gam3id", StatusNew)

	var permanent *PermanentError
	if !errors.As(err, &permanent) {
		t.Fatalf("expected PermanentError, got %v", err)
	}
}

func TestConnectionFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := testClient(url)
	_, err := client.FetchRuns(context.Background(), "gam3id", StatusNew)

	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientError, got %v", err)
	}
}

func TestResolveGameReturnsBestMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") != "Destiny 2" {
			t.Errorf("unexpected name query: %q", r.URL.Query().Get("name"))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []interface{}{
				map[string]interface{}{
					"id":           "d2id",
					"abbreviation": "destiny2",
					"weblink":      "https://www.speedrun.com/destiny2",
					"names":        map[string]interface{}{"international": "Destiny 2"},
				},
			},
		})
	}))
	defer server.Close()

	client := testClient(server.URL)
	game, err := client.ResolveGame(context.Background(), "Destiny 2")
	if err != nil {
		t.Fatalf("resolve game: %v", err)
	}
	if game.ID != "d2id" || game.Name() != "Destiny 2" {
		t.Fatalf("unexpected game: %+v", game)
	}
}

func TestResolveGameNoMatchIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.ResolveGame(context.Background(), "No Such Game")

	var permanent *PermanentError
	if !errors.As(err, &permanent) {
		t.Fatalf("expected PermanentError for unknown game, got %v", err)
	}
}

func TestGuestPlayerName(t *testing.T) {
	doc := runDoc{}
	doc.Players.Data = []playerDoc{{Rel: "guest", Name: "anon-runner"}}
	run := doc.toRun()
	if run.Player != "anon-runner" {
		t.Fatalf("expected guest name, got %q", run.Player)
	}
}
