package channelsdvr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/collectarr/collectarr/internal/errors"
	"github.com/collectarr/collectarr/internal/models"
	"github.com/collectarr/collectarr/internal/retry"
)

func testClient(serverURL string) *Client {
	return New(Config{
		BaseURL: serverURL,
		Timeout: 5 * time.Second,
		RetryConfig: retry.Config{
			MaxAttempts: 1,
		},
	})
}

func TestNew(t *testing.T) {
	client := New(Config{BaseURL: "http://localhost:8089/"})
	if client == nil {
		t.Fatal("expected non-nil client")
	}
	if client.baseURL != "http://localhost:8089" {
		t.Errorf("trailing slash must be stripped, got %s", client.baseURL)
	}
}

func TestFetchInventory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/devices":
			json.NewEncoder(w).Encode([]Device{
				{DeviceID: "ANY", FriendlyName: "HDHomeRun"},
				{DeviceID: "M3U-1", FriendlyName: "Sports Provider"},
			})
		case "/devices/ANY/channels":
			json.NewEncoder(w).Encode([]wireChannel{
				{ID: "1", GuideName: "FOX", Number: "6", Callsign: "KTBC"},
			})
		case "/devices/M3U-1/channels":
			json.NewEncoder(w).Encode([]wireChannel{
				{ID: "2", GuideName: "ESPN", Number: "400"},
				{ID: "3", GuideName: "ESPN2", Number: "401"},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	inventory, warnings, err := testClient(server.URL).FetchInventory(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if len(inventory) != 3 {
		t.Fatalf("expected 3 channels, got %d", len(inventory))
	}
	if inventory[0].SourceID != "ANY" || inventory[0].SourceName != "HDHomeRun" {
		t.Errorf("channel not tagged with source: %+v", inventory[0])
	}
	if inventory[1].Name != "ESPN" || inventory[1].Number != "400" {
		t.Errorf("unexpected channel: %+v", inventory[1])
	}
}

func TestFetchInventoryPartialDeviceFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/devices":
			json.NewEncoder(w).Encode([]Device{
				{DeviceID: "OK", FriendlyName: "Good"},
				{DeviceID: "DEAD", FriendlyName: "Dead Tuner"},
			})
		case "/devices/OK/channels":
			json.NewEncoder(w).Encode([]wireChannel{{ID: "1", GuideName: "FOX"}})
		case "/devices/DEAD/channels":
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	inventory, warnings, err := testClient(server.URL).FetchInventory(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inventory) != 1 {
		t.Errorf("expected channels from the healthy source, got %d", len(inventory))
	}
	if len(warnings) != 1 {
		t.Errorf("expected 1 warning for the dead source, got %v", warnings)
	}
}

func TestFetchCollections(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dvr/collections/channels" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]wireCollection{
			{Slug: "sports", Name: "Sports", Items: []string{"1", "2"}},
			{Slug: "news", Name: "News", Items: nil},
		})
	}))
	defer server.Close()

	collections, err := testClient(server.URL).FetchCollections(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(collections) != 2 {
		t.Fatalf("expected 2 collections, got %d", len(collections))
	}
	if collections[0].ID != "sports" || len(collections[0].Members) != 2 {
		t.Errorf("unexpected collection: %+v", collections[0])
	}
}

func TestFetchCollectionNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := testClient(server.URL).FetchCollection(context.Background(), "ghost")
	if !errors.IsCollectionMissing(err) {
		t.Errorf("expected collection-missing error, got %v", err)
	}
}

func TestApplyCollection(t *testing.T) {
	var received wireCollection
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PUT" {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		if r.URL.Path != "/dvr/collections/channels/sports" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := testClient(server.URL).ApplyCollection(context.Background(), models.Collection{
		ID:      "sports",
		Name:    "Sports",
		Members: []string{"2", "1", "3"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"2", "1", "3"}
	if len(received.Items) != len(want) {
		t.Fatalf("items = %v, want %v", received.Items, want)
	}
	for i, id := range want {
		if received.Items[i] != id {
			t.Errorf("member order not preserved at %d: got %s want %s", i, received.Items[i], id)
		}
	}
}

func TestApplyCollectionEmptyMembers(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := make([]byte, r.ContentLength)
		r.Body.Read(raw)
		body = string(raw)
	}))
	defer server.Close()

	err := testClient(server.URL).ApplyCollection(context.Background(), models.Collection{
		ID: "empty", Name: "Empty",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body == "" || !json.Valid([]byte(body)) {
		t.Fatalf("invalid body: %q", body)
	}
	var got wireCollection
	json.Unmarshal([]byte(body), &got)
	if got.Items == nil {
		t.Error("items must serialize as an empty array, not null")
	}
}

func TestCreateCollection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/dvr/collections/channels" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		json.NewEncoder(w).Encode(wireCollection{
			Slug: "new-stuff", Name: payload["name"],
		})
	}))
	defer server.Close()

	col, err := testClient(server.URL).CreateCollection(context.Background(), "New Stuff")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if col.ID != "new-stuff" || col.Name != "New Stuff" {
		t.Errorf("unexpected created collection: %+v", col)
	}
}

func TestRetryOnServerError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode([]Device{})
	}))
	defer server.Close()

	client := New(Config{
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
		RetryConfig: retry.Config{
			MaxAttempts:       3,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        5 * time.Millisecond,
			BackoffMultiplier: 2.0,
		},
	})

	if _, err := client.FetchDevices(context.Background()); err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}
