package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/collectarr/collectarr/internal/errors"
	"github.com/collectarr/collectarr/internal/external/channelsdvr"
	"github.com/collectarr/collectarr/internal/external/dispatcharr"
	"github.com/collectarr/collectarr/internal/models"
	"github.com/collectarr/collectarr/internal/rules"
	apptesting "github.com/collectarr/collectarr/internal/testing"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeDVR struct {
	inventory   []models.Channel
	collections []models.Collection
	pingErr     error
}

func (f *fakeDVR) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeDVR) FetchDevices(ctx context.Context) ([]channelsdvr.Device, error) {
	return []channelsdvr.Device{
		{DeviceID: "ANY", FriendlyName: "HDHomeRun", Provider: "Silicondust"},
	}, nil
}

func (f *fakeDVR) FetchInventory(ctx context.Context) ([]models.Channel, []string, error) {
	return f.inventory, nil, nil
}

func (f *fakeDVR) FetchCollections(ctx context.Context) ([]models.Collection, error) {
	return f.collections, nil
}

func (f *fakeDVR) FetchCollection(ctx context.Context, slug string) (*models.Collection, error) {
	for _, col := range f.collections {
		if col.ID == slug {
			return &col, nil
		}
	}
	return nil, errors.CollectionMissingError(slug)
}

type fakeSyncer struct {
	report  *models.SyncReport
	err     error
	history []models.SyncLog
	running bool
}

func (f *fakeSyncer) SyncAll(ctx context.Context, trigger string) (*models.SyncReport, error) {
	return f.report, f.err
}

func (f *fakeSyncer) SyncRule(ctx context.Context, ruleID string) (*models.SyncReport, error) {
	return f.report, f.err
}

func (f *fakeSyncer) LastReport() *models.SyncReport       { return f.report }
func (f *fakeSyncer) Running() bool                        { return f.running }
func (f *fakeSyncer) History(int) ([]models.SyncLog, error) { return f.history, nil }

type fakeManager struct {
	groups []dispatcharr.EnabledGroup
}

func (f *fakeManager) FetchEnabledGroups(ctx context.Context) ([]dispatcharr.EnabledGroup, error) {
	return f.groups, nil
}

func (f *fakeManager) TestConnection(ctx context.Context) dispatcharr.TestResult {
	return dispatcharr.TestResult{Success: true, Message: "ok", EnabledGroups: len(f.groups)}
}

type testEnv struct {
	server *Server
	store  *rules.Store
	dvr    *fakeDVR
	syncer *fakeSyncer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := rules.NewStore(apptesting.TestDB(t))
	dvr := &fakeDVR{
		inventory: []models.Channel{
			{ID: "1", Name: "ESPN", Number: "400"},
			{ID: "2", Name: "FOX", Number: "6"},
		},
		collections: []models.Collection{
			{ID: "sports", Name: "Sports", Members: []string{"1", "9"}},
		},
	}
	syncer := &fakeSyncer{report: &models.SyncReport{Channels: 2}}
	server := NewServer(Config{
		Store:   store,
		Syncer:  syncer,
		DVR:     dvr,
		Manager: &fakeManager{groups: []dispatcharr.EnabledGroup{{ID: 1, Name: "Sports"}}},
	})
	return &testEnv{server: server, store: store, dvr: dvr, syncer: syncer}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)
	return w
}

func TestRuleCRUD(t *testing.T) {
	env := newTestEnv(t)

	create := env.request(t, "POST", "/api/rules", RuleRequest{
		Name:         "Sports",
		CollectionID: "sports",
		Patterns:     []string{"ESPN"},
		MatchTypes:   []string{"name"},
		SortOrder:    models.SortAlphaAsc,
	})
	require.Equal(t, http.StatusCreated, create.Code, create.Body.String())

	var created models.Rule
	require.NoError(t, json.Unmarshal(create.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.Enabled)

	list := env.request(t, "GET", "/api/rules", nil)
	require.Equal(t, http.StatusOK, list.Code)
	var listed []models.Rule
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)

	get := env.request(t, "GET", "/api/rules/"+created.ID, nil)
	require.Equal(t, http.StatusOK, get.Code)

	update := env.request(t, "PUT", "/api/rules/"+created.ID, RuleRequest{
		Name:         "Sports Updated",
		CollectionID: "sports",
		Patterns:     []string{"ESPN", "FOX"},
		MatchTypes:   []string{"name"},
	})
	require.Equal(t, http.StatusOK, update.Code, update.Body.String())
	var updated models.Rule
	require.NoError(t, json.Unmarshal(update.Body.Bytes(), &updated))
	assert.Equal(t, "Sports Updated", updated.Name)
	assert.Len(t, updated.Patterns, 2)

	del := env.request(t, "DELETE", "/api/rules/"+created.ID, nil)
	require.Equal(t, http.StatusOK, del.Code)

	missing := env.request(t, "GET", "/api/rules/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestCreateRuleValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, "POST", "/api/rules", RuleRequest{
		Name:         "No Patterns",
		CollectionID: "sports",
		MatchTypes:   []string{"name"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMergeRules(t *testing.T) {
	env := newTestEnv(t)

	a := models.Rule{Name: "A", CollectionID: "sports",
		Patterns: models.StringList{"ESPN"}, MatchTypes: models.StringList{"name"},
		SortOrder: models.SortAlphaAsc, Enabled: true}
	b := models.Rule{Name: "B", CollectionID: "sports",
		Patterns: models.StringList{"FOX"}, MatchTypes: models.StringList{"name"},
		SortOrder: models.SortNone, Enabled: true}
	require.NoError(t, env.store.Create(&a))
	require.NoError(t, env.store.Create(&b))

	w := env.request(t, "POST", "/api/rules/merge", MergeRequest{
		RuleIDs: []string{a.ID, b.ID},
		BaseID:  a.ID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var merged models.Rule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &merged))
	assert.Equal(t, "A (merged)", merged.Name)
	assert.Equal(t, models.StringList{"ESPN", "FOX"}, merged.Patterns)

	remaining, err := env.store.List()
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestMergeRulesDifferentCollections(t *testing.T) {
	env := newTestEnv(t)

	a := models.Rule{Name: "A", CollectionID: "sports",
		Patterns: models.StringList{"ESPN"}, MatchTypes: models.StringList{"name"}, Enabled: true}
	b := models.Rule{Name: "B", CollectionID: "news",
		Patterns: models.StringList{"CNN"}, MatchTypes: models.StringList{"name"}, Enabled: true}
	require.NoError(t, env.store.Create(&a))
	require.NoError(t, env.store.Create(&b))

	w := env.request(t, "POST", "/api/rules/merge", MergeRequest{
		RuleIDs: []string{a.ID, b.ID},
		BaseID:  a.ID,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListChannels(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, "GET", "/api/channels", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Total    int              `json:"total"`
		Channels []models.Channel `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
}

func TestCollectionDetailEnrichment(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, "GET", "/api/collections/sports", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var detail CollectionDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	require.Len(t, detail.Channels, 2)
	assert.Equal(t, "ESPN", detail.Channels[0].Name)
	// Member absent from the inventory keeps its ID as display name.
	assert.Equal(t, "9", detail.Channels[1].Name)
}

func TestCollectionNotFound(t *testing.T) {
	env := newTestEnv(t)
	w := env.request(t, "GET", "/api/collections/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListSources(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, "GET", "/api/sources", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var sources []SourceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sources))
	require.Len(t, sources, 1)
	assert.Equal(t, "ANY", sources[0].DeviceID)
	assert.Equal(t, "Silicondust", sources[0].Provider)
}

func TestPreview(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, "POST", "/api/preview", PreviewRequest{
		Patterns:  []string{"ESPN"},
		SortOrder: models.SortAlphaAsc,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result struct {
		Total    int              `json:"total"`
		Channels []models.Channel `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, "ESPN", result.Channels[0].Name)
}

func TestTriggerSync(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, "POST", "/api/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report models.SyncReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Channels)
}

func TestTriggerSyncConflict(t *testing.T) {
	env := newTestEnv(t)
	env.syncer.err = errors.New(errors.CodeSyncInProgress, "busy")
	env.syncer.report = nil

	w := env.request(t, "POST", "/api/sync", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSyncStatus(t *testing.T) {
	env := newTestEnv(t)
	env.syncer.running = true

	w := env.request(t, "GET", "/api/sync/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status struct {
		Running bool `json:"running"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Running)
}

func TestSyncHistory(t *testing.T) {
	env := newTestEnv(t)
	env.syncer.history = []models.SyncLog{{Trigger: "manual", Status: "success"}}

	w := env.request(t, "GET", "/api/sync/history?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var logs []models.SyncLog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	assert.Len(t, logs, 1)
}

func TestListGroups(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, "GET", "/api/groups", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Enabled bool                       `json:"enabled"`
		Groups  []dispatcharr.EnabledGroup `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Enabled)
	assert.Len(t, resp.Groups, 1)
}

func TestListGroupsNoManager(t *testing.T) {
	store := rules.NewStore(apptesting.TestDB(t))
	server := NewServer(Config{
		Store:  store,
		Syncer: &fakeSyncer{},
		DVR:    &fakeDVR{},
	})
	env := &testEnv{server: server, store: store}

	w := env.request(t, "GET", "/api/groups", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Enabled bool `json:"enabled"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Enabled)
}

func TestTestConnection(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, "GET", "/api/test-connection", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ConnectionTestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.DVR.Reachable)
	require.NotNil(t, resp.Dispatcharr)
	assert.True(t, resp.Dispatcharr.Success)
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, "GET", "/api/rules", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
