package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/collectarr/collectarr/internal/database"
	"github.com/collectarr/collectarr/internal/errors"
	"github.com/collectarr/collectarr/internal/models"
	"github.com/collectarr/collectarr/internal/preview"
	"github.com/collectarr/collectarr/internal/reconciler"
	"github.com/gin-gonic/gin"
)

func (s *Server) healthCheck(c *gin.Context) {
	if err := database.HealthCheck(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status:        "running",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		SyncRunning:   s.syncer.Running(),
		LastSync:      s.syncer.LastReport(),
	})
}

func (s *Server) testConnection(c *gin.Context) {
	resp := ConnectionTestResponse{}

	if err := s.dvr.Ping(c.Request.Context()); err != nil {
		resp.DVR = ConnectionState{Error: err.Error()}
	} else {
		resp.DVR = ConnectionState{Reachable: true}
	}

	if s.manager != nil {
		result := s.manager.TestConnection(c.Request.Context())
		resp.Dispatcharr = &dispatcharrTestSummary{
			Success:       result.Success,
			Message:       result.Message,
			EnabledGroups: result.EnabledGroups,
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) listRules(c *gin.Context) {
	rules, err := s.store.List()
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (s *Server) getRule(c *gin.Context) {
	rule, err := s.store.Get(c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (s *Server) createRule(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}

	rule := req.toModel()
	if err := s.store.Create(&rule); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (s *Server) updateRule(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}

	rule := req.toModel()
	rule.ID = c.Param("id")
	if err := s.store.Update(&rule); err != nil {
		s.renderError(c, err)
		return
	}

	updated, err := s.store.Get(rule.ID)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteRule(c *gin.Context) {
	if err := s.store.Delete(c.Param("id")); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

func (s *Server) syncRule(c *gin.Context) {
	report, err := s.syncer.SyncRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// mergeRules consolidates rules sharing a collection into one rule.
func (s *Server) mergeRules(c *gin.Context) {
	var req MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}
	if len(req.RuleIDs) < 2 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "merge needs at least two rules"})
		return
	}

	var base *models.Rule
	merging := make([]models.Rule, 0, len(req.RuleIDs))
	for _, id := range req.RuleIDs {
		rule, err := s.store.Get(id)
		if err != nil {
			s.renderError(c, err)
			return
		}
		merging = append(merging, *rule)
		if id == req.BaseID {
			base = rule
		}
	}
	if base == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "base_id must be one of rule_ids"})
		return
	}
	for _, rule := range merging {
		if rule.CollectionID != base.CollectionID {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "merged rules must target the same collection",
			})
			return
		}
	}

	merged := reconciler.Merge(merging, *base)
	if err := s.store.ReplaceMerged(&merged, req.RuleIDs); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, merged)
}

func (s *Server) listChannels(c *gin.Context) {
	inventory, warnings, err := s.dvr.FetchInventory(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":    len(inventory),
		"channels": inventory,
		"warnings": warnings,
	})
}

func (s *Server) listCollections(c *gin.Context) {
	collections, err := s.dvr.FetchCollections(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}

	summaries := make([]CollectionSummary, 0, len(collections))
	for _, col := range collections {
		summaries = append(summaries, CollectionSummary{
			Slug:  col.ID,
			Name:  col.Name,
			Total: len(col.Members),
		})
	}
	c.JSON(http.StatusOK, summaries)
}

// getCollection returns a collection with its members resolved to
// channel details. Members missing from the inventory keep their ID as
// the display name.
func (s *Server) getCollection(c *gin.Context) {
	collection, err := s.dvr.FetchCollection(c.Request.Context(), c.Param("slug"))
	if err != nil {
		s.renderError(c, err)
		return
	}

	inventory, _, err := s.dvr.FetchInventory(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	byID := make(map[string]models.Channel, len(inventory))
	for _, ch := range inventory {
		byID[ch.ID] = ch
	}

	detail := CollectionDetail{
		Slug:     collection.ID,
		Name:     collection.Name,
		Channels: make([]CollectionChannel, 0, len(collection.Members)),
	}
	for _, id := range collection.Members {
		entry := CollectionChannel{ID: id, Name: id}
		if ch, ok := byID[id]; ok {
			entry.Name = ch.Name
			entry.Number = ch.Number
			entry.Callsign = ch.Callsign
			entry.Affiliate = ch.Affiliate
		}
		detail.Channels = append(detail.Channels, entry)
	}
	detail.Total = len(detail.Channels)

	c.JSON(http.StatusOK, detail)
}

func (s *Server) listSources(c *gin.Context) {
	devices, err := s.dvr.FetchDevices(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}

	sources := make([]SourceResponse, 0, len(devices))
	for _, d := range devices {
		provider := d.Provider
		if provider == "" {
			provider = "Unknown"
		}
		sources = append(sources, SourceResponse{
			DeviceID: d.DeviceID,
			Name:     d.FriendlyName,
			Provider: provider,
		})
	}
	c.JSON(http.StatusOK, sources)
}

func (s *Server) listGroups(c *gin.Context) {
	if s.manager == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false, "groups": []interface{}{}})
		return
	}
	groups, err := s.manager.FetchEnabledGroups(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true, "groups": groups})
}

func (s *Server) previewRule(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}

	matchTypes := req.MatchTypes
	if len(matchTypes) == 0 {
		matchTypes = []string{string(models.MatchTypeName)}
	}
	sortOrder := req.SortOrder
	if sortOrder == "" {
		sortOrder = models.SortNone
	}
	rule := models.Rule{
		Name:           "preview",
		Patterns:       models.StringList(req.Patterns),
		MatchTypes:     models.StringList(matchTypes),
		SortOrder:      sortOrder,
		IncludeSources: models.StringList(req.IncludeSources),
		ExcludeSources: models.StringList(req.ExcludeSources),
	}

	inventory, warnings, err := s.dvr.FetchInventory(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}

	result := preview.Analyze(rule, inventory)
	result.Warnings = append(result.Warnings, warnings...)
	c.JSON(http.StatusOK, result)
}

func (s *Server) triggerSync(c *gin.Context) {
	report, err := s.syncer.SyncAll(c.Request.Context(), "manual")
	if err != nil {
		if errors.GetErrorCode(err) == errors.CodeSyncInProgress {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "sync already in progress"})
			return
		}
		// Partial reports still carry useful error detail.
		if report != nil {
			c.JSON(http.StatusBadGateway, report)
			return
		}
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) syncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running":     s.syncer.Running(),
		"last_report": s.syncer.LastReport(),
	})
}

func (s *Server) syncHistory(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	logs, err := s.syncer.History(limit)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

// renderError maps AppError codes to HTTP status codes.
func (s *Server) renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errors.GetErrorCode(err) {
	case errors.CodeNotFound, errors.CodeCollectionMissing:
		status = http.StatusNotFound
	case errors.CodeValidation, errors.CodeInvalidInput:
		status = http.StatusBadRequest
	case errors.CodeSyncInProgress:
		status = http.StatusConflict
	case errors.CodeUnauthorized:
		status = http.StatusBadGateway
	case errors.CodeServiceTimeout, errors.CodeServiceUnavailable, errors.CodeExternalService:
		status = http.StatusBadGateway
	}

	s.log.WithFields(map[string]interface{}{
		"path":   c.Request.URL.Path,
		"status": status,
	}).Error("Request failed", err)

	c.JSON(status, ErrorResponse{Error: err.Error()})
}
