package dispatcharr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/collectarr/collectarr/internal/errors"
	"github.com/collectarr/collectarr/internal/logger"
)

// Access tokens nominally last 30 minutes; refresh a little early so an
// in-flight request never carries a token that dies mid-call.
const tokenLifetime = 25 * time.Minute

// Client talks to a Dispatcharr IPTV manager using JWT auth.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *logger.Logger

	mu             sync.Mutex
	accessToken    string
	refreshToken   string
	tokenExpiresAt time.Time
}

// Config holds Dispatcharr client configuration
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
	Logger   *logger.Logger
}

// Group represents a Dispatcharr channel group
type Group struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	ChannelCount    int    `json:"channel_count"`
	M3UAccountCount int    `json:"m3u_account_count"`
}

// EnabledGroup is a group eligible for dynamic rules: either a local
// group with channels or a provider group behind an active, enabled
// M3U account link.
type EnabledGroup struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	ChannelCount   int    `json:"channel_count"`
	M3UAccountID   *int   `json:"m3u_account_id"`
	M3UAccountName string `json:"m3u_account_name"`
}

// M3UAccount represents a Dispatcharr provider account
type M3UAccount struct {
	ID            int         `json:"id"`
	Name          string      `json:"name"`
	IsActive      bool        `json:"is_active"`
	ChannelGroups []GroupLink `json:"channel_groups"`
}

// GroupLink binds an M3U account to a channel group
type GroupLink struct {
	ChannelGroup int  `json:"channel_group"`
	Enabled      bool `json:"enabled"`
}

// GroupChannel is a channel inside a Dispatcharr group
type GroupChannel struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// tokenResponse is the JWT token endpoint payload
type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// New creates a new Dispatcharr client
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: log,
	}
}

// Authenticate obtains a fresh token pair with the configured
// credentials.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	payload := map[string]string{
		"username": c.username,
		"password": c.password,
	}

	var tokens tokenResponse
	if err := c.postJSON(ctx, "/api/accounts/token/", payload, &tokens, ""); err != nil {
		return errors.UnauthorizedError("dispatcharr", err)
	}
	if tokens.Access == "" {
		return errors.UnauthorizedError("dispatcharr", fmt.Errorf("no access token in response"))
	}

	c.accessToken = tokens.Access
	c.refreshToken = tokens.Refresh
	c.tokenExpiresAt = time.Now().Add(tokenLifetime)
	c.logger.Debug("Authenticated with Dispatcharr")
	return nil
}

// refreshLocked renews the access token, falling back to a full
// re-authentication when the refresh token is missing or rejected.
func (c *Client) refreshLocked(ctx context.Context) error {
	if c.refreshToken == "" {
		return c.authenticateLocked(ctx)
	}

	payload := map[string]string{"refresh": c.refreshToken}
	var tokens tokenResponse
	err := c.postJSON(ctx, "/api/accounts/token/refresh/", payload, &tokens, "")
	if err != nil || tokens.Access == "" {
		c.logger.Warn("Token refresh failed, re-authenticating")
		return c.authenticateLocked(ctx)
	}

	c.accessToken = tokens.Access
	c.tokenExpiresAt = time.Now().Add(tokenLifetime)
	return nil
}

// token returns a valid access token, authenticating or refreshing as
// needed.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken == "" {
		if err := c.authenticateLocked(ctx); err != nil {
			return "", err
		}
	} else if time.Now().After(c.tokenExpiresAt) {
		if err := c.refreshLocked(ctx); err != nil {
			return "", err
		}
	}
	return c.accessToken, nil
}

// FetchGroups returns all channel groups.
func (c *Client) FetchGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	if err := c.getAuthed(ctx, "/api/channels/groups/", &groups); err != nil {
		return nil, errors.ExternalServiceError("dispatcharr", "failed to fetch groups", err)
	}
	return groups, nil
}

// FetchGroup returns one channel group by ID.
func (c *Client) FetchGroup(ctx context.Context, groupID int) (*Group, error) {
	var group Group
	endpoint := fmt.Sprintf("/api/channels/groups/%d/", groupID)
	if err := c.getAuthed(ctx, endpoint, &group); err != nil {
		return nil, errors.ExternalServiceError("dispatcharr", "failed to fetch group", err)
	}
	return &group, nil
}

// FetchM3UAccounts returns all provider accounts.
func (c *Client) FetchM3UAccounts(ctx context.Context) ([]M3UAccount, error) {
	var accounts []M3UAccount
	if err := c.getAuthed(ctx, "/api/m3u/accounts/", &accounts); err != nil {
		return nil, errors.ExternalServiceError("dispatcharr", "failed to fetch m3u accounts", err)
	}
	return accounts, nil
}

// FetchEnabledGroups returns groups usable as dynamic pattern sources:
// local groups holding channels, plus provider groups whose M3U account
// is active and whose link is enabled.
func (c *Client) FetchEnabledGroups(ctx context.Context) ([]EnabledGroup, error) {
	groups, err := c.FetchGroups(ctx)
	if err != nil {
		return nil, err
	}

	var enabled []EnabledGroup
	groupsByID := make(map[int]Group, len(groups))
	for _, g := range groups {
		groupsByID[g.ID] = g
		if g.M3UAccountCount == 0 && g.ChannelCount > 0 {
			enabled = append(enabled, EnabledGroup{
				ID:           g.ID,
				Name:         g.Name,
				ChannelCount: g.ChannelCount,
			})
		}
	}

	accounts, err := c.FetchM3UAccounts(ctx)
	if err != nil {
		c.logger.Warn("Failed to fetch M3U accounts, returning local groups only")
		return enabled, nil
	}

	for _, account := range accounts {
		if !account.IsActive {
			continue
		}
		for _, link := range account.ChannelGroups {
			if !link.Enabled {
				continue
			}
			group, ok := groupsByID[link.ChannelGroup]
			if !ok || group.ChannelCount <= 0 {
				continue
			}
			accountID := account.ID
			enabled = append(enabled, EnabledGroup{
				ID:             group.ID,
				Name:           group.Name,
				ChannelCount:   group.ChannelCount,
				M3UAccountID:   &accountID,
				M3UAccountName: account.Name,
			})
		}
	}

	return enabled, nil
}

// FetchGroupChannels returns the channels inside a group.
func (c *Client) FetchGroupChannels(ctx context.Context, groupID int) ([]GroupChannel, error) {
	var channels []GroupChannel
	endpoint := fmt.Sprintf("/api/channels/channels/?channel_group=%d", groupID)
	if err := c.getAuthed(ctx, endpoint, &channels); err != nil {
		return nil, errors.ExternalServiceError("dispatcharr", "failed to fetch group channels", err)
	}
	return channels, nil
}

// FetchGroupPatterns turns a group's channel names into anchored,
// escaped match patterns. Anchoring keeps "ESPN" from also matching
// "ESPN2" when the group is used as a dynamic pattern source.
func (c *Client) FetchGroupPatterns(ctx context.Context, groupID int) ([]string, error) {
	channels, err := c.FetchGroupChannels(ctx, groupID)
	if err != nil {
		return nil, err
	}

	patterns := make([]string, 0, len(channels))
	seen := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		name := strings.TrimSpace(ch.Name)
		if name == "" {
			continue
		}
		pattern := "^" + regexp.QuoteMeta(name) + "$"
		if _, ok := seen[pattern]; ok {
			continue
		}
		seen[pattern] = struct{}{}
		patterns = append(patterns, pattern)
	}
	return patterns, nil
}

// TestResult summarizes a connection test.
type TestResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	AccountCount  int    `json:"accounts_count"`
	GroupCount    int    `json:"groups_count"`
	EnabledGroups int    `json:"enabled_groups_count"`
}

// TestConnection authenticates and probes the main endpoints.
func (c *Client) TestConnection(ctx context.Context) TestResult {
	if err := c.Authenticate(ctx); err != nil {
		return TestResult{Message: "authentication failed, check URL and credentials"}
	}

	result := TestResult{Success: true}
	if accounts, err := c.FetchM3UAccounts(ctx); err == nil {
		result.AccountCount = len(accounts)
	}
	if groups, err := c.FetchGroups(ctx); err == nil {
		result.GroupCount = len(groups)
	}
	if enabled, err := c.FetchEnabledGroups(ctx); err == nil {
		result.EnabledGroups = len(enabled)
	}
	result.Message = fmt.Sprintf("connected, %d enabled groups", result.EnabledGroups)
	return result
}

// getAuthed performs a bearer-authenticated GET. A 401 invalidates the
// cached token and retries once after re-auth.
func (c *Client) getAuthed(ctx context.Context, endpoint string, result interface{}) error {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.token(ctx)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return errors.Wrap(err, errors.CodeServiceTimeout, "dispatcharr request failed")
		}

		if resp.StatusCode == http.StatusUnauthorized {
			resp.Body.Close()
			c.mu.Lock()
			c.accessToken = ""
			c.mu.Unlock()
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(result)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	return errors.UnauthorizedError("dispatcharr", fmt.Errorf("request kept failing with 401"))
}

// postJSON performs an unauthenticated or bearer-authenticated POST.
func (c *Client) postJSON(ctx context.Context, endpoint string, body, result interface{}, token string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.CodeServiceTimeout, "dispatcharr request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
