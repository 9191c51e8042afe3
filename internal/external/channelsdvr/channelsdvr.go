package channelsdvr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/collectarr/collectarr/internal/circuitbreaker"
	"github.com/collectarr/collectarr/internal/errors"
	"github.com/collectarr/collectarr/internal/models"
	"github.com/collectarr/collectarr/internal/retry"
)

// Client talks to a Channels DVR server.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config
	circuitBrk  *circuitbreaker.CircuitBreaker
}

// Config holds DVR client configuration
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RetryConfig retry.Config
}

// Device represents a channel source device on the DVR
type Device struct {
	DeviceID     string `json:"DeviceID"`
	FriendlyName string `json:"FriendlyName"`
	Provider     string `json:"Provider"`
}

// wireChannel is the DVR's channel representation
type wireChannel struct {
	ID        string `json:"ID"`
	GuideName string `json:"GuideName"`
	Number    string `json:"GuideNumber"`
	Callsign  string `json:"Callsign"`
	Affiliate string `json:"Affiliate"`
}

// wireCollection is the DVR's collection representation. Items is the
// ordered member list; the DVR preserves order on PUT.
type wireCollection struct {
	Slug  string   `json:"slug"`
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

// New creates a new DVR client
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retryConfig: cfg.RetryConfig,
		circuitBrk: circuitbreaker.New(circuitbreaker.Config{
			MaxFailures: 5,
			Timeout:     60 * time.Second,
		}),
	}
}

// Ping verifies the DVR is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var devices []Device
	if err := c.getJSON(ctx, "/devices", &devices); err != nil {
		return errors.ExternalServiceError("channelsdvr", "dvr unreachable", err)
	}
	return nil
}

// FetchDevices returns the DVR's channel sources.
func (c *Client) FetchDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	err := retry.Do(ctx, c.retryConfig, func() error {
		return c.execute(ctx, func() error {
			return c.getJSON(ctx, "/devices", &devices)
		})
	}, errors.IsRetryable)
	if err != nil {
		return nil, errors.ExternalServiceError("channelsdvr", "failed to fetch devices", err)
	}
	return devices, nil
}

// FetchInventory returns every channel across all devices, tagged with
// its source device. Per-device fetch failures are reported as warnings
// so one dead tuner does not hide the rest of the lineup.
func (c *Client) FetchInventory(ctx context.Context) ([]models.Channel, []string, error) {
	devices, err := c.FetchDevices(ctx)
	if err != nil {
		return nil, nil, err
	}

	var inventory []models.Channel
	var warnings []string
	for _, device := range devices {
		var channels []wireChannel
		endpoint := fmt.Sprintf("/devices/%s/channels", device.DeviceID)
		fetchErr := retry.Do(ctx, c.retryConfig, func() error {
			return c.execute(ctx, func() error {
				return c.getJSON(ctx, endpoint, &channels)
			})
		}, errors.IsRetryable)
		if fetchErr != nil {
			warnings = append(warnings,
				fmt.Sprintf("failed to fetch channels for source %s: %v", device.FriendlyName, fetchErr))
			continue
		}

		for _, ch := range channels {
			inventory = append(inventory, models.Channel{
				ID:         ch.ID,
				Name:       ch.GuideName,
				Number:     ch.Number,
				SourceID:   device.DeviceID,
				SourceName: device.FriendlyName,
				Callsign:   ch.Callsign,
				Affiliate:  ch.Affiliate,
			})
		}
	}

	return inventory, warnings, nil
}

// FetchCollections returns all channel collections on the DVR.
func (c *Client) FetchCollections(ctx context.Context) ([]models.Collection, error) {
	var wire []wireCollection
	err := retry.Do(ctx, c.retryConfig, func() error {
		return c.execute(ctx, func() error {
			return c.getJSON(ctx, "/dvr/collections/channels", &wire)
		})
	}, errors.IsRetryable)
	if err != nil {
		return nil, errors.ExternalServiceError("channelsdvr", "failed to fetch collections", err)
	}

	collections := make([]models.Collection, 0, len(wire))
	for _, w := range wire {
		collections = append(collections, models.Collection{
			ID:      w.Slug,
			Name:    w.Name,
			Members: w.Items,
		})
	}
	return collections, nil
}

// FetchCollection returns a single collection by slug.
func (c *Client) FetchCollection(ctx context.Context, slug string) (*models.Collection, error) {
	var w wireCollection
	endpoint := "/dvr/collections/channels/" + slug
	err := retry.Do(ctx, c.retryConfig, func() error {
		return c.execute(ctx, func() error {
			return c.getJSON(ctx, endpoint, &w)
		})
	}, errors.IsRetryable)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.CollectionMissingError(slug)
		}
		return nil, errors.ExternalServiceError("channelsdvr", "failed to fetch collection", err)
	}

	return &models.Collection{ID: w.Slug, Name: w.Name, Members: w.Items}, nil
}

// ApplyCollection replaces a collection's ordered member list. The full
// collection document is sent back so fields the engine does not manage
// survive the update.
func (c *Client) ApplyCollection(ctx context.Context, collection models.Collection) error {
	payload := wireCollection{
		Slug:  collection.ID,
		Name:  collection.Name,
		Items: collection.Members,
	}
	if payload.Items == nil {
		payload.Items = []string{}
	}

	endpoint := "/dvr/collections/channels/" + collection.ID
	err := retry.Do(ctx, c.retryConfig, func() error {
		return c.execute(ctx, func() error {
			return c.putJSON(ctx, endpoint, payload)
		})
	}, errors.IsRetryable)
	if err != nil {
		return errors.ExternalServiceError("channelsdvr", "failed to update collection", err)
	}
	return nil
}

// CreateCollection makes a new empty collection. The DVR assigns the
// slug from the name.
func (c *Client) CreateCollection(ctx context.Context, name string) (*models.Collection, error) {
	payload := map[string]string{"name": name}
	var created wireCollection
	err := retry.Do(ctx, c.retryConfig, func() error {
		return c.execute(ctx, func() error {
			return c.postJSON(ctx, "/dvr/collections/channels", payload, &created)
		})
	}, errors.IsRetryable)
	if err != nil {
		return nil, errors.ExternalServiceError("channelsdvr", "failed to create collection", err)
	}

	return &models.Collection{ID: created.Slug, Name: created.Name, Members: created.Items}, nil
}

// execute routes a request through the circuit breaker, mapping an open
// breaker to a retryable unavailable error.
func (c *Client) execute(ctx context.Context, fn func() error) error {
	err := c.circuitBrk.Execute(fn)
	if err == circuitbreaker.ErrOpenState {
		return errors.Wrap(err, errors.CodeServiceUnavailable, "dvr circuit open")
	}
	return err
}

func (c *Client) getJSON(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.CodeServiceTimeout, "dvr request failed")
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) putJSON(ctx context.Context, endpoint string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "PUT", c.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.CodeServiceTimeout, "dvr request failed")
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body, result interface{}) error {
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

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.CodeServiceTimeout, "dvr request failed")
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return errors.New(errors.CodeNotFound, "dvr resource not found")
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.New(errors.CodeRateLimited, "dvr rate limit exceeded")
	case resp.StatusCode >= 500:
		body, _ := io.ReadAll(resp.Body)
		return errors.New(errors.CodeServiceUnavailable,
			fmt.Sprintf("dvr server error %d: %s", resp.StatusCode, string(body)))
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}
}
