package plannerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"shopplanner/internal/metrics"
	"shopplanner/internal/model"
)

// HTTPError is a non-2xx answer from the planner API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Client talks to the planner HTTP API and satisfies store.Backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
	prefix   string
}

func NewClient(baseURL, apiKey string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("component", "plannerapi").Logger(),
		prefix:     "planner:",
	}
}

// UseRedisCache enables read-through caching of the technician and bay
// directories. Appointment reads and all writes always go to the API.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// InvalidateDirectory drops cached technicians and bays.
func (c *Client) InvalidateDirectory(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, c.prefix+"technicians", c.prefix+"bays").Err()
}

func (c *Client) ListAppointments(ctx context.Context, orgID string, from, to time.Time, bayID *string) ([]model.Appointment, error) {
	q := url.Values{}
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))
	if orgID != "" {
		q.Set("org_id", orgID)
	}
	if bayID != nil {
		q.Set("bay_id", *bayID)
	}

	var resp struct {
		Appointments []model.Appointment `json:"appointments"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/appointments?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return resp.Appointments, nil
}

func (c *Client) InsertAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	var out model.Appointment
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/appointments", a, &out); err != nil {
		return model.Appointment{}, fmt.Errorf("create appointment: %w", err)
	}
	return out, nil
}

func (c *Client) UpdateAppointment(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	var out model.Appointment
	if err := c.doJSON(ctx, http.MethodPut, "/api/v1/appointments/"+url.PathEscape(a.ID), a, &out); err != nil {
		return model.Appointment{}, fmt.Errorf("update appointment %s: %w", a.ID, err)
	}
	return out, nil
}

func (c *Client) CanSchedule(ctx context.Context, req model.ScheduleRequest) (bool, error) {
	var out struct {
		Available bool `json:"available"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/schedule/check", req, &out); err != nil {
		return false, err
	}
	return out.Available, nil
}

func (c *Client) ConflictReport(ctx context.Context, appointmentID string) ([]model.Conflict, error) {
	var out struct {
		Conflicts []model.Conflict `json:"conflicts"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/appointments/"+url.PathEscape(appointmentID)+"/conflicts", nil, &out); err != nil {
		return nil, err
	}
	return out.Conflicts, nil
}

func (c *Client) ListTechnicians(ctx context.Context) ([]model.Technician, error) {
	var wrap struct {
		Technicians []model.Technician `json:"technicians"`
	}
	if c.readCache(ctx, "technicians", &wrap) {
		return wrap.Technicians, nil
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/technicians", nil, &wrap); err != nil {
		return nil, fmt.Errorf("list technicians: %w", err)
	}
	c.writeCache(ctx, "technicians", wrap)
	return wrap.Technicians, nil
}

func (c *Client) ListBays(ctx context.Context) ([]model.Bay, error) {
	var wrap struct {
		Bays []model.Bay `json:"bays"`
	}
	if c.readCache(ctx, "bays", &wrap) {
		return wrap.Bays, nil
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/bays", nil, &wrap); err != nil {
		return nil, fmt.Errorf("list bays: %w", err)
	}
	c.writeCache(ctx, "bays", wrap)
	return wrap.Bays, nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, c.prefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		metrics.IncCache(key, false)
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		metrics.IncCache(key, false)
		return false
	}
	metrics.IncCache(key, true)
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.prefix+key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
		return &HTTPError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
