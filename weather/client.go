package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/welkome/identity"
)

// ForecastPath is where the resource server serves the forecast.
const ForecastPath = "/WeatherForecast"

const maxErrorBody = 4 << 10

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	// Challenge is the WWW-Authenticate header, if any.
	Challenge string
	Body      string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("weather API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("weather API returned status %d: %s", e.StatusCode, e.Body)
}

// Is maps 401 to identity.ErrUnauthenticated and 403 to
// identity.ErrInsufficientScope.
func (e *StatusError) Is(target error) bool {
	switch target {
	case identity.ErrUnauthenticated:
		return e.StatusCode == http.StatusUnauthorized
	case identity.ErrInsufficientScope:
		return e.StatusCode == http.StatusForbidden
	}
	return false
}

// Client fetches forecasts. Tokens are attached by the transport of
// HTTPClient, normally an interceptor.Transport.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the API at baseURL. A nil httpClient uses
// http.DefaultClient, which sends no token.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// URL is the forecast endpoint URL.
func (c *Client) URL() string {
	return c.baseURL + ForecastPath
}

// GetForecast fetches the forecast.
func (c *Client) GetForecast(ctx context.Context) ([]Forecast, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Challenge:  resp.Header.Get("WWW-Authenticate"),
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var forecast []Forecast
	if err := json.NewDecoder(resp.Body).Decode(&forecast); err != nil {
		return nil, fmt.Errorf("failed to decode forecast: %w", err)
	}
	return forecast, nil
}
