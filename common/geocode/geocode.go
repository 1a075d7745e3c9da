// Package geocode backs the location autocomplete of the event form.
package geocode

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	apperrors "github.com/event-admin-services/common/errors"
	"github.com/event-admin-services/common/logger"
)

// MinQueryLength is the shortest query sent to the provider
const MinQueryLength = 3

// Place is one suggestion
type Place struct {
	PlaceID   string  `json:"placeId,omitempty"`
	Formatted string  `json:"formatted"`
	City      string  `json:"city,omitempty"`
	Country   string  `json:"country,omitempty"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

// Client queries the autocomplete provider
type Client struct {
	baseURL string
	apiKey  string
	limit   int
	http    *http.Client
	log     *logger.Logger
}

// NewClient creates a client; an empty apiKey disables lookups
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		limit:   5,
		http:    &http.Client{Timeout: timeout},
		log:     logger.Default().With("component", "geocode"),
	}
}

// Autocomplete returns suggestions for query. Queries shorter than
// MinQueryLength return no suggestions without calling the provider.
func (c *Client) Autocomplete(ctx context.Context, query string) ([]Place, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinQueryLength {
		return []Place{}, nil
	}
	if c.apiKey == "" {
		return nil, apperrors.GeocodingError("Location search is not configured")
	}

	params := url.Values{}
	params.Set("text", query)
	params.Set("limit", fmt.Sprint(c.limit))
	params.Set("format", "json")
	params.Set("apiKey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to build geocoding request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithContext(ctx).WithError(err).Warn("geocoding request failed")
		return nil, apperrors.GeocodingError("Location search is unavailable").WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.GeocodingError("Location search is unavailable").WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.WithContext(ctx).Warn("geocoding provider error", "status", resp.StatusCode, "message", gjson.GetBytes(body, "message").String())
		return nil, apperrors.GeocodingError("Location search is unavailable")
	}

	return parsePlaces(body), nil
}

// parsePlaces reads either the "results" list or GeoJSON "features"
func parsePlaces(body []byte) []Place {
	doc := gjson.ParseBytes(body)
	items := doc.Get("results")
	if !items.Exists() {
		items = doc.Get("features.#.properties")
	}

	places := []Place{}
	items.ForEach(func(_, item gjson.Result) bool {
		p := Place{
			PlaceID:   item.Get("place_id").String(),
			Formatted: item.Get("formatted").String(),
			City:      item.Get("city").String(),
			Country:   item.Get("country").String(),
			Lat:       item.Get("lat").Float(),
			Lon:       item.Get("lon").Float(),
		}
		if p.Formatted == "" {
			p.Formatted = strings.TrimSpace(item.Get("address_line1").String() + ", " + item.Get("address_line2").String())
		}
		if p.Formatted != "" && p.Formatted != "," {
			places = append(places, p)
		}
		return true
	})
	return places
}
