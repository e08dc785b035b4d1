// Package client is a typed HTTP client for the preference API served by
// [github.com/orgbook/prefsync/pkg/prefsync]. It is used by the browsing
// UI's backend-for-frontend and by the end-to-end tests.
//
// The client mirrors the server's endpoint structure with one method per
// operation, marshals requests and responses as JSON, and attaches the
// configured owner id to every request in the X-Owner-ID header. All
// methods are safe for concurrent use.
//
// Errors follow the server's contract: a 400 response surfaces the
// validation message, a 401 means no owner was configured, and transport
// failures are returned as-is. Note that a save during a remote outage is
// NOT an error; the server accepts it and returns the record with its
// pending flag set.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/orgbook/prefsync/pkg/models"
	"github.com/orgbook/prefsync/pkg/prefs"
)

// Client provides typed access to the preference API.
type Client struct {
	baseURL    string
	owner      models.UserID
	httpClient *http.Client
}

// NewClient creates a client for the API at baseURL (protocol and host,
// no trailing slash) acting as the given owner.
func NewClient(baseURL string, owner models.UserID) *Client {
	return &Client{
		baseURL: baseURL,
		owner:   owner,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if !c.owner.IsZero() {
		req.Header.Set("X-Owner-ID", c.owner.String())
	}

	return c.httpClient.Do(req)
}

func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	if target != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Health checks the health status of the server.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Saved filters

// ListFilters returns the owner's saved filters, newest first.
func (c *Client) ListFilters(ctx context.Context) ([]*models.SavedFilter, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/filters", nil)
	if err != nil {
		return nil, err
	}

	var result []*models.SavedFilter
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// SaveFilter saves a filter and returns the stored record. Check the
// returned record's Pending flag to learn whether it reached the remote
// store or was kept locally for later reconciliation.
func (c *Client) SaveFilter(ctx context.Context, filter *models.SavedFilter) (*models.SavedFilter, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/filters", filter)
	if err != nil {
		return nil, err
	}

	var result models.SavedFilter
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteFilter removes a saved filter and reports whether one was removed.
func (c *Client) DeleteFilter(ctx context.Context, id models.FilterID) (bool, error) {
	resp, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/api/filters/%s", id), nil)
	if err != nil {
		return false, err
	}

	var result map[string]bool
	if err := decodeResponse(resp, &result); err != nil {
		return false, err
	}
	return result["removed"], nil
}

// Favorite persons

// ListFavoritePersons returns the owner's favorite persons, newest first.
func (c *Client) ListFavoritePersons(ctx context.Context) ([]*models.FavoritePerson, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/favorites/people", nil)
	if err != nil {
		return nil, err
	}

	var result []*models.FavoritePerson
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// AddFavoritePerson favorites a person. Adding an existing favorite is a
// no-op that returns the existing record.
func (c *Client) AddFavoritePerson(ctx context.Context, fav *models.FavoritePerson) (*models.FavoritePerson, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/favorites/people", fav)
	if err != nil {
		return nil, err
	}

	var result models.FavoritePerson
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AddFavoritePersons favorites every listed person and returns how many
// were newly added.
func (c *Client) AddFavoritePersons(ctx context.Context, favs []*models.FavoritePerson) (int, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/favorites/people/batch", favs)
	if err != nil {
		return 0, err
	}

	var result map[string]int
	if err := decodeResponse(resp, &result); err != nil {
		return 0, err
	}
	return result["added"], nil
}

// FavoritePersonExists reports whether the person is favorited.
func (c *Client) FavoritePersonExists(ctx context.Context, personID string) (bool, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/favorites/people/%s/exists", personID), nil)
	if err != nil {
		return false, err
	}

	var result map[string]bool
	if err := decodeResponse(resp, &result); err != nil {
		return false, err
	}
	return result["exists"], nil
}

// RemoveFavoritePerson unfavorites a person and reports whether a
// favorite was removed.
func (c *Client) RemoveFavoritePerson(ctx context.Context, personID string) (bool, error) {
	resp, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/api/favorites/people/%s", personID), nil)
	if err != nil {
		return false, err
	}

	var result map[string]bool
	if err := decodeResponse(resp, &result); err != nil {
		return false, err
	}
	return result["removed"], nil
}

// Favorite companies

// ListFavoriteCompanies returns the owner's favorite companies, newest
// first.
func (c *Client) ListFavoriteCompanies(ctx context.Context) ([]*models.FavoriteCompany, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/favorites/companies", nil)
	if err != nil {
		return nil, err
	}

	var result []*models.FavoriteCompany
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// AddFavoriteCompany favorites a company. Adding an existing favorite is
// a no-op that returns the existing record.
func (c *Client) AddFavoriteCompany(ctx context.Context, fav *models.FavoriteCompany) (*models.FavoriteCompany, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/favorites/companies", fav)
	if err != nil {
		return nil, err
	}

	var result models.FavoriteCompany
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AddFavoriteCompanies favorites every listed company and returns how
// many were newly added.
func (c *Client) AddFavoriteCompanies(ctx context.Context, favs []*models.FavoriteCompany) (int, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/favorites/companies/batch", favs)
	if err != nil {
		return 0, err
	}

	var result map[string]int
	if err := decodeResponse(resp, &result); err != nil {
		return 0, err
	}
	return result["added"], nil
}

// FavoriteCompanyExists reports whether the company is favorited.
func (c *Client) FavoriteCompanyExists(ctx context.Context, companyID string) (bool, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/favorites/companies/%s/exists", companyID), nil)
	if err != nil {
		return false, err
	}

	var result map[string]bool
	if err := decodeResponse(resp, &result); err != nil {
		return false, err
	}
	return result["exists"], nil
}

// RemoveFavoriteCompany unfavorites a company and reports whether a
// favorite was removed.
func (c *Client) RemoveFavoriteCompany(ctx context.Context, companyID string) (bool, error) {
	resp, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/api/favorites/companies/%s", companyID), nil)
	if err != nil {
		return false, err
	}

	var result map[string]bool
	if err := decodeResponse(resp, &result); err != nil {
		return false, err
	}
	return result["removed"], nil
}

// Reconcile triggers a reconciliation run for the client's owner and
// returns its report.
func (c *Client) Reconcile(ctx context.Context) (prefs.Report, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/reconcile", nil)
	if err != nil {
		return prefs.Report{}, err
	}

	var result prefs.Report
	if err := decodeResponse(resp, &result); err != nil {
		return prefs.Report{}, err
	}
	return result, nil
}
