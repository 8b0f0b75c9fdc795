// Package redmine implements the issue-tracker mirror against a
// Redmine-compatible REST API.
package redmine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/forgestack/forge/internal/domain"
	apperrors "github.com/forgestack/forge/internal/errors"
	"github.com/forgestack/forge/internal/tracker"
)

// Default Redmine role ids: 3 = Manager, 4 = Developer
const (
	roleManagerID   = 3
	roleDeveloperID = 4
)

// Client is the REST client for the Redmine mirror
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Redmine mirror client
func NewClient(baseURL, apiKey string) tracker.Tracker {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateProject mirrors a new project; Redmine creates projects public
// by default, HideProject is a separate call
func (c *Client) CreateProject(ctx context.Context, project *domain.Project) error {
	body := map[string]interface{}{
		"project": map[string]interface{}{
			"identifier":  project.CN,
			"name":        project.CN,
			"description": project.Description,
		},
	}
	return c.do(ctx, http.MethodPost, "/projects.json", body, nil)
}

func (c *Client) UpdateProject(ctx context.Context, project *domain.Project) error {
	body := map[string]interface{}{
		"project": map[string]interface{}{
			"name":        project.CN,
			"description": project.Description,
		},
	}
	return c.do(ctx, http.MethodPut, "/projects/"+url.PathEscape(project.CN)+".json", body, nil)
}

func (c *Client) DeleteProject(ctx context.Context, cn string) error {
	return c.do(ctx, http.MethodDelete, "/projects/"+url.PathEscape(cn)+".json", nil, nil)
}

func (c *Client) HideProject(ctx context.Context, cn string) error {
	body := map[string]interface{}{
		"project": map[string]interface{}{
			"is_public": false,
		},
	}
	return c.do(ctx, http.MethodPut, "/projects/"+url.PathEscape(cn)+".json", body, nil)
}

func (c *Client) CreateUser(ctx context.Context, user *domain.User, plainPassword string) error {
	body := map[string]interface{}{
		"user": map[string]interface{}{
			"login":     user.UID,
			"firstname": user.Name,
			"lastname":  user.Surname,
			"mail":      user.Email,
			"password":  plainPassword,
		},
	}
	return c.do(ctx, http.MethodPost, "/users.json", body, nil)
}

func (c *Client) UpdateUser(ctx context.Context, user *domain.User) error {
	id, err := c.lookupUserID(ctx, user.UID)
	if err != nil {
		return err
	}
	body := map[string]interface{}{
		"user": map[string]interface{}{
			"firstname": user.Name,
			"lastname":  user.Surname,
			"mail":      user.Email,
		},
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/users/%d.json", id), body, nil)
}

func (c *Client) DeleteUser(ctx context.Context, uid string) error {
	id, err := c.lookupUserID(ctx, uid)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/users/%d.json", id), nil, nil)
}

func (c *Client) AddMember(ctx context.Context, cn, uid string) error {
	return c.addMembership(ctx, cn, uid, roleDeveloperID)
}

func (c *Client) AddAdmin(ctx context.Context, cn, uid string) error {
	return c.addMembership(ctx, cn, uid, roleManagerID)
}

func (c *Client) RemoveMember(ctx context.Context, cn, uid string) error {
	id, err := c.lookupMembershipID(ctx, cn, uid)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/memberships/%d.json", id), nil, nil)
}

// RemoveAdmin demotes the membership back to the plain member role
func (c *Client) RemoveAdmin(ctx context.Context, cn, uid string) error {
	id, err := c.lookupMembershipID(ctx, cn, uid)
	if err != nil {
		return err
	}
	body := map[string]interface{}{
		"membership": map[string]interface{}{
			"role_ids": []int{roleDeveloperID},
		},
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/memberships/%d.json", id), body, nil)
}

func (c *Client) addMembership(ctx context.Context, cn, uid string, roleID int) error {
	id, err := c.lookupUserID(ctx, uid)
	if err != nil {
		return err
	}
	body := map[string]interface{}{
		"membership": map[string]interface{}{
			"user_id":  id,
			"role_ids": []int{roleID},
		},
	}
	return c.do(ctx, http.MethodPost, "/projects/"+url.PathEscape(cn)+"/memberships.json", body, nil)
}

// lookupUserID resolves a uid (Redmine login) to its numeric id
func (c *Client) lookupUserID(ctx context.Context, uid string) (int, error) {
	var response struct {
		Users []struct {
			ID    int    `json:"id"`
			Login string `json:"login"`
		} `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/users.json?name="+url.QueryEscape(uid), nil, &response); err != nil {
		return 0, err
	}
	for _, u := range response.Users {
		if u.Login == uid {
			return u.ID, nil
		}
	}
	return 0, apperrors.NewTrackerError(fmt.Sprintf("tracker user %q not found", uid), nil)
}

// lookupMembershipID resolves the membership of uid in project cn
func (c *Client) lookupMembershipID(ctx context.Context, cn, uid string) (int, error) {
	var response struct {
		Memberships []struct {
			ID   int `json:"id"`
			User struct {
				Name string `json:"name"`
				ID   int    `json:"id"`
			} `json:"user"`
		} `json:"memberships"`
	}
	userID, err := c.lookupUserID(ctx, uid)
	if err != nil {
		return 0, err
	}
	if err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(cn)+"/memberships.json", nil, &response); err != nil {
		return 0, err
	}
	for _, m := range response.Memberships {
		if m.User.ID == userID {
			return m.ID, nil
		}
	}
	return 0, apperrors.NewTrackerError(fmt.Sprintf("tracker membership of %q in %q not found", uid, cn), nil)
}

// do performs one API call and decodes the response into out (if not nil)
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.NewTrackerError("encoding request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.NewTrackerError("building request", err)
	}
	req.Header.Set("X-Redmine-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewTrackerError(fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apperrors.NewTrackerError(
			fmt.Sprintf("%s %s: status %d: %s", method, path, resp.StatusCode, string(data)), nil)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.NewTrackerError("decoding response", err)
		}
	}
	return nil
}
