package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/forgestack/forge/internal/domain"
)

// Client is the API client for the forge provisioning service
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Bootstrap creates the superadmin user and the superadmins project
func (c *Client) Bootstrap(uid, password string) error {
	return c.do(http.MethodPost, "/api/v1/bootstrap",
		map[string]string{"uid": uid, "password": password}, nil)
}

// CreateUser provisions a new user
func (c *Client) CreateUser(uid, name, surname, email, password string) error {
	body := map[string]string{
		"uid":      uid,
		"name":     name,
		"surname":  surname,
		"email":    email,
		"password": password,
	}
	return c.do(http.MethodPost, "/api/v1/users", body, nil)
}

// GetUser retrieves one user
func (c *Client) GetUser(uid string) (*domain.User, error) {
	var response struct {
		Data *domain.User `json:"data"`
	}
	if err := c.do(http.MethodGet, "/api/v1/users/"+url.PathEscape(uid), nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// ListUsers retrieves every uid
func (c *Client) ListUsers() ([]string, error) {
	var response struct {
		Data []string `json:"data"`
	}
	if err := c.do(http.MethodGet, "/api/v1/users", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// EditUser rewrites a user's mutable fields
func (c *Client) EditUser(user *domain.User) error {
	body := map[string]string{
		"name":    user.Name,
		"surname": user.Surname,
		"email":   user.Email,
	}
	return c.do(http.MethodPut, "/api/v1/users/"+url.PathEscape(user.UID), body, nil)
}

// DeleteUser removes a user and every membership it holds
func (c *Client) DeleteUser(uid string) error {
	return c.do(http.MethodDelete, "/api/v1/users/"+url.PathEscape(uid), nil, nil)
}

// LockUser disables a user's credential
func (c *Client) LockUser(uid string) error {
	return c.do(http.MethodPost, "/api/v1/users/"+url.PathEscape(uid)+"/lock", nil, nil)
}

// UnlockUser re-enables a user with a new password
func (c *Client) UnlockUser(uid, password string) error {
	return c.do(http.MethodPost, "/api/v1/users/"+url.PathEscape(uid)+"/unlock",
		map[string]string{"password": password}, nil)
}

// MemberProjects lists the projects a user participates in
func (c *Client) MemberProjects(uid string) ([]string, error) {
	var response struct {
		Data []string `json:"data"`
	}
	if err := c.do(http.MethodGet, "/api/v1/users/"+url.PathEscape(uid)+"/projects", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// AdministeredUsers lists the users a user administers
func (c *Client) AdministeredUsers(uid string) ([]string, error) {
	var response struct {
		Data []string `json:"data"`
	}
	if err := c.do(http.MethodGet, "/api/v1/users/"+url.PathEscape(uid)+"/administered-users", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// RepoSpec describes a repository to attach at project creation
type RepoSpec struct {
	Kind   string `json:"kind"`
	Public bool   `json:"public"`
	Path   string `json:"path"`
}

// CreateProject provisions a new project
func (c *Client) CreateProject(cn, description, firstAdmin string, repo *RepoSpec) error {
	body := map[string]interface{}{
		"cn":          cn,
		"description": description,
		"first_admin": firstAdmin,
	}
	if repo != nil {
		body["repo"] = repo
	}
	return c.do(http.MethodPost, "/api/v1/projects", body, nil)
}

// GetProject retrieves one project
func (c *Client) GetProject(cn string) (*domain.Project, error) {
	var response struct {
		Data *domain.Project `json:"data"`
	}
	if err := c.do(http.MethodGet, "/api/v1/projects/"+url.PathEscape(cn), nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// ListProjects retrieves every project cn
func (c *Client) ListProjects() ([]string, error) {
	var response struct {
		Data []string `json:"data"`
	}
	if err := c.do(http.MethodGet, "/api/v1/projects", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// DeleteProject removes a project and its derived artifacts
func (c *Client) DeleteProject(cn string) error {
	return c.do(http.MethodDelete, "/api/v1/projects/"+url.PathEscape(cn), nil, nil)
}

// AddMember grants membership of a project
func (c *Client) AddMember(cn, uid string) error {
	return c.do(http.MethodPost, "/api/v1/projects/"+url.PathEscape(cn)+"/members",
		map[string]string{"uid": uid}, nil)
}

// RemoveMember revokes membership of a project
func (c *Client) RemoveMember(cn, uid string) error {
	return c.do(http.MethodDelete,
		"/api/v1/projects/"+url.PathEscape(cn)+"/members/"+url.PathEscape(uid), nil, nil)
}

// AddAdmin grants the administrator role
func (c *Client) AddAdmin(cn, uid string) error {
	return c.do(http.MethodPost, "/api/v1/projects/"+url.PathEscape(cn)+"/admins",
		map[string]string{"uid": uid}, nil)
}

// RemoveAdmin revokes the administrator role
func (c *Client) RemoveAdmin(cn, uid string) error {
	return c.do(http.MethodDelete,
		"/api/v1/projects/"+url.PathEscape(cn)+"/admins/"+url.PathEscape(uid), nil, nil)
}

// AddRepository attaches a repository to a project
func (c *Client) AddRepository(cn string, repo RepoSpec) error {
	return c.do(http.MethodPost, "/api/v1/projects/"+url.PathEscape(cn)+"/repos", repo, nil)
}

// RemoveRepository detaches and destroys a project's repository
func (c *Client) RemoveRepository(cn, kind string) error {
	return c.do(http.MethodDelete,
		"/api/v1/projects/"+url.PathEscape(cn)+"/repos/"+url.PathEscape(kind), nil, nil)
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck() error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.do(http.MethodGet, "/health", nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unexpected health status: %s", response.Status)
	}
	return nil
}

// do performs one API call and decodes the response into out (if not nil)
func (c *Client) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
