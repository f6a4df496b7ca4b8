// Package beep talks to the BEEP API: reference lists of hives and
// checklists, and the inspection store endpoint.
package beep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/johnswift/hivesync/internal/transform"
)

const (
	// DefaultBaseURL is the public BEEP API.
	DefaultBaseURL = "https://api.beep.nl"

	loginPath      = "/api/login"
	hivesPath      = "/api/hives"
	checklistsPath = "/api/inspections/lists"
	storePath      = "/api/inspections/store"
)

var (
	// ErrFetch is returned when a reference list cannot be retrieved.
	ErrFetch = errors.New("beep fetch failed")
	// ErrUpload is returned when an inspection is not accepted.
	ErrUpload = errors.New("beep upload failed")
)

type hiveList struct {
	Hives []transform.NamedID `json:"hives"`
}

type checklistList struct {
	Checklists []transform.NamedID `json:"checklists"`
}

// Client talks to the BEEP API.
type Client struct {
	http   *resty.Client
	token  string
	logger *zap.Logger
}

// NewClient creates a BEEP client.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{http: client, logger: logger}
}

// Login obtains an API token for subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var result struct {
		APIToken string `json:"api_token"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"email":    email,
			"password": password,
		}).
		Post(loginPath)
	if err != nil {
		return fmt.Errorf("%w: login: %v", ErrFetch, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: login: status %d", ErrFetch, resp.StatusCode())
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return fmt.Errorf("%w: login: decode response: %v", ErrFetch, err)
	}
	if result.APIToken == "" {
		return fmt.Errorf("%w: login: no BEEP token received", ErrFetch)
	}

	c.token = result.APIToken
	c.http.SetAuthToken(result.APIToken)
	return nil
}

// Hives returns the account's hive list.
func (c *Client) Hives(ctx context.Context) ([]transform.NamedID, error) {
	var list hiveList
	if err := c.get(ctx, hivesPath, &list); err != nil {
		return nil, err
	}
	return list.Hives, nil
}

// Checklists returns the account's inspection checklists.
func (c *Client) Checklists(ctx context.Context) ([]transform.NamedID, error) {
	var list checklistList
	if err := c.get(ctx, checklistsPath, &list); err != nil {
		return nil, err
	}
	return list.Checklists, nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	if c.token == "" {
		return fmt.Errorf("%w: %s: not logged in", ErrFetch, path)
	}

	resp, err := c.http.R().SetContext(ctx).Get(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFetch, path, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: %s: status %d", ErrFetch, path, resp.StatusCode())
	}
	if err := json.Unmarshal(resp.Body(), v); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", ErrFetch, path, err)
	}

	c.logger.Debug("Fetched BEEP reference data", zap.String("path", path))
	return nil
}

// StoreInspection posts one payload. Any transport error or non-2xx status
// is an ErrUpload.
func (c *Client) StoreInspection(ctx context.Context, payload transform.Payload) error {
	if c.token == "" {
		return fmt.Errorf("%w: not logged in", ErrUpload)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(storePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpload, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: status %d: %s", ErrUpload, resp.StatusCode(), truncate(resp.String(), 200))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Fixture file names inside the data directory.
const (
	HivesFile      = "beep-hives.json"
	ChecklistsFile = "beep-checklists.json"
)

// FileReference reads the reference lists from fixture files in Dir.
type FileReference struct {
	Dir string
}

// Hives loads beep-hives.json.
func (f FileReference) Hives(_ context.Context) ([]transform.NamedID, error) {
	var list hiveList
	if err := readFixture(filepath.Join(f.Dir, HivesFile), &list); err != nil {
		return nil, err
	}
	return list.Hives, nil
}

// Checklists loads beep-checklists.json.
func (f FileReference) Checklists(_ context.Context) ([]transform.NamedID, error) {
	var list checklistList
	if err := readFixture(filepath.Join(f.Dir, ChecklistsFile), &list); err != nil {
		return nil, err
	}
	return list.Checklists, nil
}

func readFixture(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFetch, path, err)
	}
	return nil
}

// Session is a Client bound to an account.
type Session struct {
	*Client
	Email    string
	Password string
}

// Authenticate logs in with the session credentials.
func (s *Session) Authenticate(ctx context.Context) error {
	return s.Login(ctx, s.Email, s.Password)
}
