// Package hivetracks fetches inspection records from HiveTracks, either from
// its tRPC API or from a local fixture file.
package hivetracks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/johnswift/hivesync/internal/record"
)

const (
	// DefaultBaseURL is the HiveTracks Pro API.
	DefaultBaseURL = "https://pro.hivetracks.com"
	// DefaultPageSize is the number of records requested per page.
	DefaultPageSize = 10

	signInPath  = "/api/trpc/auth.signin"
	recordsPath = "/api/trpc/admin.record.paginatedList"
)

// ErrFetch is returned when HiveTracks is unreachable or answers with a
// non-success status.
var ErrFetch = errors.New("hivetracks fetch failed")

// trpcEnvelope is the response wrapper of every tRPC call.
type trpcEnvelope struct {
	Result struct {
		Data struct {
			JSON json.RawMessage `json:"json"`
		} `json:"data"`
	} `json:"result"`
}

type signInResult struct {
	Tokens struct {
		AccessToken string `json:"accessToken"`
	} `json:"tokens"`
}

type pageResult struct {
	Results json.RawMessage `json:"results"`
}

// Client talks to the HiveTracks API.
type Client struct {
	http     *resty.Client
	pageSize int
	token    string
	logger   *zap.Logger
}

// NewClient creates a HiveTracks client.
func NewClient(baseURL string, timeout time.Duration, pageSize int, logger *zap.Logger) *Client {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		http:     client,
		pageSize: pageSize,
		logger:   logger,
	}
}

// SignIn obtains an access token for subsequent calls.
func (c *Client) SignIn(ctx context.Context, email, password string) error {
	body := map[string]any{
		"json": map[string]string{
			"email":    email,
			"password": password,
		},
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(signInPath)
	if err != nil {
		return fmt.Errorf("%w: sign in: %v", ErrFetch, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: sign in: status %d", ErrFetch, resp.StatusCode())
	}

	var result signInResult
	if err := unwrap(resp.Body(), &result); err != nil {
		return fmt.Errorf("%w: sign in: %v", ErrFetch, err)
	}
	if result.Tokens.AccessToken == "" {
		return fmt.Errorf("%w: sign in: no access token received", ErrFetch)
	}

	c.token = result.Tokens.AccessToken
	return nil
}

// Records fetches every page until an empty one is returned.
func (c *Client) Records(ctx context.Context) ([]record.Record, error) {
	var records []record.Record

	for page := 0; ; page++ {
		c.logger.Info("Fetching HiveTracks page", zap.Int("page", page))

		batch, err := c.Page(ctx, page)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		records = append(records, batch...)
	}

	c.logger.Info("Fetched HiveTracks records", zap.Int("count", len(records)))
	return records, nil
}

// Page fetches one page of records.
func (c *Client) Page(ctx context.Context, page int) ([]record.Record, error) {
	if c.token == "" {
		return nil, fmt.Errorf("%w: not signed in", ErrFetch)
	}

	input, err := json.Marshal(map[string]any{
		"json": map[string]any{"skip": page * c.pageSize, "q": nil},
		"meta": map[string]any{"values": map[string]any{"q": []string{"undefined"}}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode page input: %v", ErrFetch, err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Cookie", "access_token="+c.token).
		SetQueryParam("input", string(input)).
		Get(recordsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", ErrFetch, page, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: page %d: status %d", ErrFetch, page, resp.StatusCode())
	}

	var result pageResult
	if err := unwrap(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", ErrFetch, page, err)
	}
	if len(result.Results) == 0 || string(result.Results) == "null" {
		return nil, nil
	}

	records, err := record.Decode(result.Results)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", ErrFetch, page, err)
	}
	return records, nil
}

// unwrap decodes the payload inside a tRPC envelope.
func unwrap(body []byte, v any) error {
	var env trpcEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(env.Result.Data.JSON) == 0 {
		return fmt.Errorf("decode response: missing result.data.json")
	}
	return json.Unmarshal(env.Result.Data.JSON, v)
}

// FileSource reads records from a JSON fixture holding an array of records.
type FileSource struct {
	Path string
}

// Records loads the fixture.
func (f FileSource) Records(_ context.Context) ([]record.Record, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	records, err := record.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetch, f.Path, err)
	}
	return records, nil
}

// Session is a Client bound to an account. It signs in again on every
// Authenticate so long-running schedules never reuse an expired token.
type Session struct {
	*Client
	Email    string
	Password string
}

// Authenticate signs in with the session credentials.
func (s *Session) Authenticate(ctx context.Context) error {
	return s.SignIn(ctx, s.Email, s.Password)
}
