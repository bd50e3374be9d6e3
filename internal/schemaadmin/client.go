package schemaadmin

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/datapult/insightsync/internal"
	"github.com/datapult/insightsync/internal/models"
)

// TokenSource supplies the bearer token for metadata API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token. Suitable for long-lived API keys.
type StaticTokenSource string

func (s StaticTokenSource) Token(_ context.Context) (string, error) {
	return string(s), nil
}

type batchResponse struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Client talks to the target system's metadata and access APIs. It
// implements orchestrator.SchemaAdmin and orchestrator.AccessControl.
type Client struct {
	http   *resty.Client
	tokens TokenSource
	log    *slog.Logger
}

func NewClient(baseURL string, tokens TokenSource, log *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(internal.AdminDefaultTimeout).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		tokens: tokens,
		log:    log,
	}
}

func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire api token: %w", err)
	}
	return c.http.R().SetContext(ctx).SetAuthToken(token), nil
}

// CreateObject registers the container object for an insight definition.
// An already existing object is reported as models.ErrAlreadyExists.
func (c *Client) CreateObject(ctx context.Context, def models.InsightDefinition) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}

	var errResp errorResponse
	resp, err := req.
		SetBody(map[string]string{
			"full_name": def.ObjectFullName,
			"label":     def.ObjectLabel,
		}).
		SetError(&errResp).
		Post("/metadata/objects")
	if err != nil {
		return fmt.Errorf("create object request: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusConflict:
		return models.ErrAlreadyExists
	case resp.IsError():
		return fmt.Errorf("create object %s: status %d: %s",
			def.ObjectFullName, resp.StatusCode(), errResp.Message)
	}

	return nil
}

// CreateFields submits a batched field-creation call. Per-field failures
// come back inside the BatchResult rather than as a transport error.
func (c *Client) CreateFields(ctx context.Context, reqs []models.FieldCreationRequest) (zero models.BatchResult, _ error) {
	req, err := c.request(ctx)
	if err != nil {
		return zero, err
	}

	var (
		result  batchResponse
		errResp errorResponse
	)
	resp, err := req.
		SetBody(map[string]any{"fields": reqs}).
		SetResult(&result).
		SetError(&errResp).
		Post("/metadata/fields")
	if err != nil {
		return zero, fmt.Errorf("create fields request: %w", err)
	}

	if resp.IsError() {
		return zero, fmt.Errorf("create fields: status %d: %s", resp.StatusCode(), errResp.Message)
	}

	return models.BatchResult{
		Success: result.Success,
		Errors:  result.Errors,
	}, nil
}

// GrantFullAccess gives the role read and write access to every field of
// the object.
func (c *Client) GrantFullAccess(ctx context.Context, objectFullName, role string) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}

	var errResp errorResponse
	resp, err := req.
		SetBody(map[string]string{
			"object": objectFullName,
			"role":   role,
			"level":  "full",
		}).
		SetError(&errResp).
		Post("/access/grants")
	if err != nil {
		return fmt.Errorf("grant access request: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("grant access on %s: status %d: %s",
			objectFullName, resp.StatusCode(), errResp.Message)
	}

	return nil
}
