package gateway

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"

	"agentgate/pkg/logging"
)

const (
	// DefaultHTTPTimeout is the default timeout for control-plane requests.
	DefaultHTTPTimeout = 30 * time.Second

	// signingService is the service name used for request signing.
	signingService = "bedrock-agentcore"
)

// API is the control-plane surface consumed by the provisioner, the status
// poller, and the status command. It provides create/get/list/delete for the
// three resource kinds.
type API interface {
	CreateGateway(ctx context.Context, in CreateGatewayInput) (*Gateway, error)
	GetGateway(ctx context.Context, id string) (*Gateway, error)
	ListGateways(ctx context.Context) ([]Gateway, error)
	DeleteGateway(ctx context.Context, id string) error

	CreateCredentialProvider(ctx context.Context, in CreateCredentialProviderInput) (*CredentialProvider, error)
	GetCredentialProvider(ctx context.Context, name string) (*CredentialProvider, error)
	ListCredentialProviders(ctx context.Context) ([]CredentialProvider, error)
	DeleteCredentialProvider(ctx context.Context, name string) error

	CreateTarget(ctx context.Context, in CreateTargetInput) (*Target, error)
	GetTarget(ctx context.Context, gatewayID, targetID string) (*Target, error)
	ListTargets(ctx context.Context, gatewayID string) ([]Target, error)
	DeleteTarget(ctx context.Context, gatewayID, targetID string) error

	// Region returns the control-plane region the client talks to.
	Region() string
}

// Client is the HTTP implementation of API. Every request is SigV4-signed
// with credentials from the default chain (environment, shared config,
// instance roles).
type Client struct {
	httpClient  *http.Client
	endpoint    string
	region      string
	credentials aws.CredentialsProvider
	signer      *v4.Signer
}

// ClientOption configures the control-plane client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithEndpoint overrides the control-plane base URL. Used for local stubs.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithCredentials overrides the credential provider used for signing.
func WithCredentials(provider aws.CredentialsProvider) ClientOption {
	return func(c *Client) {
		c.credentials = provider
	}
}

// NewClient creates a control-plane client for the given region, loading
// signing credentials from the default chain unless overridden.
func NewClient(ctx context.Context, region string, opts ...ClientOption) (*Client, error) {
	if region == "" {
		return nil, &ValidationError{Op: "NewClient", Message: "region is required"}
	}

	c := &Client{
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		endpoint:   fmt.Sprintf("https://bedrock-agentcore-control.%s.amazonaws.com", region),
		region:     region,
		signer:     v4.NewSigner(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.credentials == nil {
		cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("cannot load AWS config: %w", err)
		}
		c.credentials = cfg.Credentials
	}

	return c, nil
}

// Region returns the configured control-plane region.
func (c *Client) Region() string {
	return c.region
}

// CreateGateway registers a new gateway. The control plane finishes the
// creation asynchronously; the returned status is usually CREATING.
func (c *Client) CreateGateway(ctx context.Context, in CreateGatewayInput) (*Gateway, error) {
	var out Gateway
	if err := c.do(ctx, "CreateGateway", http.MethodPost, "/gateways", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetGateway fetches a gateway by id.
func (c *Client) GetGateway(ctx context.Context, id string) (*Gateway, error) {
	var out Gateway
	err := c.do(ctx, "GetGateway", http.MethodGet, "/gateways/"+url.PathEscape(id), nil, &out)
	if err != nil {
		return nil, refineNotFound(err, KindGateway, id)
	}
	return &out, nil
}

// ListGateways lists all gateways in the region.
func (c *Client) ListGateways(ctx context.Context) ([]Gateway, error) {
	var out struct {
		Items []Gateway `json:"items"`
	}
	if err := c.do(ctx, "ListGateways", http.MethodGet, "/gateways", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// DeleteGateway starts asynchronous deletion of a gateway. A gateway that
// still has targets attached is rejected by the control plane.
func (c *Client) DeleteGateway(ctx context.Context, id string) error {
	err := c.do(ctx, "DeleteGateway", http.MethodDelete, "/gateways/"+url.PathEscape(id), nil, nil)
	return refineNotFound(err, KindGateway, id)
}

// CreateCredentialProvider registers an outbound OAuth2 credential provider.
// The client secret in the input is held by the control plane's vault and is
// never readable back.
func (c *Client) CreateCredentialProvider(ctx context.Context, in CreateCredentialProviderInput) (*CredentialProvider, error) {
	var out CredentialProvider
	if err := c.do(ctx, "CreateCredentialProvider", http.MethodPost, "/credential-providers", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCredentialProvider fetches a credential provider by name.
func (c *Client) GetCredentialProvider(ctx context.Context, name string) (*CredentialProvider, error) {
	var out CredentialProvider
	err := c.do(ctx, "GetCredentialProvider", http.MethodGet, "/credential-providers/"+url.PathEscape(name), nil, &out)
	if err != nil {
		return nil, refineNotFound(err, KindCredentialProvider, name)
	}
	return &out, nil
}

// ListCredentialProviders lists all credential providers in the region.
func (c *Client) ListCredentialProviders(ctx context.Context) ([]CredentialProvider, error) {
	var out struct {
		Items []CredentialProvider `json:"items"`
	}
	if err := c.do(ctx, "ListCredentialProviders", http.MethodGet, "/credential-providers", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// DeleteCredentialProvider removes a credential provider by name. Providers
// still referenced by a target are rejected by the control plane.
func (c *Client) DeleteCredentialProvider(ctx context.Context, name string) error {
	err := c.do(ctx, "DeleteCredentialProvider", http.MethodDelete, "/credential-providers/"+url.PathEscape(name), nil, nil)
	return refineNotFound(err, KindCredentialProvider, name)
}

// CreateTarget attaches a backend target to a gateway. Requires the gateway
// to exist; the referenced credential provider must already be READY.
func (c *Client) CreateTarget(ctx context.Context, in CreateTargetInput) (*Target, error) {
	if in.GatewayID == "" {
		return nil, &ValidationError{Op: "CreateTarget", Message: "gateway id is required"}
	}
	var out Target
	path := "/gateways/" + url.PathEscape(in.GatewayID) + "/targets"
	if err := c.do(ctx, "CreateTarget", http.MethodPost, path, in, &out); err != nil {
		return nil, err
	}
	if out.GatewayID == "" {
		out.GatewayID = in.GatewayID
	}
	return &out, nil
}

// GetTarget fetches a target by gateway and target id.
func (c *Client) GetTarget(ctx context.Context, gatewayID, targetID string) (*Target, error) {
	var out Target
	path := "/gateways/" + url.PathEscape(gatewayID) + "/targets/" + url.PathEscape(targetID)
	err := c.do(ctx, "GetTarget", http.MethodGet, path, nil, &out)
	if err != nil {
		return nil, refineNotFound(err, KindTarget, targetID)
	}
	if out.GatewayID == "" {
		out.GatewayID = gatewayID
	}
	return &out, nil
}

// ListTargets lists the targets attached to a gateway.
func (c *Client) ListTargets(ctx context.Context, gatewayID string) ([]Target, error) {
	var out struct {
		Items []Target `json:"items"`
	}
	path := "/gateways/" + url.PathEscape(gatewayID) + "/targets"
	if err := c.do(ctx, "ListTargets", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	for i := range out.Items {
		if out.Items[i].GatewayID == "" {
			out.Items[i].GatewayID = gatewayID
		}
	}
	return out.Items, nil
}

// DeleteTarget detaches and deletes a target.
func (c *Client) DeleteTarget(ctx context.Context, gatewayID, targetID string) error {
	path := "/gateways/" + url.PathEscape(gatewayID) + "/targets/" + url.PathEscape(targetID)
	err := c.do(ctx, "DeleteTarget", http.MethodDelete, path, nil, nil)
	return refineNotFound(err, KindTarget, targetID)
}

// do performs one signed request and decodes the JSON response into out.
// Network failures are classified as transient; HTTP status codes are
// classified by classifyStatus.
func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	credentials, err := c.credentials.Retrieve(ctx)
	if err != nil {
		return &TransientError{Op: op, Err: fmt.Errorf("cannot retrieve AWS credentials: %w", err)}
	}

	payloadHash := sha256.Sum256(body)
	if err := c.signer.SignHTTP(ctx, credentials, req,
		hex.EncodeToString(payloadHash[:]), signingService, c.region, time.Now()); err != nil {
		return fmt.Errorf("%s: cannot sign request: %w", op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		return classifyStatus(op, resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%s: failed to parse response: %w", op, err)
		}
	}

	logging.Debug("ControlPlane", "%s %s -> %d", method, path, resp.StatusCode)
	return nil
}

// classifyStatus maps an HTTP error response onto the error taxonomy.
// Throttling and server errors are transient; everything else cannot succeed
// on retry and fails fast.
func classifyStatus(op string, status int, body []byte) error {
	message := controlPlaneMessage(body)
	switch {
	case status == http.StatusNotFound:
		return &NotFoundError{Ref: message}
	case status == http.StatusTooManyRequests || status >= 500:
		return &TransientError{Op: op, Err: fmt.Errorf("control plane returned %d: %s", status, message)}
	default:
		return &ValidationError{Op: op, Message: fmt.Sprintf("control plane returned %d: %s", status, message)}
	}
}

// controlPlaneMessage extracts the error message from a control-plane error
// body, falling back to the raw body.
func controlPlaneMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return string(body)
}

// refineNotFound fills kind and ref into a NotFoundError produced by
// classifyStatus, which only sees the raw response.
func refineNotFound(err error, kind Kind, ref string) error {
	if err == nil {
		return nil
	}
	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return &NotFoundError{Kind: kind, Ref: ref}
	}
	return err
}
