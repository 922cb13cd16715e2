package gateway

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a control-plane resource.
//
// CREATING, UPDATING, READY, FAILED and DELETING are reported by the control
// plane. ABSENT and DELETED are local observations: ABSENT before a resource
// exists, DELETED once a lookup returns not-found after a delete was issued.
type Status string

const (
	StatusAbsent   Status = "ABSENT"
	StatusCreating Status = "CREATING"
	StatusUpdating Status = "UPDATING"
	StatusReady    Status = "READY"
	StatusFailed   Status = "FAILED"
	StatusDeleting Status = "DELETING"
	StatusDeleted  Status = "DELETED"
)

// ParseStatus normalizes a control-plane status string. Unrecognized values
// are preserved uppercased so they remain visible in status output rather
// than being masked as failures.
func ParseStatus(s string) Status {
	switch strings.ToUpper(s) {
	case "CREATING":
		return StatusCreating
	case "UPDATING":
		return StatusUpdating
	case "READY", "ACTIVE":
		return StatusReady
	case "FAILED":
		return StatusFailed
	case "DELETING":
		return StatusDeleting
	case "DELETED":
		return StatusDeleted
	default:
		return Status(strings.ToUpper(s))
	}
}

// Terminal reports whether the status is a resting state: the control plane
// will not move the resource further without another operation.
func (s Status) Terminal() bool {
	switch s {
	case StatusReady, StatusFailed, StatusDeleted, StatusAbsent:
		return true
	default:
		return false
	}
}

// Settling reports whether the control plane is still working on the
// resource and another observation is worthwhile.
func (s Status) Settling() bool {
	switch s {
	case StatusCreating, StatusUpdating, StatusDeleting:
		return true
	default:
		return false
	}
}

// Kind identifies one of the three provisioned resource kinds.
type Kind string

const (
	KindGateway            Kind = "gateway"
	KindCredentialProvider Kind = "credential-provider"
	KindTarget             Kind = "target"
)

// Gateway is the routable frontend resource agents connect to.
type Gateway struct {
	ID             string    `json:"gatewayId"`
	Name           string    `json:"name"`
	Status         Status    `json:"status"`
	StatusReasons  []string  `json:"statusReasons,omitempty"`
	URL            string    `json:"gatewayUrl,omitempty"`
	ProtocolType   string    `json:"protocolType,omitempty"`
	AuthorizerType string    `json:"authorizerType,omitempty"`
	CreatedAt      time.Time `json:"createdAt,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt,omitempty"`
}

// Endpoint returns the gateway's MCP URL. The control plane reports it once
// the gateway is routable; before that it is derived from the id and region.
func (g *Gateway) Endpoint(region string) string {
	if g.URL != "" {
		return g.URL
	}
	if g.ID == "" {
		return ""
	}
	return DefaultGatewayURL(g.ID, region)
}

// DefaultGatewayURL builds the well-known MCP endpoint form for a gateway id.
func DefaultGatewayURL(gatewayID, region string) string {
	return fmt.Sprintf("https://%s.gateway.bedrock-agentcore.%s.amazonaws.com/mcp", gatewayID, region)
}

// JWTAuthorizerConfig configures inbound bearer-token validation on the
// gateway itself: which discovery document to trust and which audiences or
// client ids to accept.
type JWTAuthorizerConfig struct {
	DiscoveryURL    string   `json:"discoveryUrl"`
	AllowedAudience []string `json:"allowedAudience,omitempty"`
	AllowedClients  []string `json:"allowedClients,omitempty"`
}

// AuthorizerConfig wraps the supported inbound authorizer variants.
type AuthorizerConfig struct {
	CustomJWT *JWTAuthorizerConfig `json:"customJWTAuthorizer,omitempty"`
}

// CreateGatewayInput is the create request for a gateway.
type CreateGatewayInput struct {
	Name             string            `json:"name"`
	ProtocolType     string            `json:"protocolType"`
	AuthorizerType   string            `json:"authorizerType"`
	AuthorizerConfig *AuthorizerConfig `json:"authorizerConfiguration,omitempty"`
	RoleARN          string            `json:"roleArn,omitempty"`
	Description      string            `json:"description,omitempty"`

	// ClientToken makes the create call safe to retry; the control plane
	// deduplicates creates carrying the same token.
	ClientToken string `json:"clientToken,omitempty"`
}

// CredentialProvider is a stored configuration for obtaining outbound OAuth2
// tokens. The control plane keeps the client secret in its own vault; it is
// never returned on reads and never stored in this struct.
type CredentialProvider struct {
	ARN          string    `json:"credentialProviderArn"`
	Name         string    `json:"name"`
	Status       Status    `json:"status"`
	DiscoveryURL string    `json:"discoveryUrl,omitempty"`
	ClientID     string    `json:"clientId,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
}

// OAuthDiscovery points the provider at the issuer's discovery document.
type OAuthDiscovery struct {
	DiscoveryURL string `json:"discoveryUrl"`
}

// CustomOAuth2Config carries the issuer coordinates and client credentials
// for a custom OAuth2 vendor. ClientSecret is transient: it is sent on
// create and immediately discarded, never echoed back by the control plane.
type CustomOAuth2Config struct {
	Discovery    OAuthDiscovery `json:"oauthDiscovery"`
	ClientID     string         `json:"clientId"`
	ClientSecret string         `json:"clientSecret"`
}

// OAuth2ProviderConfig wraps the supported provider vendor variants.
type OAuth2ProviderConfig struct {
	Custom *CustomOAuth2Config `json:"customOauth2ProviderConfig,omitempty"`
}

// CreateCredentialProviderInput is the create request for a credential
// provider.
type CreateCredentialProviderInput struct {
	Name   string               `json:"name"`
	Vendor string               `json:"credentialProviderVendor"`
	Config OAuth2ProviderConfig `json:"oauth2ProviderConfigInput"`
}

// Target is a configured backend connection attached to a gateway.
type Target struct {
	ID                    string    `json:"targetId"`
	GatewayID             string    `json:"gatewayId"`
	Name                  string    `json:"name"`
	Status                Status    `json:"status"`
	Endpoint              string    `json:"endpoint,omitempty"`
	CredentialProviderARN string    `json:"credentialProviderArn,omitempty"`
	LastSyncError         string    `json:"lastSyncError,omitempty"`
	LastSyncTime          time.Time `json:"lastSyncTime,omitempty"`
	CreatedAt             time.Time `json:"createdAt,omitempty"`
}

// MCPServerTargetConfig points a target at a remote MCP server endpoint.
type MCPServerTargetConfig struct {
	Endpoint string `json:"endpoint"`
}

// MCPTargetConfiguration wraps the supported MCP target variants.
type MCPTargetConfiguration struct {
	Server *MCPServerTargetConfig `json:"mcpServer,omitempty"`
}

// TargetConfiguration wraps the supported target protocol variants.
type TargetConfiguration struct {
	MCP *MCPTargetConfiguration `json:"mcp,omitempty"`
}

// OAuthCredentialProviderSpec binds a target to a credential provider and
// fixes the grant parameters used when the gateway brokers outbound tokens.
type OAuthCredentialProviderSpec struct {
	ProviderARN      string            `json:"providerArn"`
	GrantType        string            `json:"grantType,omitempty"`
	Scopes           []string          `json:"scopes"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// CredentialProviderSpec wraps the supported credential provider bindings.
type CredentialProviderSpec struct {
	OAuth *OAuthCredentialProviderSpec `json:"oauthCredentialProvider,omitempty"`
}

// CredentialProviderConfiguration attaches one credential binding to a
// target create request.
type CredentialProviderConfiguration struct {
	Type               string                  `json:"credentialProviderType"`
	CredentialProvider *CredentialProviderSpec `json:"credentialProvider,omitempty"`
}

// CreateTargetInput is the create request for a gateway target. GatewayID is
// carried in the request path, not the body.
type CreateTargetInput struct {
	GatewayID                        string                            `json:"-"`
	Name                             string                            `json:"name"`
	Configuration                    TargetConfiguration               `json:"targetConfiguration"`
	CredentialProviderConfigurations []CredentialProviderConfiguration `json:"credentialProviderConfigurations,omitempty"`
	ClientToken                      string                            `json:"clientToken,omitempty"`
}

const (
	// ProtocolMCP is the only gateway protocol this tool provisions.
	ProtocolMCP = "MCP"

	// AuthorizerCustomJWT selects bearer-token validation against a custom
	// issuer's discovery document.
	AuthorizerCustomJWT = "CUSTOM_JWT"

	// VendorCustomOAuth2 is the credential provider vendor for a plain
	// OAuth2 issuer configured by discovery URL.
	VendorCustomOAuth2 = "CustomOauth2"

	// CredentialTypeOAuth marks a target credential binding as OAuth.
	CredentialTypeOAuth = "OAUTH"

	// GrantClientCredentials is the outbound grant used for all targets.
	GrantClientCredentials = "CLIENT_CREDENTIALS"
)
