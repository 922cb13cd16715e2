package provisioner

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"agentgate/internal/gateway"
	"agentgate/internal/poller"
	"agentgate/internal/secrets"
	"agentgate/pkg/logging"
)

const (
	// DefaultRetryBudget bounds retries of one create/delete call when the
	// control plane answers with transient errors.
	DefaultRetryBudget = time.Minute
)

// GatewaySpec describes the desired gateway.
type GatewaySpec struct {
	// Name is the logical name used for adoption.
	Name string
	// RoleARN is the execution role the gateway assumes.
	RoleARN string
	// Description is free-form.
	Description string
	// InboundIssuer is the identity provider trusted for agent tokens.
	// The discovery URL is derived from it.
	InboundIssuer string
	// InboundAudience lists token audiences the gateway accepts.
	InboundAudience []string
}

// CredentialProviderSpec describes the desired outbound credential provider.
// Client id and secret are fetched transiently from the secret store; only
// the refs live in this struct.
type CredentialProviderSpec struct {
	// Name is the logical name used for adoption.
	Name string
	// Issuer is the OAuth2 issuer for outbound tokens. The discovery URL
	// is derived from it.
	Issuer string
	// ClientIDRef is the secret store path of the OAuth2 client id.
	ClientIDRef string
	// ClientSecretRef is the secret store path of the OAuth2 client secret.
	ClientSecretRef string
}

// TargetSpec describes the desired backend target.
type TargetSpec struct {
	// Name is the logical name used for adoption.
	Name string
	// GatewayID is the owning gateway.
	GatewayID string
	// Endpoint is the backend MCP server URL.
	Endpoint string
	// ProviderName is the logical name of the credential provider the
	// target authenticates with. It must be READY before ensure.
	ProviderName string
	// Audience is the outbound token audience requested from the issuer.
	Audience string
	// Scopes are the outbound token scopes. Usually empty for
	// client-credentials backends.
	Scopes []string
}

// Provisioner drives the resource state machine: adopt by name, create when
// absent, wait for the control plane to settle, and branch on the terminal
// status. All operations are idempotent and safe to re-run after an
// interruption.
type Provisioner struct {
	api         gateway.API
	poll        *poller.Poller
	store       secrets.Store
	waitTimeout time.Duration
	retryBudget time.Duration
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithWaitTimeout bounds each wait for a resource to settle.
func WithWaitTimeout(timeout time.Duration) Option {
	return func(p *Provisioner) {
		p.waitTimeout = timeout
	}
}

// WithRetryBudget bounds retries of transient create/delete failures.
func WithRetryBudget(budget time.Duration) Option {
	return func(p *Provisioner) {
		p.retryBudget = budget
	}
}

// New creates a Provisioner over the control-plane API, a poller for status
// waits, and the secret store for transient credential reads.
func New(api gateway.API, poll *poller.Poller, store secrets.Store, opts ...Option) *Provisioner {
	p := &Provisioner{
		api:         api,
		poll:        poll,
		store:       store,
		waitTimeout: poller.DefaultWaitTimeout,
		retryBudget: DefaultRetryBudget,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// EnsureGateway makes the named gateway exist and be READY. An existing
// gateway with the same name is adopted, never recreated; one still settling
// is waited on. Returns the gateway including its id and endpoint URL.
func (p *Provisioner) EnsureGateway(ctx context.Context, spec GatewaySpec) (*gateway.Gateway, error) {
	if spec.Name == "" {
		return nil, &gateway.ValidationError{Op: "EnsureGateway", Message: "gateway name is required"}
	}
	if spec.InboundIssuer == "" {
		return nil, &gateway.ValidationError{Op: "EnsureGateway", Message: "inbound issuer is required"}
	}

	existing, err := p.findGateway(ctx, spec.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logging.Info("Provisioner", "Adopting existing gateway %s (%s, status %s)", spec.Name, existing.ID, existing.Status)
		return p.settleGateway(ctx, existing)
	}

	in := gateway.CreateGatewayInput{
		Name:           spec.Name,
		ProtocolType:   gateway.ProtocolMCP,
		AuthorizerType: gateway.AuthorizerCustomJWT,
		AuthorizerConfig: &gateway.AuthorizerConfig{
			CustomJWT: &gateway.JWTAuthorizerConfig{
				DiscoveryURL:    DiscoveryURL(spec.InboundIssuer),
				AllowedAudience: spec.InboundAudience,
			},
		},
		RoleARN:     spec.RoleARN,
		Description: spec.Description,
		ClientToken: uuid.NewString(),
	}

	var created *gateway.Gateway
	err = p.retryTransient(ctx, "CreateGateway", func() error {
		var createErr error
		created, createErr = p.api.CreateGateway(ctx, in)
		return createErr
	})
	if err != nil {
		return nil, err
	}
	logging.Info("Provisioner", "Created gateway %s (%s)", spec.Name, created.ID)

	return p.settleGateway(ctx, created)
}

// settleGateway waits for a gateway to reach a resting state and branches.
func (p *Provisioner) settleGateway(ctx context.Context, gw *gateway.Gateway) (*gateway.Gateway, error) {
	if gw.Status == gateway.StatusReady {
		return gw, nil
	}
	if gw.Status == gateway.StatusFailed {
		return nil, &gateway.ResourceFailedError{Kind: gateway.KindGateway, Name: gw.Name, ID: gw.ID, Reasons: gw.StatusReasons}
	}

	ref := poller.Ref{Kind: gateway.KindGateway, ID: gw.ID, Name: gw.Name}
	status, err := p.poll.WaitTerminal(ctx, ref, p.waitTimeout)
	if err != nil {
		return nil, err
	}

	settled, err := p.api.GetGateway(ctx, gw.ID)
	if err != nil {
		return nil, err
	}
	switch status {
	case gateway.StatusReady:
		return settled, nil
	case gateway.StatusFailed:
		return nil, &gateway.ResourceFailedError{Kind: gateway.KindGateway, Name: settled.Name, ID: settled.ID, Reasons: settled.StatusReasons}
	default:
		return nil, fmt.Errorf("gateway %q settled in unexpected status %s", gw.Name, status)
	}
}

// EnsureCredentialProvider makes the named credential provider exist and be
// READY. The client id and secret are fetched from the secret store for the
// create call only and are not retained.
func (p *Provisioner) EnsureCredentialProvider(ctx context.Context, spec CredentialProviderSpec) (*gateway.CredentialProvider, error) {
	if spec.Name == "" {
		return nil, &gateway.ValidationError{Op: "EnsureCredentialProvider", Message: "credential provider name is required"}
	}
	if spec.Issuer == "" {
		return nil, &gateway.ValidationError{Op: "EnsureCredentialProvider", Message: "issuer is required"}
	}

	existing, err := p.api.GetCredentialProvider(ctx, spec.Name)
	if err != nil && !gateway.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		logging.Info("Provisioner", "Adopting existing credential provider %s (status %s)", spec.Name, existing.Status)
		return p.settleProvider(ctx, existing)
	}

	clientID, err := p.store.Get(ctx, spec.ClientIDRef)
	if err != nil {
		return nil, &gateway.ValidationError{Op: "EnsureCredentialProvider", Message: fmt.Sprintf("cannot resolve client id: %v", err)}
	}
	clientSecret, err := p.store.Get(ctx, spec.ClientSecretRef)
	if err != nil {
		return nil, &gateway.ValidationError{Op: "EnsureCredentialProvider", Message: fmt.Sprintf("cannot resolve client secret: %v", err)}
	}

	in := gateway.CreateCredentialProviderInput{
		Name:   spec.Name,
		Vendor: gateway.VendorCustomOAuth2,
		Config: gateway.OAuth2ProviderConfig{
			Custom: &gateway.CustomOAuth2Config{
				Discovery: gateway.OAuthDiscovery{DiscoveryURL: DiscoveryURL(spec.Issuer)},
				ClientID:  clientID,
				// Sent once to the control plane's vault, never kept here.
				ClientSecret: clientSecret,
			},
		},
	}

	var created *gateway.CredentialProvider
	err = p.retryTransient(ctx, "CreateCredentialProvider", func() error {
		var createErr error
		created, createErr = p.api.CreateCredentialProvider(ctx, in)
		return createErr
	})
	if err != nil {
		return nil, err
	}
	logging.Info("Provisioner", "Created credential provider %s", spec.Name)

	return p.settleProvider(ctx, created)
}

// settleProvider waits for a credential provider to reach a resting state.
func (p *Provisioner) settleProvider(ctx context.Context, provider *gateway.CredentialProvider) (*gateway.CredentialProvider, error) {
	if provider.Status == gateway.StatusReady {
		return provider, nil
	}
	if provider.Status == gateway.StatusFailed {
		return nil, &gateway.ResourceFailedError{Kind: gateway.KindCredentialProvider, Name: provider.Name, ID: provider.ARN}
	}

	ref := poller.Ref{Kind: gateway.KindCredentialProvider, ID: provider.Name, Name: provider.Name}
	status, err := p.poll.WaitTerminal(ctx, ref, p.waitTimeout)
	if err != nil {
		return nil, err
	}

	settled, err := p.api.GetCredentialProvider(ctx, provider.Name)
	if err != nil {
		return nil, err
	}
	switch status {
	case gateway.StatusReady:
		return settled, nil
	case gateway.StatusFailed:
		return nil, &gateway.ResourceFailedError{Kind: gateway.KindCredentialProvider, Name: settled.Name, ID: settled.ARN}
	default:
		return nil, fmt.Errorf("credential provider %q settled in unexpected status %s", provider.Name, status)
	}
}

// EnsureTarget makes the named target exist on the gateway and be READY.
// The referenced credential provider must already be READY: ordering is a
// precondition, and a provider that is absent or still settling fails the
// call immediately rather than being waited out.
func (p *Provisioner) EnsureTarget(ctx context.Context, spec TargetSpec) (*gateway.Target, error) {
	if spec.Name == "" {
		return nil, &gateway.ValidationError{Op: "EnsureTarget", Message: "target name is required"}
	}
	if spec.GatewayID == "" {
		return nil, &gateway.ValidationError{Op: "EnsureTarget", Message: "gateway id is required"}
	}
	if spec.Endpoint == "" {
		return nil, &gateway.ValidationError{Op: "EnsureTarget", Message: "backend endpoint is required"}
	}

	provider, err := p.api.GetCredentialProvider(ctx, spec.ProviderName)
	if err != nil {
		if gateway.IsNotFound(err) {
			return nil, &gateway.ValidationError{
				Op:      "EnsureTarget",
				Message: fmt.Sprintf("credential provider %q does not exist; provision it first", spec.ProviderName),
			}
		}
		return nil, err
	}
	if provider.Status != gateway.StatusReady {
		return nil, &gateway.ValidationError{
			Op:      "EnsureTarget",
			Message: fmt.Sprintf("credential provider %q is %s, not READY", spec.ProviderName, provider.Status),
		}
	}

	existing, err := p.findTarget(ctx, spec.GatewayID, spec.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logging.Info("Provisioner", "Adopting existing target %s (%s, status %s)", spec.Name, existing.ID, existing.Status)
		return p.settleTarget(ctx, existing)
	}

	scopes := spec.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	in := gateway.CreateTargetInput{
		GatewayID: spec.GatewayID,
		Name:      spec.Name,
		Configuration: gateway.TargetConfiguration{
			MCP: &gateway.MCPTargetConfiguration{
				Server: &gateway.MCPServerTargetConfig{Endpoint: spec.Endpoint},
			},
		},
		CredentialProviderConfigurations: []gateway.CredentialProviderConfiguration{
			{
				Type: gateway.CredentialTypeOAuth,
				CredentialProvider: &gateway.CredentialProviderSpec{
					OAuth: &gateway.OAuthCredentialProviderSpec{
						ProviderARN:      provider.ARN,
						GrantType:        gateway.GrantClientCredentials,
						Scopes:           scopes,
						CustomParameters: targetCustomParameters(spec.Audience),
					},
				},
			},
		},
		ClientToken: uuid.NewString(),
	}

	var created *gateway.Target
	err = p.retryTransient(ctx, "CreateTarget", func() error {
		var createErr error
		created, createErr = p.api.CreateTarget(ctx, in)
		return createErr
	})
	if err != nil {
		return nil, err
	}
	logging.Info("Provisioner", "Created target %s (%s) on gateway %s", spec.Name, created.ID, spec.GatewayID)

	return p.settleTarget(ctx, created)
}

// settleTarget waits for a target to reach a resting state.
func (p *Provisioner) settleTarget(ctx context.Context, target *gateway.Target) (*gateway.Target, error) {
	if target.Status == gateway.StatusReady {
		return target, nil
	}
	if target.Status == gateway.StatusFailed {
		return nil, &gateway.ResourceFailedError{
			Kind: gateway.KindTarget, Name: target.Name, ID: target.ID,
			Reasons: syncReasons(target),
		}
	}

	ref := poller.Ref{Kind: gateway.KindTarget, ID: target.ID, GatewayID: target.GatewayID, Name: target.Name}
	status, err := p.poll.WaitTerminal(ctx, ref, p.waitTimeout)
	if err != nil {
		return nil, err
	}

	settled, err := p.api.GetTarget(ctx, target.GatewayID, target.ID)
	if err != nil {
		return nil, err
	}
	switch status {
	case gateway.StatusReady:
		return settled, nil
	case gateway.StatusFailed:
		return nil, &gateway.ResourceFailedError{
			Kind: gateway.KindTarget, Name: settled.Name, ID: settled.ID,
			Reasons: syncReasons(settled),
		}
	default:
		return nil, fmt.Errorf("target %q settled in unexpected status %s", target.Name, status)
	}
}

// findGateway looks a gateway up by logical name. Returns nil when absent.
func (p *Provisioner) findGateway(ctx context.Context, name string) (*gateway.Gateway, error) {
	gateways, err := p.api.ListGateways(ctx)
	if err != nil {
		return nil, err
	}
	for i := range gateways {
		if gateways[i].Name == name {
			return &gateways[i], nil
		}
	}
	return nil, nil
}

// findTarget looks a target up by logical name on one gateway. Returns nil
// when absent.
func (p *Provisioner) findTarget(ctx context.Context, gatewayID, name string) (*gateway.Target, error) {
	targets, err := p.api.ListTargets(ctx, gatewayID)
	if err != nil {
		return nil, err
	}
	for i := range targets {
		if targets[i].Name == name {
			return &targets[i], nil
		}
	}
	return nil, nil
}

// retryTransient runs fn, retrying transient control-plane errors with
// exponential backoff inside the retry budget. Any other error aborts the
// retry loop immediately.
func (p *Provisioner) retryTransient(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxElapsedTime = p.retryBudget

	operation := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if gateway.IsTransient(err) {
			logging.Warn("Provisioner", "%s failed transiently, retrying: %v", op, err)
			return err
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// targetCustomParameters carries the audience through to the gateway's
// outbound token requests. Issuers that scope tokens by audience require it.
func targetCustomParameters(audience string) map[string]string {
	if audience == "" {
		return nil
	}
	return map[string]string{"audience": audience}
}

// syncReasons extracts the failure reason a target reports.
func syncReasons(target *gateway.Target) []string {
	if target.LastSyncError == "" {
		return nil
	}
	return []string{target.LastSyncError}
}

// DiscoveryURL derives the OpenID Connect discovery document URL from an
// issuer URL.
func DiscoveryURL(issuer string) string {
	for len(issuer) > 0 && issuer[len(issuer)-1] == '/' {
		issuer = issuer[:len(issuer)-1]
	}
	return issuer + "/.well-known/openid-configuration"
}
