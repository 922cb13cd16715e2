// Package gatewaytest provides an in-memory control plane implementing
// gateway.API for tests. It models the eventual consistency of the real
// service: created resources sit in CREATING for a configurable number of
// observations before settling, and deletes settle the same way through
// DELETING.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agentgate/internal/gateway"
)

// Fake is an in-memory gateway.API. The zero value is not usable; construct
// with New.
type Fake struct {
	mu sync.Mutex

	region    string
	gateways  map[string]*gateway.Gateway
	providers map[string]*gateway.CredentialProvider
	targets   map[string]*gateway.Target

	// SettleAfter is the number of observations a resource stays in its
	// in-progress state before settling. Zero settles resources
	// immediately on create.
	SettleAfter int

	// FailNames lists resource names that settle to FAILED instead of
	// READY, with the given reason.
	FailNames map[string]string

	observations map[string]int
	nextErr      map[string]error
	calls        map[string]int
	opLog        []string
	idSeq        int
}

// New creates an empty fake control plane for the given region.
func New(region string) *Fake {
	return &Fake{
		region:       region,
		gateways:     make(map[string]*gateway.Gateway),
		providers:    make(map[string]*gateway.CredentialProvider),
		targets:      make(map[string]*gateway.Target),
		FailNames:    make(map[string]string),
		observations: make(map[string]int),
		nextErr:      make(map[string]error),
		calls:        make(map[string]int),
	}
}

// FailNext makes the next call to op (e.g. "CreateGateway") return err.
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextErr[op] = err
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// OpLog returns every invoked operation name in call order.
func (f *Fake) OpLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.opLog))
	copy(out, f.opLog)
	return out
}

// Region implements gateway.API.
func (f *Fake) Region() string {
	return f.region
}

// begin records the call and pops any injected error. Callers must hold no
// lock; begin takes and releases it.
func (f *Fake) begin(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	f.opLog = append(f.opLog, op)
	if err, ok := f.nextErr[op]; ok {
		delete(f.nextErr, op)
		return err
	}
	return nil
}

func (f *Fake) nextID(prefix string) string {
	f.idSeq++
	return fmt.Sprintf("%s-%06d", prefix, f.idSeq)
}

// settle advances an in-progress resource after enough observations and
// returns the (possibly updated) status. Deleting resources report one final
// DELETING observation per settle window, then the caller removes them.
func (f *Fake) settle(key, name string, status gateway.Status) (gateway.Status, bool) {
	if !status.Settling() {
		return status, false
	}
	f.observations[key]++
	if f.observations[key] <= f.SettleAfter {
		return status, false
	}
	f.observations[key] = 0

	switch status {
	case gateway.StatusCreating, gateway.StatusUpdating:
		if _, failed := f.FailNames[name]; failed {
			return gateway.StatusFailed, true
		}
		return gateway.StatusReady, true
	case gateway.StatusDeleting:
		return gateway.StatusDeleted, true
	}
	return status, false
}

func (f *Fake) initialStatus() gateway.Status {
	if f.SettleAfter == 0 {
		return gateway.StatusReady
	}
	return gateway.StatusCreating
}

// CreateGateway implements gateway.API. Duplicate names are rejected so a
// caller that skips adoption fails loudly in tests.
func (f *Fake) CreateGateway(_ context.Context, in gateway.CreateGatewayInput) (*gateway.Gateway, error) {
	if err := f.begin("CreateGateway"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, gw := range f.gateways {
		if gw.Name == in.Name {
			return nil, &gateway.ValidationError{Op: "CreateGateway", Message: fmt.Sprintf("gateway %q already exists", in.Name)}
		}
	}

	gw := &gateway.Gateway{
		ID:             f.nextID("gw"),
		Name:           in.Name,
		Status:         f.initialStatus(),
		ProtocolType:   in.ProtocolType,
		AuthorizerType: in.AuthorizerType,
		CreatedAt:      time.Now(),
	}
	if f.SettleAfter == 0 {
		if reason, failed := f.FailNames[in.Name]; failed {
			gw.Status = gateway.StatusFailed
			gw.StatusReasons = []string{reason}
		}
	}
	gw.URL = gateway.DefaultGatewayURL(gw.ID, f.region)
	f.gateways[gw.ID] = gw

	out := *gw
	return &out, nil
}

// GetGateway implements gateway.API.
func (f *Fake) GetGateway(_ context.Context, id string) (*gateway.Gateway, error) {
	if err := f.begin("GetGateway"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	gw, ok := f.gateways[id]
	if !ok {
		return nil, &gateway.NotFoundError{Kind: gateway.KindGateway, Ref: id}
	}

	if status, changed := f.settle("gw/"+id, gw.Name, gw.Status); changed {
		if status == gateway.StatusDeleted {
			delete(f.gateways, id)
			return nil, &gateway.NotFoundError{Kind: gateway.KindGateway, Ref: id}
		}
		gw.Status = status
		if status == gateway.StatusFailed {
			gw.StatusReasons = []string{f.FailNames[gw.Name]}
		}
	}

	out := *gw
	return &out, nil
}

// ListGateways implements gateway.API.
func (f *Fake) ListGateways(_ context.Context) ([]gateway.Gateway, error) {
	if err := f.begin("ListGateways"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []gateway.Gateway
	for _, gw := range f.gateways {
		out = append(out, *gw)
	}
	return out, nil
}

// DeleteGateway implements gateway.API. Gateways with attached targets are
// rejected, mirroring the real control plane's dependency protection.
func (f *Fake) DeleteGateway(_ context.Context, id string) error {
	if err := f.begin("DeleteGateway"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	gw, ok := f.gateways[id]
	if !ok {
		return &gateway.NotFoundError{Kind: gateway.KindGateway, Ref: id}
	}
	for _, target := range f.targets {
		if target.GatewayID == id {
			return &gateway.ValidationError{Op: "DeleteGateway", Message: "gateway still has targets attached"}
		}
	}

	if f.SettleAfter == 0 {
		delete(f.gateways, id)
		return nil
	}
	gw.Status = gateway.StatusDeleting
	f.observations["gw/"+id] = 0
	return nil
}

// CreateCredentialProvider implements gateway.API.
func (f *Fake) CreateCredentialProvider(_ context.Context, in gateway.CreateCredentialProviderInput) (*gateway.CredentialProvider, error) {
	if err := f.begin("CreateCredentialProvider"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.providers[in.Name]; exists {
		return nil, &gateway.ValidationError{Op: "CreateCredentialProvider", Message: fmt.Sprintf("credential provider %q already exists", in.Name)}
	}
	if in.Config.Custom == nil || in.Config.Custom.ClientSecret == "" {
		return nil, &gateway.ValidationError{Op: "CreateCredentialProvider", Message: "client secret is required"}
	}

	provider := &gateway.CredentialProvider{
		ARN:       fmt.Sprintf("arn:aws:bedrock-agentcore:%s:000000000000:token-vault/default/oauth2credentialprovider/%s", f.region, in.Name),
		Name:      in.Name,
		Status:    f.initialStatus(),
		ClientID:  in.Config.Custom.ClientID,
		CreatedAt: time.Now(),
	}
	provider.DiscoveryURL = in.Config.Custom.Discovery.DiscoveryURL
	if f.SettleAfter == 0 {
		if _, failed := f.FailNames[in.Name]; failed {
			provider.Status = gateway.StatusFailed
		}
	}
	f.providers[in.Name] = provider

	out := *provider
	return &out, nil
}

// GetCredentialProvider implements gateway.API.
func (f *Fake) GetCredentialProvider(_ context.Context, name string) (*gateway.CredentialProvider, error) {
	if err := f.begin("GetCredentialProvider"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	provider, ok := f.providers[name]
	if !ok {
		return nil, &gateway.NotFoundError{Kind: gateway.KindCredentialProvider, Ref: name}
	}

	if status, changed := f.settle("cp/"+name, name, provider.Status); changed {
		if status == gateway.StatusDeleted {
			delete(f.providers, name)
			return nil, &gateway.NotFoundError{Kind: gateway.KindCredentialProvider, Ref: name}
		}
		provider.Status = status
	}

	out := *provider
	return &out, nil
}

// ListCredentialProviders implements gateway.API.
func (f *Fake) ListCredentialProviders(_ context.Context) ([]gateway.CredentialProvider, error) {
	if err := f.begin("ListCredentialProviders"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []gateway.CredentialProvider
	for _, provider := range f.providers {
		out = append(out, *provider)
	}
	return out, nil
}

// DeleteCredentialProvider implements gateway.API. Providers referenced by a
// target are rejected.
func (f *Fake) DeleteCredentialProvider(_ context.Context, name string) error {
	if err := f.begin("DeleteCredentialProvider"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	provider, ok := f.providers[name]
	if !ok {
		return &gateway.NotFoundError{Kind: gateway.KindCredentialProvider, Ref: name}
	}
	for _, target := range f.targets {
		if target.CredentialProviderARN == provider.ARN {
			return &gateway.ValidationError{Op: "DeleteCredentialProvider", Message: "credential provider still referenced by a target"}
		}
	}

	if f.SettleAfter == 0 {
		delete(f.providers, name)
		return nil
	}
	provider.Status = gateway.StatusDeleting
	f.observations["cp/"+name] = 0
	return nil
}

// CreateTarget implements gateway.API. The referenced gateway must exist and
// the referenced credential provider must be READY.
func (f *Fake) CreateTarget(_ context.Context, in gateway.CreateTargetInput) (*gateway.Target, error) {
	if err := f.begin("CreateTarget"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.gateways[in.GatewayID]; !ok {
		return nil, &gateway.NotFoundError{Kind: gateway.KindGateway, Ref: in.GatewayID}
	}
	for _, target := range f.targets {
		if target.GatewayID == in.GatewayID && target.Name == in.Name {
			return nil, &gateway.ValidationError{Op: "CreateTarget", Message: fmt.Sprintf("target %q already exists", in.Name)}
		}
	}

	var providerARN, endpoint string
	if len(in.CredentialProviderConfigurations) > 0 && in.CredentialProviderConfigurations[0].CredentialProvider != nil {
		if oauth := in.CredentialProviderConfigurations[0].CredentialProvider.OAuth; oauth != nil {
			providerARN = oauth.ProviderARN
			found := false
			for _, provider := range f.providers {
				if provider.ARN == providerARN {
					found = true
					if provider.Status != gateway.StatusReady {
						return nil, &gateway.ValidationError{Op: "CreateTarget", Message: "credential provider is not ready"}
					}
				}
			}
			if !found {
				return nil, &gateway.ValidationError{Op: "CreateTarget", Message: "credential provider does not exist"}
			}
		}
	}
	if in.Configuration.MCP != nil && in.Configuration.MCP.Server != nil {
		endpoint = in.Configuration.MCP.Server.Endpoint
	}

	target := &gateway.Target{
		ID:                    f.nextID("tgt"),
		GatewayID:             in.GatewayID,
		Name:                  in.Name,
		Status:                f.initialStatus(),
		Endpoint:              endpoint,
		CredentialProviderARN: providerARN,
		CreatedAt:             time.Now(),
	}
	if f.SettleAfter == 0 {
		if reason, failed := f.FailNames[in.Name]; failed {
			target.Status = gateway.StatusFailed
			target.LastSyncError = reason
		}
	}
	f.targets[in.GatewayID+"/"+target.ID] = target

	out := *target
	return &out, nil
}

// GetTarget implements gateway.API.
func (f *Fake) GetTarget(_ context.Context, gatewayID, targetID string) (*gateway.Target, error) {
	if err := f.begin("GetTarget"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	key := gatewayID + "/" + targetID
	target, ok := f.targets[key]
	if !ok {
		return nil, &gateway.NotFoundError{Kind: gateway.KindTarget, Ref: targetID}
	}

	if status, changed := f.settle("tgt/"+key, target.Name, target.Status); changed {
		if status == gateway.StatusDeleted {
			delete(f.targets, key)
			return nil, &gateway.NotFoundError{Kind: gateway.KindTarget, Ref: targetID}
		}
		target.Status = status
		if status == gateway.StatusFailed {
			target.LastSyncError = f.FailNames[target.Name]
			target.LastSyncTime = time.Now()
		}
	}

	out := *target
	return &out, nil
}

// ListTargets implements gateway.API.
func (f *Fake) ListTargets(_ context.Context, gatewayID string) ([]gateway.Target, error) {
	if err := f.begin("ListTargets"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []gateway.Target
	for _, target := range f.targets {
		if target.GatewayID == gatewayID {
			out = append(out, *target)
		}
	}
	return out, nil
}

// DeleteTarget implements gateway.API.
func (f *Fake) DeleteTarget(_ context.Context, gatewayID, targetID string) error {
	if err := f.begin("DeleteTarget"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	key := gatewayID + "/" + targetID
	target, ok := f.targets[key]
	if !ok {
		return &gateway.NotFoundError{Kind: gateway.KindTarget, Ref: targetID}
	}

	if f.SettleAfter == 0 {
		delete(f.targets, key)
		return nil
	}
	target.Status = gateway.StatusDeleting
	f.observations["tgt/"+key] = 0
	return nil
}
