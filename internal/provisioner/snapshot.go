package provisioner

import (
	"context"

	"agentgate/internal/gateway"
)

// Snapshot is a point-in-time view of the deployment, used by the status
// command. Absent resources are nil or empty; a snapshot never fabricates a
// status.
type Snapshot struct {
	Gateway  *gateway.Gateway
	Provider *gateway.CredentialProvider
	Targets  []gateway.Target
}

// Snapshot reads the current state of the named resources from the control
// plane. It is a pure observation: nothing is created, mutated, or waited
// on.
func (p *Provisioner) Snapshot(ctx context.Context, gatewayName, providerName string) (*Snapshot, error) {
	snap := &Snapshot{}

	gw, err := p.findGateway(ctx, gatewayName)
	if err != nil {
		return nil, err
	}
	snap.Gateway = gw

	if gw != nil {
		targets, err := p.api.ListTargets(ctx, gw.ID)
		if err != nil {
			return nil, err
		}
		snap.Targets = targets
	}

	if providerName != "" {
		provider, err := p.api.GetCredentialProvider(ctx, providerName)
		if err != nil && !gateway.IsNotFound(err) {
			return nil, err
		}
		snap.Provider = provider
	}

	return snap, nil
}
