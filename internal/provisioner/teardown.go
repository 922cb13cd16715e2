package provisioner

import (
	"context"
	"fmt"

	"agentgate/internal/gateway"
	"agentgate/internal/poller"
	"agentgate/pkg/logging"
)

// TeardownSpec names the resources to remove.
type TeardownSpec struct {
	// GatewayName is the logical gateway name.
	GatewayName string
	// ProviderName is the logical credential provider name.
	ProviderName string
}

// Teardown removes the deployment in reverse dependency order: targets
// first, then the credential provider, then the gateway. Each deletion is
// waited to completion before the next starts so no step trips over a
// dangling reference. Resources that are already absent are skipped. On
// error the remaining resources are left as they are for inspection.
func (p *Provisioner) Teardown(ctx context.Context, spec TeardownSpec) error {
	gw, err := p.findGateway(ctx, spec.GatewayName)
	if err != nil {
		return err
	}

	if gw != nil {
		if err := p.deleteTargets(ctx, gw); err != nil {
			return err
		}
	}

	if spec.ProviderName != "" {
		if err := p.deleteProvider(ctx, spec.ProviderName); err != nil {
			return err
		}
	}

	if gw != nil {
		if err := p.deleteGateway(ctx, gw); err != nil {
			return err
		}
	} else {
		logging.Info("Provisioner", "Gateway %s already absent", spec.GatewayName)
	}

	return nil
}

// deleteTargets removes every target attached to the gateway and waits for
// each deletion to finish.
func (p *Provisioner) deleteTargets(ctx context.Context, gw *gateway.Gateway) error {
	targets, err := p.api.ListTargets(ctx, gw.ID)
	if err != nil {
		return err
	}

	for _, target := range targets {
		logging.Info("Provisioner", "Deleting target %s (%s)", target.Name, target.ID)
		err := p.retryTransient(ctx, "DeleteTarget", func() error {
			return p.api.DeleteTarget(ctx, gw.ID, target.ID)
		})
		if err != nil && !gateway.IsNotFound(err) {
			return err
		}

		ref := poller.Ref{Kind: gateway.KindTarget, ID: target.ID, GatewayID: gw.ID, Name: target.Name}
		if err := p.waitGone(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}

// deleteProvider removes the credential provider if it exists and waits for
// the deletion to finish.
func (p *Provisioner) deleteProvider(ctx context.Context, name string) error {
	_, err := p.api.GetCredentialProvider(ctx, name)
	if gateway.IsNotFound(err) {
		logging.Info("Provisioner", "Credential provider %s already absent", name)
		return nil
	}
	if err != nil {
		return err
	}

	logging.Info("Provisioner", "Deleting credential provider %s", name)
	err = p.retryTransient(ctx, "DeleteCredentialProvider", func() error {
		return p.api.DeleteCredentialProvider(ctx, name)
	})
	if err != nil && !gateway.IsNotFound(err) {
		return err
	}

	ref := poller.Ref{Kind: gateway.KindCredentialProvider, ID: name, Name: name}
	return p.waitGone(ctx, ref)
}

// deleteGateway removes the gateway itself and waits for the deletion to
// finish.
func (p *Provisioner) deleteGateway(ctx context.Context, gw *gateway.Gateway) error {
	logging.Info("Provisioner", "Deleting gateway %s (%s)", gw.Name, gw.ID)
	err := p.retryTransient(ctx, "DeleteGateway", func() error {
		return p.api.DeleteGateway(ctx, gw.ID)
	})
	if err != nil && !gateway.IsNotFound(err) {
		return err
	}

	ref := poller.Ref{Kind: gateway.KindGateway, ID: gw.ID, Name: gw.Name}
	return p.waitGone(ctx, ref)
}

// waitGone blocks until the resource is no longer observable.
func (p *Provisioner) waitGone(ctx context.Context, ref poller.Ref) error {
	status, err := p.poll.WaitUntil(ctx, ref, func(s gateway.Status) bool {
		return s == gateway.StatusAbsent
	}, p.waitTimeout)
	if err != nil {
		return err
	}
	if status != gateway.StatusAbsent {
		return fmt.Errorf("%s still observable after delete (status %s)", ref, status)
	}
	return nil
}
