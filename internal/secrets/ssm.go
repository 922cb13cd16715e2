package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"agentgate/pkg/logging"
)

// ssmAPI is the subset of the SSM client used by SSMStore. Narrowing the
// surface keeps tests independent of the real service.
type ssmAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// SSMStore is a Store backed by AWS SSM Parameter Store. Encrypted values
// are stored as SecureString parameters and decrypted transparently on read.
type SSMStore struct {
	client ssmAPI
}

// NewSSMStore creates a parameter-store client for the given region using
// the default credential chain.
func NewSSMStore(ctx context.Context, region string) (*SSMStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("cannot load AWS config: %w", err)
	}
	return &SSMStore{client: ssm.NewFromConfig(cfg)}, nil
}

// NewSSMStoreFromClient wraps an existing SSM client. Used by tests.
func NewSSMStoreFromClient(client ssmAPI) *SSMStore {
	return &SSMStore{client: client}
}

// Get implements Store.
func (s *SSMStore) Get(ctx context.Context, name string) (string, error) {
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", &NotFoundError{Name: name}
		}
		return "", fmt.Errorf("failed to read parameter %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", &NotFoundError{Name: name}
	}

	logging.Debug("Secrets", "Read parameter %s", name)
	return *out.Parameter.Value, nil
}

// Put implements Store. Existing parameters are overwritten so re-running
// provisioning with rotated credentials works without manual cleanup.
func (s *SSMStore) Put(ctx context.Context, name, value string, encrypted bool) error {
	paramType := types.ParameterTypeString
	if encrypted {
		paramType = types.ParameterTypeSecureString
	}

	_, err := s.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(value),
		Type:      paramType,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to store parameter %s: %w", name, err)
	}

	logging.Debug("Secrets", "Stored parameter %s (encrypted=%t)", name, encrypted)
	return nil
}
