package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI is the slice of *ssm.Client the store needs.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter reads one decrypted parameter by name.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// ParamStore reads SecureString parameters from AWS SSM Parameter Store.
type ParamStore struct {
	api ssmAPI
}

func NewParamStore(api ssmAPI) (*ParamStore, error) {
	if api == nil {
		return nil, errors.New("secrets: api must not be nil")
	}
	return &ParamStore{api: api}, nil
}

// NewParamStoreFromEnv builds a client from the default AWS credential chain.
func NewParamStoreFromEnv(ctx context.Context) (*ParamStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("secrets: load aws config: %w", err)
	}
	return NewParamStore(ssm.NewFromConfig(cfg))
}

func (p *ParamStore) GetParameter(ctx context.Context, name string) (string, error) {
	if p == nil || p.api == nil {
		return "", errors.New("secrets: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("secrets: name is required")
	}

	out, err := p.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("secrets: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("secrets: parameter %q missing value", name)
	}
	return *out.Parameter.Value, nil
}
