package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManagerAPI is the subset of the AWS client the provider calls.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManagerProvider implements Provider using AWS Secrets Manager.
type AWSSecretsManagerProvider struct {
	client SecretsManagerAPI
}

// NewAWSProvider creates a new AWS Secrets Manager provider for the given region.
func NewAWSProvider(ctx context.Context, region string) (*AWSSecretsManagerProvider, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &AWSSecretsManagerProvider{client: secretsmanager.NewFromConfig(cfg)}, nil
}

// NewProviderWithClient wraps an existing client (tests, custom endpoints).
func NewProviderWithClient(client SecretsManagerAPI) *AWSSecretsManagerProvider {
	return &AWSSecretsManagerProvider{client: client}
}

// GetSecret fetches and decodes a JSON secret such as {"database_url": "postgres://..."}.
func (p *AWSSecretsManagerProvider) GetSecret(ctx context.Context, id string) (map[string]string, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch secret [%s]: %w", id, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret [%s] has no string value", id)
	}

	var result map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &result); err != nil {
		return nil, fmt.Errorf("invalid secret format for [%s]: %w", id, err)
	}
	return result, nil
}

// ResolveField returns field from secret id, or fallback when id is empty.
func ResolveField(ctx context.Context, p Provider, id, field, fallback string) (string, error) {
	if id == "" {
		return fallback, nil
	}
	values, err := p.GetSecret(ctx, id)
	if err != nil {
		return "", err
	}
	v, ok := values[field]
	if !ok || v == "" {
		return "", fmt.Errorf("secret [%s] missing field %q", id, field)
	}
	return v, nil
}
