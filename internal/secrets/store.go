package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"aurora/internal/pkg/errors"
)

// Store fetches a secret value by name.
type Store interface {
	GetSecret(ctx context.Context, name string) ([]byte, error)
}

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type SecretsManagerStore struct {
	api SecretsManagerAPI
}

func NewSecretsManagerStore(cfg aws.Config) *SecretsManagerStore {
	return &SecretsManagerStore{api: secretsmanager.NewFromConfig(cfg)}
}

func NewSecretsManagerStoreWithAPI(api SecretsManagerAPI) *SecretsManagerStore {
	return &SecretsManagerStore{api: api}
}

func (s *SecretsManagerStore) GetSecret(ctx context.Context, name string) ([]byte, error) {
	const op = "secrets.get"

	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(name)})
	if err != nil {
		var nf *types.ResourceNotFoundException
		if errors.As(err, &nf) {
			return nil, errors.NotFound("secret", name)
		}
		return nil, errors.Transport(err, op, "failed to read secret").WithField("secret", name)
	}

	switch {
	case out.SecretString != nil:
		return []byte(*out.SecretString), nil
	case out.SecretBinary != nil:
		return out.SecretBinary, nil
	default:
		return nil, errors.NotFound("secret value", name)
	}
}

// GetJSON fetches a secret and decodes it as a flat JSON object of strings.
func GetJSON(ctx context.Context, store Store, name string) (map[string]string, error) {
	raw, err := store.GetSecret(ctx, name)
	if err != nil {
		return nil, err
	}
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "secrets.json", "secret is not a JSON object of strings").
			WithField("secret", name)
	}
	return out, nil
}

// WriteJSON fetches the secret name and writes it, indented, to path with mode 0600.
func WriteJSON(ctx context.Context, store Store, name, path string) error {
	const op = "secrets.write"

	raw, err := store.GetSecret(ctx, name)
	if err != nil {
		return err
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return errors.WrapWithCode(err, errors.CodeValidation, op, "secret is not a JSON object").WithField("secret", name)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "    "); err != nil {
		return errors.Wrap(err, op, "failed to format secret")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, op, "failed to create secret directory")
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return errors.Wrap(err, op, "failed to write secret file").WithField("path", path)
	}
	return nil
}
