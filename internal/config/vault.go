package config

import (
	"context"
	"errors"
	"fmt"

	vault "github.com/hashicorp/vault/api"
)

const (
	defaultVaultMount = "secret"

	accessKeyField = "access_key_id"
	secretKeyField = "secret_access_key"
)

// VaultClient reads backend credentials from a KV v2 mount
type VaultClient struct {
	kv *vault.KVv2
}

// NewVaultClient returns nil, nil when Vault is disabled
func NewVaultClient(cfg *VaultConfig) (*VaultClient, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	apiCfg := vault.DefaultConfig()
	apiCfg.Address = cfg.Address

	client, err := vault.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	token, err := cfg.GetVaultToken()
	if err != nil {
		return nil, err
	}
	client.SetToken(token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	mount := cfg.Mount
	if mount == "" {
		mount = defaultVaultMount
	}

	return &VaultClient{kv: client.KVv2(mount)}, nil
}

// GetSecret returns the latest version of the secret at path
func (vc *VaultClient) GetSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	if vc == nil {
		return nil, errors.New("vault client is not initialized")
	}

	secret, err := vc.kv.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret not found: %s", path)
	}

	return secret.Data, nil
}

// ApplyVaultSecrets overwrites the credentials of every backend that has a vault_path.
// A nil client leaves cfg untouched.
func ApplyVaultSecrets(ctx context.Context, cfg *Config, vaultClient *VaultClient) error {
	if vaultClient == nil {
		return nil
	}

	backends := []struct {
		name      string
		path      string
		accessKey *string
		secretKey *string
	}{
		{"s3", cfg.S3.VaultPath, &cfg.S3.AccessKeyID, &cfg.S3.SecretAccessKey},
		{"minio", cfg.MinIO.VaultPath, &cfg.MinIO.AccessKeyID, &cfg.MinIO.SecretAccessKey},
	}

	for _, b := range backends {
		if b.path == "" {
			continue
		}
		if err := vaultClient.applyCredentials(ctx, b.path, b.accessKey, b.secretKey); err != nil {
			return fmt.Errorf("failed to get %s secrets: %w", b.name, err)
		}
	}

	return nil
}

// applyCredentials copies the key pair found at path; fields absent from the secret are kept
func (vc *VaultClient) applyCredentials(ctx context.Context, path string, accessKey, secretKey *string) error {
	secret, err := vc.GetSecret(ctx, path)
	if err != nil {
		return err
	}

	if v, ok := secret[accessKeyField].(string); ok {
		*accessKey = v
	}
	if v, ok := secret[secretKeyField].(string); ok {
		*secretKey = v
	}
	return nil
}
