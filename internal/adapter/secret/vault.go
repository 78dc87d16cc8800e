package secret

import (
	"context"
	"fmt"
	"os"

	vault "github.com/hashicorp/vault/api"
)

const approleLoginPath = "auth/approle/login"

type Option func(*vaultConfig)

type vaultConfig struct {
	address  string
	token    string
	roleID   string
	secretID string
	mount    string
	path     string
	field    string
}

func WithAddress(address string) Option {
	return func(c *vaultConfig) {
		c.address = address
	}
}

func WithToken(token string) Option {
	return func(c *vaultConfig) {
		c.token = token
	}
}

func WithAppRole(roleID, secretID string) Option {
	return func(c *vaultConfig) {
		c.roleID = roleID
		c.secretID = secretID
	}
}

// WithSecretPath sets the KV v2 mount, secret path and field holding the
// passphrase.
func WithSecretPath(mount, path, field string) Option {
	return func(c *vaultConfig) {
		c.mount = mount
		c.path = path
		c.field = field
	}
}

// VaultSource reads the archive passphrase from a Vault KV v2 secret.
type VaultSource struct {
	api *vault.Client
	cfg *vaultConfig
}

// NewVault builds a Vault client from env defaults (VAULT_ADDR, VAULT_TOKEN)
// overridden by options, performing an AppRole login when role credentials
// are set.
func NewVault(ctx context.Context, opts ...Option) (*VaultSource, error) {
	cfg := &vaultConfig{
		address: os.Getenv("VAULT_ADDR"),
		token:   os.Getenv("VAULT_TOKEN"),
		mount:   "secret",
		field:   "passphrase",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	apiCfg := vault.DefaultConfig()
	if cfg.address != "" {
		apiCfg.Address = cfg.address
	}

	client, err := vault.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("vault client init: %w", err)
	}

	if cfg.roleID != "" {
		resp, err := client.Logical().WriteWithContext(ctx, approleLoginPath, map[string]interface{}{
			"role_id":   cfg.roleID,
			"secret_id": cfg.secretID,
		})
		if err != nil {
			return nil, fmt.Errorf("vault approle login: %w", err)
		}
		if resp == nil || resp.Auth == nil {
			return nil, fmt.Errorf("vault approle login returned no auth info")
		}
		client.SetToken(resp.Auth.ClientToken)
	} else if cfg.token != "" {
		client.SetToken(cfg.token)
	}

	return &VaultSource{api: client, cfg: cfg}, nil
}

func (v *VaultSource) Passphrase() (string, error) {
	secret, err := v.api.KVv2(v.cfg.mount).Get(context.Background(), v.cfg.path)
	if err != nil {
		return "", fmt.Errorf("vault read %s/%s: %w", v.cfg.mount, v.cfg.path, err)
	}

	value, ok := secret.Data[v.cfg.field].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("vault secret %s/%s has no %q field", v.cfg.mount, v.cfg.path, v.cfg.field)
	}

	return value, nil
}
