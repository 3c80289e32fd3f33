package hashicorp

import (
	"fmt"
	"net/http"
	"os"

	"github.com/hashicorp/vault/api"

	"github.com/hengadev/medvault"
)

// createVaultClient creates a configured Vault client from environment
// variables.
//
// Environment Variables:
//   - VAULT_ADDR: Vault server address (required)
//   - VAULT_NAMESPACE: Vault namespace for HCP Vault (optional)
//   - VAULT_TOKEN: direct token auth (optional)
//   - VAULT_ROLE_ID / VAULT_SECRET_ID: AppRole auth (optional pair)
//
// Token auth wins when both are configured.
func createVaultClient() (*api.Client, error) {
	config := api.DefaultConfig()

	if addr := os.Getenv("VAULT_ADDR"); addr != "" {
		config.Address = addr
	}
	if config.Address == "" {
		return nil, fmt.Errorf("%w: VAULT_ADDR environment variable is required", medvault.ErrInvalidConfiguration)
	}

	config.HttpClient.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Vault client: %v", medvault.ErrStoreUnavailable, err)
	}

	if namespace := os.Getenv("VAULT_NAMESPACE"); namespace != "" {
		client.SetNamespace(namespace)
	}

	if token := os.Getenv("VAULT_TOKEN"); token != "" {
		client.SetToken(token)
		return client, nil
	}

	roleID := os.Getenv("VAULT_ROLE_ID")
	secretID := os.Getenv("VAULT_SECRET_ID")
	if roleID != "" && secretID != "" {
		resp, err := client.Logical().Write("auth/approle/login", map[string]interface{}{
			"role_id":   roleID,
			"secret_id": secretID,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: AppRole login failed: %v", medvault.ErrAuthenticationFailed, err)
		}
		if resp == nil || resp.Auth == nil {
			return nil, fmt.Errorf("%w: no auth info returned from AppRole login", medvault.ErrAuthenticationFailed)
		}
		client.SetToken(resp.Auth.ClientToken)
		return client, nil
	}

	return nil, fmt.Errorf("%w: no Vault authentication method configured (set VAULT_TOKEN or VAULT_ROLE_ID+VAULT_SECRET_ID)",
		medvault.ErrInvalidConfiguration)
}
