// Package hashicorp implements medvault.SecretStore on HashiCorp Vault's
// KV v2 engine. It holds two kinds of secrets: the service pepper feeding
// master-key derivation, and per-patient emergency-key escrows.
package hashicorp

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/vault/api"

	"github.com/hengadev/medvault"
)

// KVStore implements medvault.SecretStore using Vault KV v2.
//
// The KV v2 engine must be enabled before use:
//
//	vault secrets enable -path=secret kv-v2
type KVStore struct {
	client *api.Client
}

// NewKVStore creates a KVStore from environment configuration (VAULT_ADDR,
// VAULT_TOKEN or VAULT_ROLE_ID+VAULT_SECRET_ID, optional VAULT_NAMESPACE).
func NewKVStore() (*KVStore, error) {
	client, err := createVaultClient()
	if err != nil {
		return nil, err
	}
	return &KVStore{client: client}, nil
}

// NewKVStoreWithClient wraps an existing Vault client.
func NewKVStoreWithClient(client *api.Client) *KVStore {
	return &KVStore{client: client}
}

// PepperPath returns the KV v2 path the pepper for an alias lives under.
func (k *KVStore) PepperPath(alias string) string {
	return fmt.Sprintf(medvault.VaultPepperPathTemplate, alias)
}

// EmergencyKeyPath returns the KV v2 path a patient's escrowed emergency
// key lives under.
func (k *KVStore) EmergencyKeyPath(patientID string) string {
	return fmt.Sprintf(medvault.VaultEmergencyKeyPathTemplate, patientID)
}

func (k *KVStore) StorePepper(ctx context.Context, alias string, pepper []byte) error {
	if len(pepper) != medvault.PepperLength {
		return fmt.Errorf("%w: pepper must be exactly %d bytes, got %d",
			medvault.ErrInvalidConfiguration, medvault.PepperLength, len(pepper))
	}
	return k.write(ctx, k.PepperPath(alias), pepper)
}

func (k *KVStore) GetPepper(ctx context.Context, alias string) ([]byte, error) {
	pepper, err := k.read(ctx, k.PepperPath(alias))
	if err != nil {
		return nil, err
	}
	if len(pepper) != medvault.PepperLength {
		return nil, fmt.Errorf("%w: invalid pepper length: expected %d bytes, got %d",
			medvault.ErrStoreUnavailable, medvault.PepperLength, len(pepper))
	}
	return pepper, nil
}

func (k *KVStore) StoreEmergencyKey(ctx context.Context, patientID string, key []byte) error {
	if len(key) != medvault.KeySize {
		return fmt.Errorf("%w: emergency key must be %d bytes, got %d",
			medvault.ErrInvalidKeySize, medvault.KeySize, len(key))
	}
	return k.write(ctx, k.EmergencyKeyPath(patientID), key)
}

func (k *KVStore) GetEmergencyKey(ctx context.Context, patientID string) ([]byte, error) {
	return k.read(ctx, k.EmergencyKeyPath(patientID))
}

func (k *KVStore) write(ctx context.Context, path string, value []byte) error {
	// KV v2 wraps payloads in a "data" key; binary values go through base64.
	data := map[string]interface{}{
		"data": map[string]interface{}{
			"value": base64.StdEncoding.EncodeToString(value),
		},
	}
	if _, err := k.client.Logical().WriteWithContext(ctx, path, data); err != nil {
		return fmt.Errorf("%w: vault write %s: %v", medvault.ErrStoreUnavailable, path, err)
	}
	return nil
}

func (k *KVStore) read(ctx context.Context, path string) ([]byte, error) {
	secret, err := k.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: vault read %s: %v", medvault.ErrStoreUnavailable, path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: no secret at %s", medvault.ErrStoreUnavailable, path)
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: invalid KV v2 secret format at %s", medvault.ErrStoreUnavailable, path)
	}
	encoded, ok := data["value"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: secret value missing at %s", medvault.ErrStoreUnavailable, path)
	}
	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode secret at %s: %v", medvault.ErrStoreUnavailable, path, err)
	}
	return value, nil
}
