package store

import (
	"context"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

func (s *Store) UpsertCredential(ctx context.Context, c model.ServerCredential) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO server_credentials (id, server_id, hostname, name, port, username, driver_type,
			secret_material_encrypted, use_ssl, api_base_url, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, now())
		ON CONFLICT (server_id) DO UPDATE SET
			hostname = EXCLUDED.hostname, name = EXCLUDED.name, port = EXCLUDED.port,
			username = EXCLUDED.username, driver_type = EXCLUDED.driver_type,
			secret_material_encrypted = EXCLUDED.secret_material_encrypted,
			use_ssl = EXCLUDED.use_ssl, api_base_url = EXCLUDED.api_base_url, updated_at = now()
	`, c.ID, c.ServerID, c.Hostname, c.Name, c.Port, c.Username, c.DriverType,
		c.SecretMaterialEncrypted, c.UseSSL, c.APIBaseURL)
	if err != nil {
		return apierror.Wrap(apierror.Internal, "upsert credential", err)
	}
	return nil
}

func (s *Store) GetCredentialByServer(ctx context.Context, serverID string) (model.ServerCredential, error) {
	var c model.ServerCredential
	err := s.pool.QueryRow(ctx, `
		SELECT id, server_id, hostname, name, port, username, driver_type,
			secret_material_encrypted, use_ssl, api_base_url, updated_at
		FROM server_credentials WHERE server_id = $1
	`, serverID).Scan(&c.ID, &c.ServerID, &c.Hostname, &c.Name, &c.Port, &c.Username, &c.DriverType,
		&c.SecretMaterialEncrypted, &c.UseSSL, &c.APIBaseURL, &c.UpdatedAt)
	if err != nil {
		return model.ServerCredential{}, wrapQueryErr(err, "credential not found")
	}
	return c, nil
}

// GetCredentialByHostname is the lookup a target_from_alert trigger or
// runbook uses to validate an alert-supplied hostname/name against a real
// managed server rather than trusting the label string outright.
func (s *Store) GetCredentialByHostname(ctx context.Context, hostnameOrName string) (model.ServerCredential, error) {
	var c model.ServerCredential
	err := s.pool.QueryRow(ctx, `
		SELECT id, server_id, hostname, name, port, username, driver_type,
			secret_material_encrypted, use_ssl, api_base_url, updated_at
		FROM server_credentials WHERE hostname = $1 OR name = $1
	`, hostnameOrName).Scan(&c.ID, &c.ServerID, &c.Hostname, &c.Name, &c.Port, &c.Username, &c.DriverType,
		&c.SecretMaterialEncrypted, &c.UseSSL, &c.APIBaseURL, &c.UpdatedAt)
	if err != nil {
		return model.ServerCredential{}, wrapQueryErr(err, "server not found")
	}
	return c, nil
}

// ResolveServerID adapts GetCredentialByHostname to trigger.ServerResolver.
func (s *Store) ResolveServerID(ctx context.Context, hostnameOrName string) (string, error) {
	c, err := s.GetCredentialByHostname(ctx, hostnameOrName)
	if err != nil {
		return "", err
	}
	return c.ServerID, nil
}
