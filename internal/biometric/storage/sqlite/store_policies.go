package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shiftline/biometric/internal/biometric/credential"
	"github.com/shiftline/biometric/internal/biometric/policy"
	"github.com/shiftline/biometric/internal/biometric/storage"
)

// PutCompanyPolicy upserts a company's biometric policy row.
func (s *Store) PutCompanyPolicy(ctx context.Context, p policy.CompanyBiometricPolicy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(p.CompanyID) == "" {
		return fmt.Errorf("company id is required")
	}

	required := int64(0)
	if p.Required {
		required = 1
	}
	allowed := make([]string, 0, len(p.AllowedDeviceTypes))
	for _, deviceType := range p.AllowedDeviceTypes {
		allowed = append(allowed, string(deviceType))
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO company_biometric_policies (company_id, required, timeout_minutes, allowed_device_types, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(company_id) DO UPDATE SET
    required = excluded.required,
    timeout_minutes = excluded.timeout_minutes,
    allowed_device_types = excluded.allowed_device_types,
    updated_at = excluded.updated_at
`,
		p.CompanyID,
		required,
		int64(p.TimeoutMinutes),
		strings.Join(allowed, ","),
		toMillis(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put company policy: %w", err)
	}
	return nil
}

// GetCompanyPolicy fetches a company's biometric policy row.
func (s *Store) GetCompanyPolicy(ctx context.Context, companyID string) (policy.CompanyBiometricPolicy, error) {
	if err := ctx.Err(); err != nil {
		return policy.CompanyBiometricPolicy{}, err
	}
	if s == nil || s.sqlDB == nil {
		return policy.CompanyBiometricPolicy{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(companyID) == "" {
		return policy.CompanyBiometricPolicy{}, fmt.Errorf("company id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT company_id, required, timeout_minutes, allowed_device_types, updated_at
FROM company_biometric_policies
WHERE company_id = ?
`, companyID)

	var p policy.CompanyBiometricPolicy
	var required int64
	var timeoutMinutes int64
	var allowed string
	var updatedAt int64
	if err := row.Scan(&p.CompanyID, &required, &timeoutMinutes, &allowed, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return policy.CompanyBiometricPolicy{}, storage.ErrNotFound
		}
		return policy.CompanyBiometricPolicy{}, fmt.Errorf("get company policy: %w", err)
	}
	p.Required = required != 0
	p.TimeoutMinutes = int(timeoutMinutes)
	p.UpdatedAt = fromMillis(updatedAt)
	if allowed != "" {
		for _, value := range strings.Split(allowed, ",") {
			if deviceType, ok := credential.ParseDeviceType(value); ok {
				p.AllowedDeviceTypes = append(p.AllowedDeviceTypes, deviceType)
			}
		}
	}
	return p, nil
}
