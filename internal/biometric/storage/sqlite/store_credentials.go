package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shiftline/biometric/internal/biometric/credential"
	"github.com/shiftline/biometric/internal/biometric/storage"
)

// AddCredential enrolls a credential. Credential ids are globally unique; the
// primary key enforces it regardless of the owning user.
func (s *Store) AddCredential(ctx context.Context, c credential.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("credential id is required")
	}
	if strings.TrimSpace(c.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if len(c.PublicKey) == 0 {
		return fmt.Errorf("public key is required")
	}
	if !c.DeviceType.Valid() {
		return fmt.Errorf("device type is required")
	}

	lastUsed := sql.NullInt64{}
	if c.LastUsedAt != nil {
		lastUsed = sql.NullInt64{Int64: toMillis(*c.LastUsedAt), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO biometric_credentials (credential_id, user_id, public_key, signature_counter, device_name, device_type, transports, created_at, last_used_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		c.ID,
		c.UserID,
		c.PublicKey,
		int64(c.SignatureCounter),
		c.DeviceName,
		string(c.DeviceType),
		strings.Join(c.Transports, ","),
		toMillis(c.CreatedAt),
		lastUsed,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateCredential
		}
		return fmt.Errorf("add credential: %w", err)
	}
	return nil
}

// GetCredential fetches a stored credential by id.
func (s *Store) GetCredential(ctx context.Context, credentialID string) (credential.Credential, error) {
	if err := ctx.Err(); err != nil {
		return credential.Credential{}, err
	}
	if s == nil || s.sqlDB == nil {
		return credential.Credential{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(credentialID) == "" {
		return credential.Credential{}, fmt.Errorf("credential id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT credential_id, user_id, public_key, signature_counter, device_name, device_type, transports, created_at, last_used_at
FROM biometric_credentials
WHERE credential_id = ?
`, credentialID)
	found, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return credential.Credential{}, storage.ErrCredentialNotFound
		}
		return credential.Credential{}, fmt.Errorf("get credential: %w", err)
	}
	return found, nil
}

// ListCredentialsByUser returns a user's credentials ordered by creation time.
func (s *Store) ListCredentialsByUser(ctx context.Context, userID string) ([]credential.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT credential_id, user_id, public_key, signature_counter, device_name, device_type, transports, created_at, last_used_at
FROM biometric_credentials
WHERE user_id = ?
ORDER BY created_at ASC, credential_id ASC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	credentials := make([]credential.Credential, 0)
	for rows.Next() {
		found, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		credentials = append(credentials, found)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return credentials, nil
}

// UpdateCredentialCounter advances the signature counter with a
// compare-and-set write.
//
// The guard accepts a strictly increasing counter, or two zeros for
// authenticators that never increment. Any other outcome is a regression and
// leaves the row untouched.
func (s *Store) UpdateCredentialCounter(ctx context.Context, credentialID string, newCounter uint32, usedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(credentialID) == "" {
		return fmt.Errorf("credential id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE biometric_credentials
SET signature_counter = ?1, last_used_at = ?2
WHERE credential_id = ?3
  AND (signature_counter < ?1 OR (signature_counter = 0 AND ?1 = 0))
`, int64(newCounter), toMillis(usedAt), credentialID)
	if err != nil {
		return fmt.Errorf("update credential counter: %w", err)
	}
	updated, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update credential counter rows affected: %w", err)
	}
	if updated == 1 {
		return nil
	}

	found, err := s.GetCredential(ctx, credentialID)
	if err != nil {
		return err
	}
	if newCounter == 0 && found.SignatureCounter > 0 {
		// A nonzero-then-zero transition is usually cloned hardware but can
		// also be a firmware reset; keep a trace for manual review.
		log.Printf("[BIOMETRIC] credential %s reported counter 0 after stored counter %d", credentialID, found.SignatureCounter)
	}
	return storage.ErrCounterRegression
}

// RenameCredential updates the owner-chosen device label.
func (s *Store) RenameCredential(ctx context.Context, userID, credentialID, deviceName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(deviceName) == "" {
		return fmt.Errorf("device name is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE biometric_credentials SET device_name = ? WHERE credential_id = ? AND user_id = ?
`, deviceName, credentialID, userID)
	if err != nil {
		return fmt.Errorf("rename credential: %w", err)
	}
	updated, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename credential rows affected: %w", err)
	}
	if updated == 1 {
		return nil
	}
	return s.ownershipError(ctx, credentialID)
}

// RemoveCredential deletes a credential owned by the given user.
func (s *Store) RemoveCredential(ctx context.Context, userID, credentialID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM biometric_credentials WHERE credential_id = ? AND user_id = ?
`, credentialID, userID)
	if err != nil {
		return fmt.Errorf("remove credential: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove credential rows affected: %w", err)
	}
	if deleted == 1 {
		return nil
	}
	return s.ownershipError(ctx, credentialID)
}

// ownershipError distinguishes a missing credential from one owned by
// someone else after an owner-scoped write matched no rows.
func (s *Store) ownershipError(ctx context.Context, credentialID string) error {
	if _, err := s.GetCredential(ctx, credentialID); err != nil {
		return err
	}
	return storage.ErrNotOwner
}

func isUniqueViolation(err error) bool {
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "unique constraint") || strings.Contains(value, "constraint failed")
}

func scanCredential(row rowScanner) (credential.Credential, error) {
	var c credential.Credential
	var counter int64
	var deviceType string
	var transports string
	var createdAt int64
	var lastUsedAt sql.NullInt64
	if err := row.Scan(&c.ID, &c.UserID, &c.PublicKey, &counter, &c.DeviceName, &deviceType, &transports, &createdAt, &lastUsedAt); err != nil {
		return credential.Credential{}, err
	}
	c.SignatureCounter = uint32(counter)
	c.DeviceType = credential.DeviceType(deviceType)
	if transports != "" {
		c.Transports = strings.Split(transports, ",")
	}
	c.CreatedAt = fromMillis(createdAt)
	if lastUsedAt.Valid {
		value := fromMillis(lastUsedAt.Int64)
		c.LastUsedAt = &value
	}
	return c, nil
}
