package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shiftline/biometric/internal/biometric/challenge"
	"github.com/shiftline/biometric/internal/biometric/storage"
)

// PutChallenge stores a freshly issued challenge.
func (s *Store) PutChallenge(ctx context.Context, c challenge.Challenge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("challenge id is required")
	}
	if !c.Purpose.Valid() {
		return fmt.Errorf("challenge purpose is required")
	}
	if strings.TrimSpace(c.Nonce) == "" {
		return fmt.Errorf("challenge nonce is required")
	}

	consumedAt := sql.NullInt64{}
	if c.ConsumedAt != nil {
		consumedAt = sql.NullInt64{Int64: toMillis(*c.ConsumedAt), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO biometric_challenges (id, purpose, subject_hint, nonce, created_at, expires_at, consumed_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		c.ID,
		string(c.Purpose),
		c.SubjectHint,
		c.Nonce,
		toMillis(c.CreatedAt),
		toMillis(c.ExpiresAt),
		consumedAt,
	)
	if err != nil {
		return fmt.Errorf("put challenge: %w", err)
	}
	return nil
}

// GetChallenge fetches a challenge without consuming it.
func (s *Store) GetChallenge(ctx context.Context, challengeID string) (challenge.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return challenge.Challenge{}, err
	}
	if s == nil || s.sqlDB == nil {
		return challenge.Challenge{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(challengeID) == "" {
		return challenge.Challenge{}, fmt.Errorf("challenge id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, purpose, subject_hint, nonce, created_at, expires_at, consumed_at
FROM biometric_challenges
WHERE id = ?
`, challengeID)
	found, err := scanChallenge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return challenge.Challenge{}, storage.ErrChallengeNotFound
		}
		return challenge.Challenge{}, fmt.Errorf("get challenge: %w", err)
	}
	return found, nil
}

// ConsumeChallenge claims a challenge for one ceremony attempt.
//
// The claim is a single conditional update on consumed_at, so the winner is
// decided by the database under concurrency. An expired challenge still gets
// burned by the same claim before the expiry error is reported.
func (s *Store) ConsumeChallenge(ctx context.Context, challengeID string, now time.Time) (challenge.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return challenge.Challenge{}, err
	}
	if s == nil || s.sqlDB == nil {
		return challenge.Challenge{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(challengeID) == "" {
		return challenge.Challenge{}, fmt.Errorf("challenge id is required")
	}

	nowMillis := toMillis(now)
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE biometric_challenges
SET consumed_at = ?
WHERE id = ? AND consumed_at IS NULL
`, nowMillis, challengeID)
	if err != nil {
		return challenge.Challenge{}, fmt.Errorf("consume challenge: %w", err)
	}
	claimed, err := result.RowsAffected()
	if err != nil {
		return challenge.Challenge{}, fmt.Errorf("consume challenge rows affected: %w", err)
	}

	if claimed == 0 {
		// Either the challenge never existed or another caller already won.
		_, err := s.GetChallenge(ctx, challengeID)
		if err != nil {
			return challenge.Challenge{}, err
		}
		return challenge.Challenge{}, storage.ErrChallengeAlreadyConsumed
	}

	found, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return challenge.Challenge{}, err
	}
	if nowMillis > toMillis(found.ExpiresAt) {
		return challenge.Challenge{}, storage.ErrChallengeExpired
	}
	return found, nil
}

// DeleteExpiredChallenges sweeps challenges whose ttl elapsed.
func (s *Store) DeleteExpiredChallenges(ctx context.Context, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM biometric_challenges WHERE expires_at < ?
`, toMillis(now)); err != nil {
		return fmt.Errorf("delete expired challenges: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChallenge(row rowScanner) (challenge.Challenge, error) {
	var c challenge.Challenge
	var purpose string
	var createdAt int64
	var expiresAt int64
	var consumedAt sql.NullInt64
	if err := row.Scan(&c.ID, &purpose, &c.SubjectHint, &c.Nonce, &createdAt, &expiresAt, &consumedAt); err != nil {
		return challenge.Challenge{}, err
	}
	c.Purpose = challenge.Purpose(purpose)
	c.CreatedAt = fromMillis(createdAt)
	c.ExpiresAt = fromMillis(expiresAt)
	if consumedAt.Valid {
		value := fromMillis(consumedAt.Int64)
		c.ConsumedAt = &value
	}
	return c, nil
}
