package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shiftline/biometric/internal/biometric/challenge"
	"github.com/shiftline/biometric/internal/biometric/credential"
	"github.com/shiftline/biometric/internal/biometric/policy"
	"github.com/shiftline/biometric/internal/biometric/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "biometric.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func testChallenge(id string, issuedAt time.Time, ttl time.Duration) challenge.Challenge {
	return challenge.Challenge{
		ID:          id,
		Purpose:     challenge.PurposeAuthentication,
		SubjectHint: "user-1",
		Nonce:       "bm9uY2Utbm9uY2Utbm9uY2Utbm9uY2U",
		CreatedAt:   issuedAt,
		ExpiresAt:   issuedAt.Add(ttl),
	}
}

func testCredential(id, userID string, createdAt time.Time) credential.Credential {
	return credential.Credential{
		ID:         id,
		UserID:     userID,
		PublicKey:  []byte{0x04, 0x01, 0x02, 0x03},
		DeviceName: "Work phone",
		DeviceType: credential.DeviceTypeFingerprint,
		Transports: []string{"internal"},
		CreatedAt:  createdAt,
	}
}

func TestConsumeChallengeOnce(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := store.PutChallenge(ctx, testChallenge("challenge-1", issuedAt, time.Minute)); err != nil {
		t.Fatalf("put challenge: %v", err)
	}

	consumed, err := store.ConsumeChallenge(ctx, "challenge-1", issuedAt.Add(10*time.Second))
	if err != nil {
		t.Fatalf("consume challenge: %v", err)
	}
	if consumed.ConsumedAt == nil {
		t.Fatal("expected consumed_at to be set")
	}
	if consumed.Nonce == "" {
		t.Fatal("expected nonce to survive consumption")
	}

	_, err = store.ConsumeChallenge(ctx, "challenge-1", issuedAt.Add(11*time.Second))
	if !errors.Is(err, storage.ErrChallengeAlreadyConsumed) {
		t.Fatalf("expected already consumed error, got %v", err)
	}
}

func TestConsumeChallengeMissing(t *testing.T) {
	store := openTestStore(t)

	_, err := store.ConsumeChallenge(context.Background(), "no-such", time.Now())
	if !errors.Is(err, storage.ErrChallengeNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestConsumeChallengeExpiredBurns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := store.PutChallenge(ctx, testChallenge("challenge-1", issuedAt, time.Minute)); err != nil {
		t.Fatalf("put challenge: %v", err)
	}

	_, err := store.ConsumeChallenge(ctx, "challenge-1", issuedAt.Add(2*time.Minute))
	if !errors.Is(err, storage.ErrChallengeExpired) {
		t.Fatalf("expected expired error, got %v", err)
	}

	// The expired attempt must burn the challenge, not leave it claimable.
	_, err = store.ConsumeChallenge(ctx, "challenge-1", issuedAt.Add(2*time.Minute))
	if !errors.Is(err, storage.ErrChallengeAlreadyConsumed) {
		t.Fatalf("expected already consumed after burn, got %v", err)
	}
}

func TestConsumeChallengeConcurrentSingleWinner(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	issuedAt := time.Now().UTC()

	if err := store.PutChallenge(ctx, testChallenge("challenge-1", issuedAt, time.Minute)); err != nil {
		t.Fatalf("put challenge: %v", err)
	}

	const callers = 8
	results := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = store.ConsumeChallenge(ctx, "challenge-1", issuedAt.Add(time.Second))
		}()
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, storage.ErrChallengeAlreadyConsumed):
		default:
			t.Fatalf("unexpected consume error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winning consume, got %d", winners)
	}
}

func TestDeleteExpiredChallenges(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := store.PutChallenge(ctx, testChallenge("stale", issuedAt, time.Minute)); err != nil {
		t.Fatalf("put stale challenge: %v", err)
	}
	if err := store.PutChallenge(ctx, testChallenge("fresh", issuedAt, time.Hour)); err != nil {
		t.Fatalf("put fresh challenge: %v", err)
	}

	if err := store.DeleteExpiredChallenges(ctx, issuedAt.Add(10*time.Minute)); err != nil {
		t.Fatalf("delete expired: %v", err)
	}

	if _, err := store.GetChallenge(ctx, "stale"); !errors.Is(err, storage.ErrChallengeNotFound) {
		t.Fatalf("expected stale challenge swept, got %v", err)
	}
	if _, err := store.GetChallenge(ctx, "fresh"); err != nil {
		t.Fatalf("expected fresh challenge kept: %v", err)
	}
}

func TestAddCredentialRejectsDuplicateAcrossUsers(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	createdAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := store.AddCredential(ctx, testCredential("cred-1", "user-1", createdAt)); err != nil {
		t.Fatalf("add credential: %v", err)
	}

	err := store.AddCredential(ctx, testCredential("cred-1", "user-2", createdAt))
	if !errors.Is(err, storage.ErrDuplicateCredential) {
		t.Fatalf("expected duplicate credential error, got %v", err)
	}
}

func TestListCredentialsByUserOrderAndIsolation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := store.AddCredential(ctx, testCredential("cred-b", "user-1", base.Add(time.Hour))); err != nil {
		t.Fatalf("add cred-b: %v", err)
	}
	if err := store.AddCredential(ctx, testCredential("cred-a", "user-1", base)); err != nil {
		t.Fatalf("add cred-a: %v", err)
	}
	if err := store.AddCredential(ctx, testCredential("cred-other", "user-2", base)); err != nil {
		t.Fatalf("add cred-other: %v", err)
	}

	credentials, err := store.ListCredentialsByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("list credentials: %v", err)
	}
	if len(credentials) != 2 {
		t.Fatalf("expected 2 credentials, got %d", len(credentials))
	}
	if credentials[0].ID != "cred-a" || credentials[1].ID != "cred-b" {
		t.Fatalf("expected created_at ordering, got %s then %s", credentials[0].ID, credentials[1].ID)
	}
	for _, c := range credentials {
		if c.UserID != "user-1" {
			t.Fatalf("credential %s leaked across users", c.ID)
		}
	}
}

func TestUpdateCredentialCounter(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	createdAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	usedAt := createdAt.Add(time.Minute)

	if err := store.AddCredential(ctx, testCredential("cred-1", "user-1", createdAt)); err != nil {
		t.Fatalf("add credential: %v", err)
	}

	if err := store.UpdateCredentialCounter(ctx, "cred-1", 1, usedAt); err != nil {
		t.Fatalf("advance counter: %v", err)
	}
	found, err := store.GetCredential(ctx, "cred-1")
	if err != nil {
		t.Fatalf("get credential: %v", err)
	}
	if found.SignatureCounter != 1 {
		t.Fatalf("expected counter 1, got %d", found.SignatureCounter)
	}
	if found.LastUsedAt == nil || !found.LastUsedAt.Equal(usedAt) {
		t.Fatalf("expected last used at %s, got %v", usedAt, found.LastUsedAt)
	}

	// Replay with the same counter is a regression.
	err = store.UpdateCredentialCounter(ctx, "cred-1", 1, usedAt.Add(time.Minute))
	if !errors.Is(err, storage.ErrCounterRegression) {
		t.Fatalf("expected counter regression, got %v", err)
	}

	// A decrease from a nonzero counter is a regression.
	err = store.UpdateCredentialCounter(ctx, "cred-1", 0, usedAt.Add(time.Minute))
	if !errors.Is(err, storage.ErrCounterRegression) {
		t.Fatalf("expected counter regression for zero report, got %v", err)
	}

	// The failed attempts must not move the stored state.
	found, err = store.GetCredential(ctx, "cred-1")
	if err != nil {
		t.Fatalf("get credential after regressions: %v", err)
	}
	if found.SignatureCounter != 1 {
		t.Fatalf("regression attempts should not change counter, got %d", found.SignatureCounter)
	}
}

func TestUpdateCredentialCounterZeroStaysAcceptable(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	createdAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := store.AddCredential(ctx, testCredential("cred-1", "user-1", createdAt)); err != nil {
		t.Fatalf("add credential: %v", err)
	}

	// Authenticators that never increment report zero on every ceremony.
	for i := range 3 {
		usedAt := createdAt.Add(time.Duration(i+1) * time.Minute)
		if err := store.UpdateCredentialCounter(ctx, "cred-1", 0, usedAt); err != nil {
			t.Fatalf("zero counter pass %d: %v", i, err)
		}
	}
}

func TestUpdateCredentialCounterMissing(t *testing.T) {
	store := openTestStore(t)

	err := store.UpdateCredentialCounter(context.Background(), "no-such", 1, time.Now())
	if !errors.Is(err, storage.ErrCredentialNotFound) {
		t.Fatalf("expected credential not found, got %v", err)
	}
}

func TestRemoveCredentialOwnership(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	createdAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := store.AddCredential(ctx, testCredential("cred-1", "user-1", createdAt)); err != nil {
		t.Fatalf("add credential: %v", err)
	}

	if err := store.RemoveCredential(ctx, "user-2", "cred-1"); !errors.Is(err, storage.ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if err := store.RemoveCredential(ctx, "user-1", "no-such"); !errors.Is(err, storage.ErrCredentialNotFound) {
		t.Fatalf("expected credential not found, got %v", err)
	}

	if err := store.RemoveCredential(ctx, "user-1", "cred-1"); err != nil {
		t.Fatalf("remove credential: %v", err)
	}
	if _, err := store.GetCredential(ctx, "cred-1"); !errors.Is(err, storage.ErrCredentialNotFound) {
		t.Fatalf("expected credential gone, got %v", err)
	}
}

func TestRenameCredential(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	createdAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := store.AddCredential(ctx, testCredential("cred-1", "user-1", createdAt)); err != nil {
		t.Fatalf("add credential: %v", err)
	}

	if err := store.RenameCredential(ctx, "user-1", "cred-1", "Personal phone"); err != nil {
		t.Fatalf("rename credential: %v", err)
	}
	found, err := store.GetCredential(ctx, "cred-1")
	if err != nil {
		t.Fatalf("get credential: %v", err)
	}
	if found.DeviceName != "Personal phone" {
		t.Fatalf("expected renamed device, got %q", found.DeviceName)
	}

	if err := store.RenameCredential(ctx, "user-2", "cred-1", "Hijacked"); !errors.Is(err, storage.ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
}

func TestCompanyPolicyRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	updatedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if _, err := store.GetCompanyPolicy(ctx, "company-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found before put, got %v", err)
	}

	want := policy.CompanyBiometricPolicy{
		CompanyID:          "company-1",
		Required:           true,
		TimeoutMinutes:     30,
		AllowedDeviceTypes: []credential.DeviceType{credential.DeviceTypeFingerprint, credential.DeviceTypeFace},
		UpdatedAt:          updatedAt,
	}
	if err := store.PutCompanyPolicy(ctx, want); err != nil {
		t.Fatalf("put policy: %v", err)
	}

	got, err := store.GetCompanyPolicy(ctx, "company-1")
	if err != nil {
		t.Fatalf("get policy: %v", err)
	}
	if !got.Required || got.TimeoutMinutes != 30 {
		t.Fatalf("unexpected policy %+v", got)
	}
	if len(got.AllowedDeviceTypes) != 2 {
		t.Fatalf("expected 2 allowed device types, got %d", len(got.AllowedDeviceTypes))
	}

	// Upsert replaces the row.
	want.Required = false
	want.TimeoutMinutes = 60
	if err := store.PutCompanyPolicy(ctx, want); err != nil {
		t.Fatalf("update policy: %v", err)
	}
	got, err = store.GetCompanyPolicy(ctx, "company-1")
	if err != nil {
		t.Fatalf("get updated policy: %v", err)
	}
	if got.Required || got.TimeoutMinutes != 60 {
		t.Fatalf("unexpected updated policy %+v", got)
	}
}
