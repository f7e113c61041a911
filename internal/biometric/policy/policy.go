// Package policy evaluates company biometric requirements.
//
// Policies are written by the company-settings service; this subsystem reads
// them to decide whether enrollment is mandatory and when a user must verify
// again. Clients may let a user postpone enrollment for the rest of a
// session, but that skip lives on the client only; every evaluation here
// starts from the stored policy and the current credential count.
package policy

import (
	"time"

	"github.com/shiftline/biometric/internal/biometric/credential"
)

// DefaultTimeoutMinutes is the verification timeout applied when a company
// has not picked one.
const DefaultTimeoutMinutes = 480

// CompanyBiometricPolicy is one company's biometric configuration. An empty
// AllowedDeviceTypes list allows every modality.
type CompanyBiometricPolicy struct {
	CompanyID          string
	Required           bool
	TimeoutMinutes     int
	AllowedDeviceTypes []credential.DeviceType
	UpdatedAt          time.Time
}

// Default returns the policy assumed for companies without a stored row.
func Default(companyID string) CompanyBiometricPolicy {
	return CompanyBiometricPolicy{
		CompanyID:      companyID,
		Required:       false,
		TimeoutMinutes: DefaultTimeoutMinutes,
	}
}

// AllowsDeviceType reports whether the company accepts the given modality.
func (p CompanyBiometricPolicy) AllowsDeviceType(deviceType credential.DeviceType) bool {
	if len(p.AllowedDeviceTypes) == 0 {
		return true
	}
	for _, allowed := range p.AllowedDeviceTypes {
		if allowed == deviceType {
			return true
		}
	}
	return false
}

// IsEnrollmentMandatory reports whether the user must enroll before
// continuing. Role targeting is honored when the policy names target roles;
// an empty target list applies the requirement to everyone.
func IsEnrollmentMandatory(p CompanyBiometricPolicy, credentialCount int, role string, targetRoles []string) bool {
	if !p.Required {
		return false
	}
	if credentialCount > 0 {
		return false
	}
	if len(targetRoles) == 0 {
		return true
	}
	for _, target := range targetRoles {
		if target == role {
			return true
		}
	}
	return false
}

// ShouldReauthenticate reports whether the verification timeout has elapsed
// since the last successful check. A zero lastVerifiedAt means the user has
// never verified in this context and must do so now.
func ShouldReauthenticate(p CompanyBiometricPolicy, lastVerifiedAt time.Time, now time.Time) bool {
	if lastVerifiedAt.IsZero() {
		return true
	}
	timeout := p.TimeoutMinutes
	if timeout <= 0 {
		timeout = DefaultTimeoutMinutes
	}
	deadline := lastVerifiedAt.Add(time.Duration(timeout) * time.Minute)
	return now.After(deadline)
}
