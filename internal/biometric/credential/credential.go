// Package credential models enrolled biometric authenticator credentials.
package credential

import (
	"encoding/base64"
	"time"
)

// DeviceType classifies the biometric modality behind a credential.
type DeviceType string

const (
	DeviceTypeFingerprint DeviceType = "fingerprint"
	DeviceTypeFace        DeviceType = "face"
	DeviceTypeVoice       DeviceType = "voice"
	DeviceTypeIris        DeviceType = "iris"
)

// DeviceTypes returns every known device type in display order.
func DeviceTypes() []DeviceType {
	return []DeviceType{DeviceTypeFingerprint, DeviceTypeFace, DeviceTypeVoice, DeviceTypeIris}
}

// ParseDeviceType maps a stored or client-sent string onto the enum.
func ParseDeviceType(value string) (DeviceType, bool) {
	deviceType := DeviceType(value)
	return deviceType, deviceType.Valid()
}

// Valid reports whether the device type is a known modality.
func (d DeviceType) Valid() bool {
	switch d {
	case DeviceTypeFingerprint, DeviceTypeFace, DeviceTypeVoice, DeviceTypeIris:
		return true
	}
	return false
}

// Label returns the human-readable name for the modality.
func (d DeviceType) Label() string {
	switch d {
	case DeviceTypeFingerprint:
		return "Fingerprint"
	case DeviceTypeFace:
		return "Face recognition"
	case DeviceTypeVoice:
		return "Voice recognition"
	case DeviceTypeIris:
		return "Iris scan"
	}
	return "Unknown"
}

// Credential is an enrolled public-key credential. The ID is the base64url
// form of the authenticator-chosen credential id and is unique across all
// users.
type Credential struct {
	ID               string
	UserID           string
	PublicKey        []byte
	SignatureCounter uint32
	DeviceName       string
	DeviceType       DeviceType
	Transports       []string
	CreatedAt        time.Time
	LastUsedAt       *time.Time
}

// EncodeID converts raw authenticator credential id bytes to the stored form.
func EncodeID(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeID converts a stored credential id back to the authenticator bytes.
func DecodeID(encoded string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(encoded)
}
