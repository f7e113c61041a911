package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shiftline/biometric/internal/biometric/ceremony"
	"github.com/shiftline/biometric/internal/biometric/credential"
	"github.com/shiftline/biometric/internal/biometric/devicesupport"
	"github.com/shiftline/biometric/internal/biometric/policy"
	"github.com/shiftline/biometric/internal/biometric/verify"
	"github.com/shiftline/biometric/internal/platform/errors"
)

type caller struct {
	UserID    string
	CompanyID string
	Role      string
}

func callerFromRequest(r *http.Request) caller {
	return caller{
		UserID:    strings.TrimSpace(r.Header.Get(headerUserID)),
		CompanyID: strings.TrimSpace(r.Header.Get(headerCompanyID)),
		Role:      strings.TrimSpace(r.Header.Get(headerRole)),
	}
}

type challengeResponse struct {
	ChallengeID string    `json:"challenge_id"`
	Nonce       string    `json:"nonce"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type credentialResponse struct {
	ID         string     `json:"id"`
	DeviceName string     `json:"device_name"`
	DeviceType string     `json:"device_type"`
	Transports []string   `json:"transports,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

func toCredentialResponse(c credential.Credential) credentialResponse {
	return credentialResponse{
		ID:         c.ID,
		DeviceName: c.DeviceName,
		DeviceType: string(c.DeviceType),
		Transports: c.Transports,
		CreatedAt:  c.CreatedAt,
		LastUsedAt: c.LastUsedAt,
	}
}

func (s *Server) handleRegistrationOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	identity := callerFromRequest(r)
	if identity.UserID == "" {
		writeErrorMessage(w, http.StatusUnauthorized, "UNAUTHENTICATED", "user identity header is required")
		return
	}

	start, err := s.ceremonies.BeginRegistration(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Challenge             challengeResponse `json:"challenge"`
		ExistingCredentialIDs []string          `json:"existing_credential_ids"`
	}{
		Challenge: challengeResponse{
			ChallengeID: start.Challenge.ID,
			Nonce:       start.Challenge.Nonce,
			ExpiresAt:   start.Challenge.ExpiresAt,
		},
		ExistingCredentialIDs: start.ExistingCredentialIDs,
	})
}

type registrationVerifyRequest struct {
	ChallengeID        string          `json:"challenge_id"`
	DeviceName         string          `json:"device_name"`
	DeviceType         string          `json:"device_type"`
	CredentialResponse json.RawMessage `json:"credential_response"`
}

func (s *Server) handleRegistrationVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	identity := callerFromRequest(r)
	if identity.UserID == "" {
		writeErrorMessage(w, http.StatusUnauthorized, "UNAUTHENTICATED", "user identity header is required")
		return
	}

	var req registrationVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.ChallengeID == "" || len(req.CredentialResponse) == 0 {
		writeErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "challenge_id and credential_response are required")
		return
	}

	attestation, err := verify.ParseAttestation(req.CredentialResponse)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "credential response could not be parsed")
		return
	}

	enrolled, err := s.ceremonies.CompleteRegistration(r.Context(), ceremony.RegistrationInput{
		ChallengeID:  req.ChallengeID,
		Origin:       attestation.Origin,
		Nonce:        attestation.Challenge,
		CredentialID: attestation.CredentialID,
		PublicKey:    attestation.PublicKey,
		DeviceName:   req.DeviceName,
		DeviceType:   credential.DeviceType(req.DeviceType),
		Transports:   attestation.Transports,
		CompanyID:    identity.CompanyID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Credential credentialResponse `json:"credential"`
	}{Credential: toCredentialResponse(enrolled)})
}

type authenticationOptionsRequest struct {
	Subject string `json:"subject"`
}

func (s *Server) handleAuthenticationOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req authenticationOptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Subject) == "" {
		writeErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "subject is required")
		return
	}

	start, err := s.ceremonies.BeginAuthentication(r.Context(), req.Subject)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Challenge            challengeResponse `json:"challenge"`
		AllowedCredentialIDs []string          `json:"allowed_credential_ids"`
	}{
		Challenge: challengeResponse{
			ChallengeID: start.Challenge.ID,
			Nonce:       start.Challenge.Nonce,
			ExpiresAt:   start.Challenge.ExpiresAt,
		},
		AllowedCredentialIDs: start.AllowedCredentialIDs,
	})
}

type authenticationVerifyRequest struct {
	ChallengeID        string          `json:"challenge_id"`
	CredentialResponse json.RawMessage `json:"credential_response"`
}

func (s *Server) handleAuthenticationVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req authenticationVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	if req.ChallengeID == "" || len(req.CredentialResponse) == 0 {
		writeErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "challenge_id and credential_response are required")
		return
	}

	assertion, err := verify.ParseAssertion(req.CredentialResponse)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "credential response could not be parsed")
		return
	}

	result, err := s.ceremonies.CompleteAuthentication(r.Context(), ceremony.AuthenticationInput{
		ChallengeID:     req.ChallengeID,
		Origin:          assertion.Origin,
		Nonce:           assertion.Challenge,
		CredentialID:    assertion.CredentialID,
		ReportedCounter: assertion.Counter,
		Verify:          assertion.VerifySignature,
		CompanyID:       callerFromRequest(r).CompanyID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	response := struct {
		UserID       string `json:"user_id"`
		CredentialID string `json:"credential_id"`
		Grant        string `json:"grant,omitempty"`
	}{
		UserID:       result.UserID,
		CredentialID: result.CredentialID,
		Grant:        result.Grant,
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	identity := callerFromRequest(r)
	if identity.UserID == "" {
		writeErrorMessage(w, http.StatusUnauthorized, "UNAUTHENTICATED", "user identity header is required")
		return
	}

	owned, err := s.credentials.ListCredentialsByUser(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	responses := make([]credentialResponse, 0, len(owned))
	for _, c := range owned {
		responses = append(responses, toCredentialResponse(c))
	}
	writeJSON(w, http.StatusOK, struct {
		Credentials []credentialResponse `json:"credentials"`
	}{Credentials: responses})
}

type renameRequest struct {
	DeviceName string `json:"device_name"`
}

func (s *Server) handleCredentialByID(w http.ResponseWriter, r *http.Request) {
	identity := callerFromRequest(r)
	if identity.UserID == "" {
		writeErrorMessage(w, http.StatusUnauthorized, "UNAUTHENTICATED", "user identity header is required")
		return
	}
	credentialID := strings.TrimPrefix(r.URL.Path, "/biometric/credentials/")
	if credentialID == "" || strings.Contains(credentialID, "/") {
		writeErrorMessage(w, http.StatusNotFound, "NOT_FOUND", "unknown credential path")
		return
	}

	switch r.Method {
	case http.MethodDelete:
		if err := s.credentials.RemoveCredential(r.Context(), identity.UserID, credentialID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPatch:
		var req renameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
			return
		}
		if strings.TrimSpace(req.DeviceName) == "" {
			writeErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "device_name is required")
			return
		}
		if err := s.credentials.RenameCredential(r.Context(), identity.UserID, credentialID, req.DeviceName); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	identity := callerFromRequest(r)
	if identity.CompanyID == "" {
		writeErrorMessage(w, http.StatusUnauthorized, "UNAUTHENTICATED", "company identity header is required")
		return
	}

	found, err := s.policies.GetCompanyPolicy(r.Context(), identity.CompanyID)
	if err != nil {
		if errors.CodeOf(err) == errors.CodeNotFound {
			found = policy.Default(identity.CompanyID)
		} else {
			writeError(w, err)
			return
		}
	}
	allowed := make([]string, 0, len(found.AllowedDeviceTypes))
	for _, deviceType := range found.AllowedDeviceTypes {
		allowed = append(allowed, string(deviceType))
	}
	writeJSON(w, http.StatusOK, struct {
		Required           bool     `json:"required"`
		TimeoutMinutes     int      `json:"timeout_minutes"`
		AllowedDeviceTypes []string `json:"allowed_device_types"`
	}{
		Required:           found.Required,
		TimeoutMinutes:     found.TimeoutMinutes,
		AllowedDeviceTypes: allowed,
	})
}

type deviceSupportRequest struct {
	UserAgent              string `json:"user_agent"`
	PlatformAuthenticators bool   `json:"platform_authenticators"`
	SecureContext          bool   `json:"secure_context"`
}

// handleDeviceSupport lets clients report their capability probe and get back
// the server's classification. An unsupported platform is an answer, not an
// error; clients surface PlatformUnsupported themselves before starting a
// ceremony.
func (s *Server) handleDeviceSupport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req deviceSupportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	detected := devicesupport.Detect(devicesupport.UserAgentInfo{
		UserAgent:              req.UserAgent,
		PlatformAuthenticators: req.PlatformAuthenticators,
		SecureContext:          req.SecureContext,
	})
	writeJSON(w, http.StatusOK, struct {
		OS        string `json:"os"`
		Supported bool   `json:"supported"`
	}{OS: string(detected.OS), Supported: detected.Supported})
}

type errorResponse struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	message := "internal error"
	if code != errors.CodeUnknown {
		message = err.Error()
	}
	writeJSON(w, code.HTTPStatus(), errorResponse{Code: string(code), Message: message})
}

func writeErrorMessage(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}
