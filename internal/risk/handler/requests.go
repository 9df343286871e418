package handler

import (
	"net/netip"
	"strings"
	"time"

	"warden/internal/risk/models"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/validation"
	pkgvalidation "warden/pkg/validation"
)

// EvaluateRequest mirrors models.RequestContext on the wire. TimestampMS is
// the arrival time in Unix milliseconds; zero means "now".
type EvaluateRequest struct {
	IP                string `json:"ip" validate:"required"`
	DeviceFingerprint string `json:"device_fingerprint"`
	UserAgent         string `json:"user_agent"`
	TimestampMS       int64  `json:"timestamp_ms" validate:"gte=0"`
	SessionID         string `json:"session_id"`
	Path              string `json:"path"`
}

func (r *EvaluateRequest) Normalize() {
	if r == nil {
		return
	}
	r.IP = strings.TrimSpace(r.IP)
	r.DeviceFingerprint = strings.TrimSpace(r.DeviceFingerprint)
	r.UserAgent = strings.TrimSpace(r.UserAgent)
	r.SessionID = strings.TrimSpace(r.SessionID)
	r.Path = strings.TrimSpace(r.Path)
}

func (r *EvaluateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.CheckLengths(
		validation.FieldLimit{Name: "ip", Value: r.IP, Max: validation.MaxIPLength},
		validation.FieldLimit{Name: "device_fingerprint", Value: r.DeviceFingerprint, Max: validation.MaxFingerprintLength},
		validation.FieldLimit{Name: "user_agent", Value: r.UserAgent, Max: validation.MaxUserAgentLength},
		validation.FieldLimit{Name: "session_id", Value: r.SessionID, Max: validation.MaxSessionIDLength},
		validation.FieldLimit{Name: "path", Value: r.Path, Max: validation.MaxPathLength},
	); err != nil {
		return err
	}
	return pkgvalidation.Validate(r)
}

func (r *EvaluateRequest) ToModel() models.RequestContext {
	req := models.RequestContext{
		IP:                r.IP,
		DeviceFingerprint: r.DeviceFingerprint,
		UserAgent:         r.UserAgent,
		SessionID:         r.SessionID,
		Path:              r.Path,
	}
	if r.TimestampMS > 0 {
		req.Timestamp = time.UnixMilli(r.TimestampMS)
	}
	return req
}

type LoginOutcomeRequest struct {
	DeviceFingerprint string     `json:"device_fingerprint" validate:"required"`
	Success           *bool      `json:"success" validate:"required"`
	At                *time.Time `json:"at"`
}

func (r *LoginOutcomeRequest) Normalize() {
	if r == nil {
		return
	}
	r.DeviceFingerprint = strings.TrimSpace(r.DeviceFingerprint)
}

func (r *LoginOutcomeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.CheckStringLength("device_fingerprint", r.DeviceFingerprint, validation.MaxFingerprintLength); err != nil {
		return err
	}
	return pkgvalidation.Validate(r)
}

func (r *LoginOutcomeRequest) ToModel() models.LoginOutcome {
	out := models.LoginOutcome{DeviceFingerprint: r.DeviceFingerprint, Success: *r.Success}
	if r.At != nil {
		out.At = *r.At
	}
	return out
}

type ChallengeOutcomeRequest struct {
	IP     string `json:"ip" validate:"required"`
	Passed *bool  `json:"passed" validate:"required"`
}

func (r *ChallengeOutcomeRequest) Normalize() {
	if r == nil {
		return
	}
	r.IP = strings.TrimSpace(r.IP)
}

func (r *ChallengeOutcomeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := pkgvalidation.Validate(r); err != nil {
		return err
	}
	return validateIP(r.IP)
}

// validateIP rejects values that are not addresses. Bans and challenge
// outcomes are keyed by address, so free-form strings would only create
// unreachable state.
func validateIP(ip string) error {
	if len(ip) > validation.MaxIPLength {
		return dErrors.New(dErrors.CodeValidation, "ip exceeds max length")
	}
	if _, err := netip.ParseAddr(models.NormalizeIP(ip)); err != nil {
		return dErrors.New(dErrors.CodeValidation, "ip must be a valid ip address")
	}
	return nil
}
