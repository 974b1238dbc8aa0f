package authflow

import "fmt"

// Event names emitted by the native SDK bridge. The bridge delivers these out
// of band: a command's acknowledgement only confirms submission, the real
// outcome arrives later as one of these events.
const (
	EventUserIdentificationRequested = "onUserIdentificationRequested"
	EventActivationCodeRequested     = "onActivationCodeRequested"
	EventLocalAuthConsentRequested   = "onLocalAuthConsentRequested"
	EventPasswordRequested           = "onPasswordRequested"
	EventUserAuthenticated           = "onUserAuthenticated"
	EventUserLoggedOff               = "onUserLoggedOff"
	EventDeviceActivationOptions     = "onDeviceActivationOptions"
	EventSessionExpired              = "onSessionExpired"
	EventIdleTimeoutWarning          = "onIdleTimeoutWarning"
)

// Commands accepted by the bridge. The returned Ack reports acceptance of the
// submission only, never completion of the operation itself.
const (
	CommandResetAuthState           = "resetAuthState"
	CommandExtendSession            = "extendSession"
	CommandPendingCredentialUpdates = "getPendingCredentialUpdates"
)

// Envelope is the raw unit delivered by the bridge transport. RawPayload is a
// JSON document whose shape depends on EventName.
type Envelope struct {
	EventName  string `json:"eventName"`
	RawPayload string `json:"rawPayload"`
}

// ChallengeMode discriminates which action a challenge event is requesting.
// The mode, not the event name, determines the UI flow.
type ChallengeMode int

const (
	ModeVerifyPassword        ChallengeMode = 0  // login
	ModeSetPassword           ChallengeMode = 1  // first-time enrollment
	ModeUpdatePassword        ChallengeMode = 2  // voluntary change
	ModeUpdateExpiredPassword ChallengeMode = 4  // forced change
	ModeVerifyEnableLocalAuth ChallengeMode = 5  // verify before enabling local auth
	ModeSigningStepUp         ChallengeMode = 12 // step-up for a signing operation
	ModeSetEnableLocalAuth    ChallengeMode = 14 // set password while enabling local auth
	ModeVerifyDisableLocal    ChallengeMode = 15 // verify before disabling local auth
	ModeSetDisableLocal       ChallengeMode = 16 // set password while disabling local auth
)

// Status is the business-level result carried inside an event. A zero
// transport error does not imply success; StatusCode must be checked too.
type Status struct {
	StatusCode    int    `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
}

// Business status codes. StatusOK is the only success code; the destructive
// set forces credential-field clearing on the presenting screen.
const (
	StatusOK                = 0
	StatusSessionExpired    = 1306
	StatusPasswordExpired   = 1307
	StatusAttemptsExhausted = 1309
	StatusPolicyViolation   = 1311
)

// OK reports whether the status is in the success range.
func (s Status) OK() bool { return s.StatusCode == StatusOK }

// Destructive reports whether the status code requires clearing any entered
// credential fields. The server communicates these failures exclusively
// through Status, typically inside an otherwise error-free event.
func (s Status) Destructive() bool {
	switch s.StatusCode {
	case StatusSessionExpired, StatusPasswordExpired, StatusAttemptsExhausted, StatusPolicyViolation:
		return true
	}
	return false
}

// APIError is the transport/API-level error carried by events and command
// acknowledgements. LongErrorCode == 0 is the only reliable "no transport
// error" signal.
type APIError struct {
	LongErrorCode  int    `json:"longErrorCode"`
	ShortErrorCode int    `json:"shortErrorCode"`
	ErrorString    string `json:"errorString"`
}

// OK reports whether the transport layer succeeded.
func (e APIError) OK() bool { return e.LongErrorCode == 0 }

// KV is one entry of the open challengeInfo bag.
type KV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Well-known challengeInfo keys.
const (
	InfoKeyPasswordPolicy = "passwordPolicy"
	InfoKeyConsentPrompt  = "consentPrompt"
	InfoKeyLocalAuthType  = "localAuthType"
)

// Payload is the decoded form of an event envelope: a tagged union with one
// concrete type per event name, produced only by the dispatch decode boundary.
type Payload interface{ payload() }

// ChallengePayload is the decoded form of a challenge-bearing event
// (identification, activation code, consent, password).
type ChallengePayload struct {
	UserID        string        `json:"userID"`
	ChallengeMode ChallengeMode `json:"challengeMode"`
	AttemptsLeft  int           `json:"attemptsLeft" validate:"gte=0"`
	Status        Status        `json:"status"`
	Error         APIError      `json:"error"`
	ChallengeInfo []KV          `json:"challengeInfo"`
}

func (*ChallengePayload) payload() {}

// Info returns the challengeInfo value for key, if present.
func (p *ChallengePayload) Info(key string) (string, bool) {
	for _, kv := range p.ChallengeInfo {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Check inspects the payload in the canonical order: transport error first,
// business status second. Both must pass before the payload is actionable.
func (p *ChallengePayload) Check() error {
	if !p.Error.OK() {
		return &TransportError{Err: p.Error}
	}
	if !p.Status.OK() {
		return &StatusError{Status: p.Status}
	}
	return nil
}

// AdditionalInfo is the nested session material inside an authenticated event.
type AdditionalInfo struct {
	SessionID   string `json:"sessionID"`
	SessionType string `json:"sessionType"`
	AuthToken   string `json:"authToken"`
}

// AuthenticatedPayload is the decoded form of the user-authenticated event.
type AuthenticatedPayload struct {
	UserID         string         `json:"userID" validate:"required"`
	Status         Status         `json:"status"`
	Error          APIError       `json:"error"`
	AdditionalInfo AdditionalInfo `json:"additionalInfo"`
}

func (*AuthenticatedPayload) payload() {}

// Check applies the same transport-then-status contract as ChallengePayload.
func (p *AuthenticatedPayload) Check() error {
	if !p.Error.OK() {
		return &TransportError{Err: p.Error}
	}
	if !p.Status.OK() {
		return &StatusError{Status: p.Status}
	}
	return nil
}

// LoggedOffPayload is the decoded form of the logged-off event. It never
// drives navigation directly; the bridge always follows it with a fresh
// user-identification event.
type LoggedOffPayload struct {
	UserID string   `json:"userID"`
	Error  APIError `json:"error"`
}

func (*LoggedOffPayload) payload() {}

// DeviceActivationPayload offers the verification channels available when
// activating via a secondary device.
type DeviceActivationPayload struct {
	UserID  string   `json:"userID"`
	Options []string `json:"options" validate:"required,min=1"`
	Error   APIError `json:"error"`
}

func (*DeviceActivationPayload) payload() {}

// SessionExpiredPayload signals a hard session timeout: the session is already
// over, no countdown applies.
type SessionExpiredPayload struct {
	Status Status   `json:"status"`
	Error  APIError `json:"error"`
}

func (*SessionExpiredPayload) payload() {}

// IdleTimeoutPayload signals an advisory idle timeout the user may extend.
type IdleTimeoutPayload struct {
	TimeLeftInSeconds int  `json:"timeLeftInSeconds" validate:"gte=0"`
	CanExtend         bool `json:"canExtend"`
}

func (*IdleTimeoutPayload) payload() {}

// Ack is the synchronous acknowledgement of a command submission. Data is
// populated only by read-style commands.
type Ack struct {
	Error APIError `json:"error"`
	Data  []byte   `json:"data,omitempty"`
}

// CredentialUpdate describes one pending credential update reported by the
// bridge after authentication.
type CredentialUpdate struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

// TransportError reports a non-zero transport/API error code on an event or
// acknowledgement.
type TransportError struct {
	Err APIError
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("authflow: transport error %d: %s", e.Err.LongErrorCode, e.Err.ErrorString)
}

// StatusError reports a business-level failure inside an otherwise successful
// event.
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("authflow: status %d: %s", e.Status.StatusCode, e.Status.StatusMessage)
}

// Screen identifies a UI destination. The router owns the mapping from events
// to screens; the navigation stack itself is external.
type Screen string

const (
	ScreenNone                  Screen = ""
	ScreenIdentify              Screen = "identify"
	ScreenActivationCode        Screen = "activation_code"
	ScreenConsent               Screen = "local_auth_consent"
	ScreenVerifyPassword        Screen = "verify_password"
	ScreenSetPassword           Screen = "set_password"
	ScreenUpdatePassword        Screen = "update_password"
	ScreenUpdateExpiredPassword Screen = "update_expired_password"
	ScreenDashboard             Screen = "dashboard"
	ScreenSecondaryDevice       Screen = "secondary_device"
	OverlayStepUp               Screen = "step_up_overlay"
)

// Params carries screen parameters alongside a navigation instruction.
type Params map[string]any

// LifecycleState mirrors the host application lifecycle signal.
type LifecycleState string

const (
	LifecycleActive     LifecycleState = "active"
	LifecycleBackground LifecycleState = "background"
	LifecycleInactive   LifecycleState = "inactive"
)

// TimeoutKind distinguishes the two bridge timeout notifications.
type TimeoutKind int

const (
	TimeoutNone      TimeoutKind = iota // tracker idle
	TimeoutAdvisory                     // idle warning, may be extendable
	TimeoutMandatory                    // session already expired
)

// TimeoutSnapshot is the countdown state exposed to the UI layer.
type TimeoutSnapshot struct {
	Kind             TimeoutKind
	SecondsRemaining int
	CanExtend        bool
}
