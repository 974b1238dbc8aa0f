package router

import (
	authflow "github.com/chimerakang/authflow-go"
)

// modeDiscriminated lists the events whose destination is selected by the
// payload's challenge mode rather than the event name. The bridge reuses one
// event name for several logical steps and discriminates with the mode, so
// for these events the mode always wins.
var modeDiscriminated = map[string]bool{
	authflow.EventPasswordRequested: true,
}

// modeTargets is the mode half of the transition table. Several modes share a
// destination: collecting a credential looks the same on screen whether it is
// a login, a step inside the local-auth toggle flow, or a re-enrollment.
var modeTargets = map[authflow.ChallengeMode]authflow.Screen{
	authflow.ModeVerifyPassword:        authflow.ScreenVerifyPassword,
	authflow.ModeSetPassword:           authflow.ScreenSetPassword,
	authflow.ModeUpdatePassword:        authflow.ScreenUpdatePassword,
	authflow.ModeUpdateExpiredPassword: authflow.ScreenUpdateExpiredPassword,
	authflow.ModeVerifyEnableLocalAuth: authflow.ScreenVerifyPassword,
	authflow.ModeSigningStepUp:         authflow.OverlayStepUp,
	authflow.ModeSetEnableLocalAuth:    authflow.ScreenSetPassword,
	authflow.ModeVerifyDisableLocal:    authflow.ScreenVerifyPassword,
	authflow.ModeSetDisableLocal:       authflow.ScreenSetPassword,
}

// eventTargets is the event half of the table, for events whose destination
// does not depend on the challenge mode.
var eventTargets = map[string]authflow.Screen{
	authflow.EventUserIdentificationRequested: authflow.ScreenIdentify,
	authflow.EventActivationCodeRequested:     authflow.ScreenActivationCode,
	authflow.EventLocalAuthConsentRequested:   authflow.ScreenConsent,
	authflow.EventDeviceActivationOptions:     authflow.ScreenSecondaryDevice,
}

// Lookup resolves the destination screen for a challenge. For
// mode-discriminated events an unknown mode resolves to nothing; the caller
// drops the event rather than guessing a screen.
func Lookup(event string, mode authflow.ChallengeMode) (authflow.Screen, bool) {
	if modeDiscriminated[event] {
		s, ok := modeTargets[mode]
		return s, ok
	}
	s, ok := eventTargets[event]
	return s, ok
}
