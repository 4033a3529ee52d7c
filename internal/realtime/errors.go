package realtime

import "github.com/pkg/errors"

var (
	errAuthGate        = errors.New("reconnection pipeline: no valid session within the auth gate window")
	errCooldown        = errors.New("reconnection pipeline: skipped, another check ran within the cooldown window")
	errNoRegistrations = errors.New("reconnection pipeline: no channel handlers registered within the registration window")
)
