// Package clock provides the time source used by every expiry decision.
package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock supplies the current time. Token and code expiry checks must go
// through this interface so tests can pin time exactly.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// NewSystem returns the wall-clock implementation.
func NewSystem() Clock {
	return systemClock{}
}

var Module = fx.Module("clock",
	fx.Provide(NewSystem),
)
