package application

import "github.com/coder/quartz"

// Clock is the time source used by the services. Tests pass quartz.NewMock.
type Clock = quartz.Clock

// SystemClock returns the wall clock.
func SystemClock() Clock { return quartz.NewReal() }
