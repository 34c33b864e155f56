package balancer

import "errors"

var (
	ErrZeroElapsed       = errors.New("elapsed sampling time must be > 0")
	ErrCounterRegression = errors.New("cpu time counter went backwards")
	ErrCounterLength     = errors.New("cpu time counters do not match core count")
	ErrNoCores           = errors.New("host reports no cpu cores")
	ErrTooManyCores      = errors.New("host has more cores than the affinity mask can hold")
	ErrSessionClosed     = errors.New("host session is closed")
)
