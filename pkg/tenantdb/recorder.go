package tenantdb

import "time"

// Recorder receives router events, typically to update metrics.
type Recorder interface {
	BindObserved(d time.Duration, err error)
	BindingsActive(n int64)
	PoolsOpen(n int)
}

type nopRecorder struct{}

func (nopRecorder) BindObserved(time.Duration, error) {}
func (nopRecorder) BindingsActive(int64)              {}
func (nopRecorder) PoolsOpen(int)                     {}
