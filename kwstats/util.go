package kwstats

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ErrGroupLimitCPU returns an errgroup limited to NumCPU.
func ErrGroupLimitCPU() *errgroup.Group {
	errGroup := &errgroup.Group{}
	errGroup.SetLimit(runtime.NumCPU())
	return errGroup
}
