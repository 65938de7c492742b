package impl

import (
	"fmt"
	"sync"

	"github.com/DistributedClocks/GoVector/govec"
)

// tracer records every RPC as a local vector clock event, the resulting log
// can be merged with the other nodes' logs and visualised with ShiViz. A nil
// tracer records nothing.
type tracer struct {
	sync.Mutex
	logger *govec.GoLog
}

func newTracer(file, process string) *tracer {
	if file == "" {
		return nil
	}

	return &tracer{
		logger: govec.InitGoVector(process, file+"-"+process, govec.GetDefaultConfig()),
	}
}

func (t *tracer) event(format string, args ...interface{}) {
	if t == nil {
		return
	}

	t.Lock()
	defer t.Unlock()

	t.logger.LogLocalEvent(fmt.Sprintf(format, args...), govec.GetDefaultLogOptions())
}
