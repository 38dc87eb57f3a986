package bus

import (
	"context"
	"strings"
	"time"
)

const invokePrefix = "gridpack.run."

// RuntimeInvoker executes pack operations through NATS request/reply. Pack
// runtimes subscribe on gridpack.run.<pack-ref>.<operation>, where slashes
// in the ref are folded to dots.
type RuntimeInvoker struct {
	Bus     *NatsBus
	Timeout time.Duration
}

func (r RuntimeInvoker) Invoke(ctx context.Context, packRef, operation string, payload []byte) ([]byte, error) {
	timeout := r.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return r.Bus.Request(invokeSubject(packRef, operation), payload, timeout)
}

func invokeSubject(packRef, operation string) string {
	ref := strings.ReplaceAll(strings.TrimSuffix(packRef, "/"), "/", ".")
	return invokePrefix + sanitizeSubject(ref) + "." + sanitizeSubject(operation)
}
