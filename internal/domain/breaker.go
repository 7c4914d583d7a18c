package domain

// Breaker resource keys, one breaker instance per graph entity kind.
const (
	BreakerKeyCanvasNodes = "canvas-nodes"
	BreakerKeyCanvasEdges = "canvas-edges"
)

type BreakerState struct {
	IsOpen              bool
	ConsecutiveFailures int
	LastError           string
}

type BreakerEvent struct {
	Key   string
	State BreakerState
}

type BreakerEventHandler func(event BreakerEvent)

// DecryptionBreaker tracks consecutive genuine decryption failures for one
// resource key and suppresses decryption attempts while open.
type DecryptionBreaker interface {
	Allow() bool
	RecordFailure(err error)
	RecordSuccess()
	Reset()
	State() BreakerState
}

// BreakerRegistry owns the process-wide breaker instances and fans state
// changes out to subscribers.
type BreakerRegistry interface {
	Get(key string) DecryptionBreaker
	ResetAll()
	Subscribe(handler BreakerEventHandler)
}
