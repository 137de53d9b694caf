package media

// SourceState is the lifecycle state of a single capture source.
type SourceState int32

const (
	Idle SourceState = iota
	Starting
	Running
	Stopping
	Failed
)

func (s SourceState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Failed:
		return "failed"
	}
	return "unknown"
}
