package connection

// State 是连接的生命周期状态
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed  // 主动断开或对端正常关闭，终态
	StateErrored // 传输层错误，终态，不会自动重连
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}
