package progress

// ConnectionState is the externally visible subscription status,
// shaped for direct display.
type ConnectionState struct {
	IsConnected        bool
	IsConnecting       bool
	IsReconnecting     bool
	ReconnectAttempt   int
	MaxAttemptsReached bool
}

// Idle reports that the subscription is neither up nor trying.
func (s ConnectionState) Idle() bool {
	return !s.IsConnected && !s.IsConnecting && !s.IsReconnecting && !s.MaxAttemptsReached
}

func stateIdle() ConnectionState {
	return ConnectionState{}
}

func stateConnecting() ConnectionState {
	return ConnectionState{IsConnecting: true}
}

func stateConnected() ConnectionState {
	return ConnectionState{IsConnected: true}
}

func stateReconnecting(attempt int) ConnectionState {
	return ConnectionState{IsReconnecting: true, ReconnectAttempt: attempt}
}

func stateFailed() ConnectionState {
	return ConnectionState{MaxAttemptsReached: true}
}
