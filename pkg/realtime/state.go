package realtime

// State is a connection state of the channel.
type State string

const (
	StateDisconnected State = "Disconnected"
	StateConnecting   State = "Connecting"
	StateConnected    State = "Connected"
	StateReconnecting State = "Reconnecting"
)

func (s State) String() string { return string(s) }

// Trigger is an input to the connection state machine.
type Trigger string

const (
	// TriggerStart begins the first connection.
	TriggerStart Trigger = "start"
	// TriggerOpen reports a completed handshake.
	TriggerOpen Trigger = "open"
	// TriggerDrop reports an unexpected connection loss.
	TriggerDrop Trigger = "drop"
	// TriggerRetry reports a failed reconnect attempt that will be retried.
	TriggerRetry Trigger = "retry"
	// TriggerFail reports a failure that ends the session.
	TriggerFail Trigger = "fail"
	// TriggerStop is an explicit stop by the caller.
	TriggerStop Trigger = "stop"
)

var transitions = map[State]map[Trigger]State{
	StateDisconnected: {
		TriggerStart: StateConnecting,
		TriggerStop:  StateDisconnected,
	},
	StateConnecting: {
		TriggerOpen: StateConnected,
		TriggerFail: StateDisconnected,
		TriggerStop: StateDisconnected,
	},
	StateConnected: {
		TriggerDrop: StateReconnecting,
		TriggerFail: StateDisconnected,
		TriggerStop: StateDisconnected,
	},
	StateReconnecting: {
		TriggerOpen:  StateConnected,
		TriggerRetry: StateReconnecting,
		TriggerFail:  StateDisconnected,
		TriggerStop:  StateDisconnected,
	},
}

// Next returns the state reached from s on t.
func Next(s State, t Trigger) (State, error) {
	if next, ok := transitions[s][t]; ok {
		return next, nil
	}
	return s, &TransitionError{State: s, Trigger: t}
}
