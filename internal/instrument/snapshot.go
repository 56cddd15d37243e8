package instrument

// Snapshot is an immutable view of instrument state at a point in the
// execution log. All maps and slices are copies; callers can hold a
// Snapshot indefinitely without observing later mutations.
type Snapshot struct {
	ChannelTips  []bool             `json:"channel_tips"`
	WellVolumes  map[string]float64 `json:"well_volumes"`
	HeldResource string             `json:"held_resource,omitempty"`
	LastLogIndex int                `json:"last_log_index"`
}

// TakeSnapshot captures the current state of the three stores.
// lastLogIndex is the index of the most recent log entry, -1 before any.
func TakeSnapshot(channels *ChannelState, ledger *LiquidLedger, gripper *GripperState, lastLogIndex int) Snapshot {
	held, _ := gripper.Held()
	return Snapshot{
		ChannelTips:  channels.Tips(),
		WellVolumes:  ledger.Volumes(),
		HeldResource: held,
		LastLogIndex: lastLogIndex,
	}
}
