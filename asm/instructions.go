package asm

// Sequencer instruction set. The mnemonics are the wire format parsed by the
// instrument driver and must not be altered.
const (
	OpIllegal        = "illegal"
	OpStop           = "stop"
	OpNop            = "nop"
	OpJmp            = "jmp"
	OpJge            = "jge"
	OpJlt            = "jlt"
	OpLoop           = "loop"
	OpMove           = "move"
	OpNot            = "not"
	OpAdd            = "add"
	OpSub            = "sub"
	OpAnd            = "and"
	OpOr             = "or"
	OpXor            = "xor"
	OpAsl            = "asl"
	OpAsr            = "asr"
	OpSetMrk         = "set_mrk"
	OpResetPh        = "reset_ph"
	OpSetNcoFreq     = "set_freq"
	OpSetNcoPhDelta  = "set_ph_delta"
	OpSetAwgGain     = "set_awg_gain"
	OpSetAwgOffs     = "set_awg_offs"
	OpUpdParam       = "upd_param"
	OpPlay           = "play"
	OpAcquire        = "acquire"
	OpAcquireWeighed = "acquire_weighed"
	OpAcquireTTL     = "acquire_ttl"
	OpWait           = "wait"
	OpWaitSync       = "wait_sync"
	OpWaitTrigger    = "wait_trigger"
)

// realTime marks the instructions whose final argument is a duration the
// sequencer spends executing them. Everything else completes in one classic
// cycle.
var realTime = map[string]bool{
	OpUpdParam:       true,
	OpPlay:           true,
	OpAcquire:        true,
	OpAcquireWeighed: true,
	OpAcquireTTL:     true,
	OpWait:           true,
	OpWaitSync:       true,
	OpWaitTrigger:    true,
}

// CycleCost returns the classic-pipeline cycle count of an opcode. Real-time
// instructions occupy the classic pipeline for one cycle as well; the time
// they spend on the real-time pipeline is tracked separately through the
// program's elapsed-time counter.
func CycleCost(op string) int {
	if op == "" {
		return 0
	}
	return 1
}

// IsRealTime reports whether the opcode consumes wall-clock time given by its
// duration argument.
func IsRealTime(op string) bool {
	return realTime[op]
}
