package capability

// Standard operations shared across the instrument library.
const (
	OpDisconnect Operation = "disconnect"
	OpSetVoltage Operation = "set_voltage"
	OpTurnOn     Operation = "turn_on"
	OpTurnOff    Operation = "turn_off"
	OpGetVoltage Operation = "get_voltage"
	OpCount      Operation = "count"
	OpSetGate    Operation = "set_gate_time"
	OpHostSlots  Operation = "host_slots"
)

// Standard contracts defined by the instrument library. Additional contracts
// can be defined by callers; the registry treats these no differently.
var (
	// VSource is the voltage-source role: apply a voltage and gate the output.
	VSource = NewContract("VSource", OpDisconnect, OpSetVoltage, OpTurnOn, OpTurnOff)

	// VSense is the single-channel voltage-sensing role.
	VSense = NewContract("VSense", OpDisconnect, OpGetVoltage)

	// Counter is the pulse-counter role.
	Counter = NewContract("Counter", OpDisconnect, OpCount, OpSetGate)

	// Chassis is the mainframe role: hosts slot-addressed modules and owns
	// the shared communication channel they multiplex.
	Chassis = NewContract("Chassis", OpDisconnect, OpHostSlots)
)

// Lookup resolves a contract reference against the standard library
// contracts. The second return is false for unknown role names.
func Lookup(ref Ref) (Contract, bool) {
	switch ref.Name {
	case VSource.name:
		return VSource, true
	case VSense.name:
		return VSense, true
	case Counter.name:
		return Counter, true
	case Chassis.name:
		return Chassis, true
	}
	return Contract{}, false
}
