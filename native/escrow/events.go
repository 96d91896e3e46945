package escrow

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"bountyvault/core/types"
)

const (
	EventTypeInitialized        = "escrow.initialized"
	EventTypeLocked             = "escrow.locked"
	EventTypeReleased           = "escrow.released"
	EventTypeRefunded           = "escrow.refunded"
	EventTypeProgramInitialized = "escrow.program.initialized"
	EventTypeProgramLocked      = "escrow.program.locked"
	EventTypeProgramPayout      = "escrow.program.payout"
)

// Notification wraps an event payload so it satisfies the emitter contract.
type Notification struct {
	evt *types.Event
}

// EventType implements the events.Event interface.
func (n Notification) EventType() string {
	if n.evt == nil {
		return ""
	}
	return n.evt.Type
}

// EventAttributes exposes the flat payload for logging sinks.
func (n Notification) EventAttributes() map[string]string {
	if n.evt == nil {
		return nil
	}
	return n.evt.Attributes
}

// Event returns the underlying payload.
func (n Notification) Event() *types.Event { return n.evt }

func addrHex(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

// NewInitializedEvent is emitted once when the service configuration is
// written.
func NewInitializedEvent(cfg *Config, timestamp int64) Notification {
	attrs := make(map[string]string)
	if cfg != nil {
		attrs["admin"] = addrHex(cfg.Admin)
		attrs["token"] = cfg.Token
	}
	attrs["timestamp"] = strconv.FormatInt(timestamp, 10)
	return Notification{evt: types.NewEvent(EventTypeInitialized, attrs)}
}

// NewLockedEvent is emitted when funds are locked for a bounty.
func NewLockedEvent(esc *Escrow) Notification {
	return Notification{evt: types.NewEvent(EventTypeLocked, escrowAttrs(esc))}
}

// NewReleasedEvent is emitted when escrowed funds are paid out.
func NewReleasedEvent(esc *Escrow, beneficiary [20]byte, timestamp int64) Notification {
	attrs := escrowAttrs(esc)
	attrs["beneficiary"] = addrHex(beneficiary)
	attrs["timestamp"] = strconv.FormatInt(timestamp, 10)
	return Notification{evt: types.NewEvent(EventTypeReleased, attrs)}
}

// NewRefundedEvent is emitted when escrowed funds return to the depositor.
func NewRefundedEvent(esc *Escrow, timestamp int64) Notification {
	attrs := escrowAttrs(esc)
	attrs["timestamp"] = strconv.FormatInt(timestamp, 10)
	return Notification{evt: types.NewEvent(EventTypeRefunded, attrs)}
}

// NewProgramInitializedEvent is emitted when a program aggregate is created.
func NewProgramInitializedEvent(prog *Program, timestamp int64) Notification {
	attrs := programAttrs(prog)
	attrs["timestamp"] = strconv.FormatInt(timestamp, 10)
	return Notification{evt: types.NewEvent(EventTypeProgramInitialized, attrs)}
}

// NewProgramLockedEvent is emitted when program funds are accounted for.
func NewProgramLockedEvent(prog *Program, amount *big.Int) Notification {
	attrs := programAttrs(prog)
	if amount != nil {
		attrs["amount"] = amount.String()
	}
	return Notification{evt: types.NewEvent(EventTypeProgramLocked, attrs)}
}

// NewProgramPayoutEvent is emitted after a single or batch disbursement.
func NewProgramPayoutEvent(prog *Program, recipients [][20]byte, total *big.Int) Notification {
	attrs := programAttrs(prog)
	attrs["recipients"] = strconv.Itoa(len(recipients))
	if total != nil {
		attrs["total"] = total.String()
	}
	return Notification{evt: types.NewEvent(EventTypeProgramPayout, attrs)}
}

func escrowAttrs(esc *Escrow) map[string]string {
	attrs := make(map[string]string)
	if esc == nil {
		return attrs
	}
	attrs["bountyId"] = strconv.FormatUint(esc.BountyID, 10)
	attrs["depositor"] = addrHex(esc.Depositor)
	if esc.Amount != nil {
		attrs["amount"] = esc.Amount.String()
	}
	attrs["status"] = esc.Status.String()
	attrs["deadline"] = strconv.FormatInt(esc.Deadline, 10)
	return attrs
}

func programAttrs(prog *Program) map[string]string {
	attrs := make(map[string]string)
	if prog == nil {
		return attrs
	}
	attrs["programId"] = prog.ProgramID
	attrs["admin"] = addrHex(prog.Admin)
	attrs["token"] = prog.Token
	if prog.TotalFunds != nil {
		attrs["totalFunds"] = prog.TotalFunds.String()
	}
	if prog.RemainingBalance != nil {
		attrs["remainingBalance"] = prog.RemainingBalance.String()
	}
	return attrs
}
