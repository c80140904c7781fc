package domain

import "fmt"

// EventCategory is a contract event the indexer understands.
type EventCategory string

const (
	// Token contract events
	EventIssue                    EventCategory = "Issue"
	EventTransfer                 EventCategory = "Transfer"
	EventLock                     EventCategory = "Lock"
	EventForceLock                EventCategory = "ForceLock"
	EventUnlock                   EventCategory = "Unlock"
	EventForceUnlock              EventCategory = "ForceUnlock"
	EventForceChangeLockedAccount EventCategory = "ForceChangeLockedAccount"
	EventRedeem                   EventCategory = "Redeem"
	EventApplyForTransfer         EventCategory = "ApplyForTransfer"
	EventCancelTransfer           EventCategory = "CancelTransfer"
	EventApproveTransfer          EventCategory = "ApproveTransfer"

	// Exchange (order book) events
	EventNewOrder         EventCategory = "NewOrder"
	EventCancelOrder      EventCategory = "CancelOrder"
	EventForceCancelOrder EventCategory = "ForceCancelOrder"
	EventAgree            EventCategory = "Agree"
	EventSettlementOK     EventCategory = "SettlementOK"
	EventSettlementNG     EventCategory = "SettlementNG"

	// Escrow events
	EventEscrowCreated  EventCategory = "EscrowCreated"
	EventEscrowCanceled EventCategory = "EscrowCanceled"
	EventEscrowFinished EventCategory = "EscrowFinished"
	EventHolderChanged  EventCategory = "HolderChanged"

	// Delivery-versus-payment events
	EventDeliveryCreated  EventCategory = "DeliveryCreated"
	EventDeliveryCanceled EventCategory = "DeliveryCanceled"
	EventDeliveryFinished EventCategory = "DeliveryFinished"
	EventDeliveryAborted  EventCategory = "DeliveryAborted"
)

// IsVenueEvent reports whether c is emitted by a trading/escrow venue
// rather than by the token itself.
func (c EventCategory) IsVenueEvent() bool {
	switch c {
	case EventNewOrder, EventCancelOrder, EventForceCancelOrder, EventAgree,
		EventSettlementOK, EventSettlementNG,
		EventEscrowCreated, EventEscrowCanceled, EventEscrowFinished, EventHolderChanged,
		EventDeliveryCreated, EventDeliveryCanceled, EventDeliveryFinished, EventDeliveryAborted:
		return true
	}
	return false
}

// Event is one decoded contract log.
type Event struct {
	Category    EventCategory
	Contract    string
	BlockNumber uint64
	TxHash      string
	LogIndex    uint
	// Args holds decoded arguments keyed by ABI name. Addresses are
	// checksummed strings, integers are *big.Int, bytes are []byte.
	Args map[string]any
	// DecodeErr is set when the log matched the event signature but its
	// payload could not be decoded. Args is nil in that case.
	DecodeErr error
}

func (e *Event) String() string {
	return fmt.Sprintf("%s@%d/%s#%d", e.Category, e.BlockNumber, e.TxHash, e.LogIndex)
}
