package indexer

import (
	"fmt"
	"math/big"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
)

// stage is a group of event categories applied together.
type stage struct {
	name       string
	categories []domain.EventCategory
	venue      bool // fetched from exchange contracts instead of tokens
}

// stages is the fixed order in which a block range is processed. Seeding
// runs before the first stage.
var stages = []stage{
	{name: "issuance", categories: []domain.EventCategory{domain.EventIssue}},
	{name: "transfer", categories: []domain.EventCategory{domain.EventTransfer}},
	{name: "lock", categories: []domain.EventCategory{domain.EventLock, domain.EventForceLock}},
	{name: "unlock", categories: []domain.EventCategory{
		domain.EventUnlock, domain.EventForceUnlock, domain.EventForceChangeLockedAccount,
	}},
	{name: "redemption", categories: []domain.EventCategory{domain.EventRedeem}},
	{name: "transfer_approval", categories: []domain.EventCategory{
		domain.EventApplyForTransfer, domain.EventCancelTransfer, domain.EventApproveTransfer,
	}},
	{name: "venue", venue: true, categories: []domain.EventCategory{
		domain.EventNewOrder, domain.EventCancelOrder, domain.EventForceCancelOrder,
		domain.EventAgree, domain.EventSettlementOK, domain.EventSettlementNG,
		domain.EventEscrowCreated, domain.EventEscrowCanceled, domain.EventEscrowFinished,
		domain.EventHolderChanged,
		domain.EventDeliveryCreated, domain.EventDeliveryCanceled,
		domain.EventDeliveryFinished, domain.EventDeliveryAborted,
	}},
}

// Affected is the set of rows whose chain value may have changed because
// of one event.
type Affected struct {
	Positions []domain.PositionKey
	Locked    []domain.LockedPositionKey
}

func (a *Affected) position(token, account string) {
	if account == domain.ZeroAddress {
		return
	}
	a.Positions = append(a.Positions, domain.PositionKey{TokenAddress: token, AccountAddress: account})
}

func (a *Affected) locked(token, lock, account string) {
	if lock == domain.ZeroAddress || account == domain.ZeroAddress {
		return
	}
	a.Locked = append(a.Locked, domain.LockedPositionKey{
		TokenAddress:   token,
		LockAddress:    lock,
		AccountAddress: account,
	})
}

// AccountsAffectedBy resolves the positions and locked positions an event
// may have changed. It does not look at amounts: the caller re-queries
// every returned key from the chain.
func AccountsAffectedBy(ev *domain.Event) (Affected, error) {
	var out Affected
	if ev.DecodeErr != nil {
		return out, fmt.Errorf("undecodable event %s: %w", ev, ev.DecodeErr)
	}

	a := argReader{ev: ev}
	token := domain.NormalizeAddress(ev.Contract)

	switch ev.Category {
	case domain.EventIssue, domain.EventRedeem:
		target, lock := a.address("targetAddress"), a.address("lockAddress")
		out.position(token, a.address("from"))
		out.position(token, target)
		out.locked(token, lock, target)

	case domain.EventTransfer:
		out.position(token, a.address("from"))
		out.position(token, a.address("to"))

	case domain.EventLock, domain.EventForceLock:
		account := a.address("accountAddress")
		out.position(token, account)
		out.locked(token, a.address("lockAddress"), account)

	case domain.EventUnlock, domain.EventForceUnlock:
		account := a.address("accountAddress")
		out.position(token, account)
		out.position(token, a.address("recipientAddress"))
		out.locked(token, a.address("lockAddress"), account)

	case domain.EventForceChangeLockedAccount:
		lock := a.address("lockAddress")
		out.locked(token, lock, a.address("beforeAccountAddress"))
		out.locked(token, lock, a.address("afterAccountAddress"))

	case domain.EventApplyForTransfer, domain.EventCancelTransfer, domain.EventApproveTransfer:
		out.position(token, a.address("from"))
		out.position(token, a.address("to"))

	case domain.EventNewOrder, domain.EventCancelOrder, domain.EventForceCancelOrder:
		out.position(a.address("tokenAddress"), a.address("accountAddress"))

	case domain.EventAgree, domain.EventSettlementOK, domain.EventSettlementNG:
		t := a.address("tokenAddress")
		out.position(t, a.address("buyAddress"))
		out.position(t, a.address("sellAddress"))

	case domain.EventEscrowCreated, domain.EventEscrowCanceled, domain.EventEscrowFinished:
		t := a.address("token")
		out.position(t, a.address("sender"))
		out.position(t, a.address("recipient"))

	case domain.EventHolderChanged:
		t := a.address("token")
		out.position(t, a.address("from"))
		out.position(t, a.address("to"))

	case domain.EventDeliveryCreated, domain.EventDeliveryCanceled,
		domain.EventDeliveryFinished, domain.EventDeliveryAborted:
		t := a.address("token")
		out.position(t, a.address("seller"))
		out.position(t, a.address("buyer"))

	default:
		return Affected{}, fmt.Errorf("unknown event category %q", ev.Category)
	}

	if a.err != nil {
		return Affected{}, a.err
	}
	return out, nil
}

// argReader reads typed arguments from a decoded event and remembers the
// first error.
type argReader struct {
	ev  *domain.Event
	err error
}

func (r *argReader) address(name string) string {
	if r.err != nil {
		return ""
	}
	s, ok := r.ev.Args[name].(string)
	if !ok || !domain.IsAddress(s) {
		r.err = fmt.Errorf("event %s: argument %q is not an address", r.ev, name)
		return ""
	}
	return domain.NormalizeAddress(s)
}

func (r *argReader) amount(name string) int64 {
	if r.err != nil {
		return 0
	}
	v, err := toInt64(r.ev.Args[name])
	if err != nil {
		r.err = fmt.Errorf("event %s: argument %q: %w", r.ev, name, err)
	}
	return v
}

func (r *argReader) text(name string) string {
	if r.err != nil {
		return ""
	}
	s, ok := r.ev.Args[name].(string)
	if !ok {
		r.err = fmt.Errorf("event %s: argument %q is not a string", r.ev, name)
	}
	return s
}

// toInt64 converts a uint256 chain value. Amounts are stored as BIGINT.
func toInt64(v any) (int64, error) {
	n, ok := v.(*big.Int)
	if !ok || n == nil {
		return 0, fmt.Errorf("not an integer: %T", v)
	}
	if !n.IsInt64() {
		return 0, fmt.Errorf("value %s overflows int64", n)
	}
	return n.Int64(), nil
}
