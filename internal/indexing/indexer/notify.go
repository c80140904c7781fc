package indexer

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
)

// notificationID derives the notice id from the log position so a range
// that is processed twice yields the same ids.
func notificationID(ev *domain.Event) string {
	key := fmt.Sprintf("%s#%d", ev.TxHash, ev.LogIndex)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// lockNotification builds the LockInfo/UnlockInfo row for a lock event.
// It returns nil for every other category.
func lockNotification(ev *domain.Event, token *domain.Token) (*domain.Notification, error) {
	if ev.DecodeErr != nil {
		return nil, ev.DecodeErr
	}

	a := argReader{ev: ev}
	var (
		typ  domain.NotificationType
		meta any
	)
	switch ev.Category {
	case domain.EventLock, domain.EventForceLock:
		typ = domain.NotificationTypeLockInfo
		meta = domain.LockMetainfo{
			LockAddress:    a.address("lockAddress"),
			AccountAddress: a.address("accountAddress"),
			Value:          a.amount("value"),
			Data:           a.text("data"),
		}
	case domain.EventUnlock, domain.EventForceUnlock:
		typ = domain.NotificationTypeUnlockInfo
		meta = domain.UnlockMetainfo{
			LockAddress:      a.address("lockAddress"),
			AccountAddress:   a.address("accountAddress"),
			RecipientAddress: a.address("recipientAddress"),
			Value:            a.amount("value"),
			Data:             a.text("data"),
		}
	default:
		return nil, nil
	}
	if a.err != nil {
		return nil, a.err
	}

	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return &domain.Notification{
		ID:            notificationID(ev),
		Type:          typ,
		IssuerAddress: token.IssuerAddress,
		TokenAddress:  token.Address,
		BlockNumber:   ev.BlockNumber,
		Metainfo:      raw,
	}, nil
}
