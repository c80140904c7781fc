package evm

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
)

// decodeLog turns a raw log into an event. Payload errors are attached to
// the event instead of being returned.
func decodeLog(ev abi.Event, category domain.EventCategory, lg types.Log) *domain.Event {
	out := &domain.Event{
		Category:    category,
		Contract:    lg.Address.Hex(),
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash.Hex(),
		LogIndex:    lg.Index,
	}

	args, err := unpackLog(ev, lg)
	if err != nil {
		out.DecodeErr = err
		return out
	}
	out.Args = args
	return out
}

func unpackLog(ev abi.Event, lg types.Log) (map[string]any, error) {
	if len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
		return nil, errors.Errorf("log is not a %s event", ev.Name)
	}

	args := make(map[string]any, len(ev.Inputs))
	if len(lg.Data) > 0 || len(ev.Inputs.NonIndexed()) > 0 {
		if err := ev.Inputs.UnpackIntoMap(args, lg.Data); err != nil {
			return nil, errors.Wrap(err, "UnpackIntoMap")
		}
	}

	var indexed abi.Arguments
	for _, input := range ev.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(lg.Topics)-1 != len(indexed) {
		return nil, errors.Errorf("%s: expected %d topics, got %d", ev.Name, len(indexed), len(lg.Topics)-1)
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, lg.Topics[1:]); err != nil {
		return nil, errors.Wrap(err, "ParseTopicsIntoMap")
	}

	for k, v := range args {
		if addr, ok := v.(common.Address); ok {
			args[k] = addr.Hex()
		}
	}
	return args, nil
}
