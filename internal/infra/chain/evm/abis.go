package evm

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/pkg/errors"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/chain"
)

//go:embed abi/*.json
var abiFS embed.FS

// abiCache parses each ABI once. Built-in ABIs are keyed by kind, token
// overrides by their JSON text.
type abiCache struct {
	mu      sync.RWMutex
	builtin map[chain.ContractKind]*abi.ABI
	custom  map[string]*abi.ABI
}

func newABICache() *abiCache {
	return &abiCache{
		builtin: make(map[chain.ContractKind]*abi.ABI),
		custom:  make(map[string]*abi.ABI),
	}
}

func (c *abiCache) get(contract chain.Contract) (*abi.ABI, error) {
	if contract.ABI != "" {
		return c.getCustom(contract.ABI)
	}

	c.mu.RLock()
	parsed, ok := c.builtin[contract.Kind]
	c.mu.RUnlock()
	if ok {
		return parsed, nil
	}

	raw, err := abiFS.ReadFile(fmt.Sprintf("abi/%s.json", contract.Kind))
	if err != nil {
		return nil, errors.Errorf("no ABI for contract kind %q", contract.Kind)
	}
	p, err := abi.JSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, errors.Wrapf(err, "abi.JSON(%s)", contract.Kind)
	}

	c.mu.Lock()
	c.builtin[contract.Kind] = &p
	c.mu.Unlock()
	return &p, nil
}

func (c *abiCache) getCustom(text string) (*abi.ABI, error) {
	c.mu.RLock()
	parsed, ok := c.custom[text]
	c.mu.RUnlock()
	if ok {
		return parsed, nil
	}

	p, err := abi.JSON(strings.NewReader(text))
	if err != nil {
		return nil, errors.Wrap(err, "abi.JSON")
	}

	c.mu.Lock()
	c.custom[text] = &p
	c.mu.Unlock()
	return &p, nil
}
