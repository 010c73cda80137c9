package keys

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// predefined maps network names to their consensus parameters.
var predefined = map[string]*chaincfg.Params{
	"mainnet": &chaincfg.MainNetParams,
	"testnet": &chaincfg.TestNet3Params,
	"regtest": &chaincfg.RegressionNetParams,
}

// NetworkParams returns the chain parameters for a network name.
func NetworkParams(name string) (*chaincfg.Params, error) {
	if p, ok := predefined[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidNetwork, name)
}
