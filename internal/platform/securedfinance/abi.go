package securedfinance

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Only the functions the bot calls are declared.
const (
	currencyControllerABI = `[
  {"type":"function","name":"getCurrencies","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"bytes32[]"}]}
]`

	lendingMarketControllerABI = `[
  {"type":"function","name":"getLendingMarkets","stateMutability":"view",
   "inputs":[{"name":"_ccy","type":"bytes32"}],
   "outputs":[{"name":"","type":"address[]"}]},
  {"type":"function","name":"createOrder","stateMutability":"nonpayable",
   "inputs":[{"name":"_ccy","type":"bytes32"},{"name":"_maturity","type":"uint256"},
             {"name":"_side","type":"uint8"},{"name":"_amount","type":"uint256"},
             {"name":"_unitPrice","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

	lendingMarketABI = `[
  {"type":"function","name":"getMaturity","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getBorrowOrderBook","stateMutability":"view",
   "inputs":[{"name":"_limit","type":"uint256"}],
   "outputs":[{"name":"unitPrices","type":"uint256[]"},{"name":"amounts","type":"uint256[]"},
              {"name":"quantities","type":"uint256[]"}]},
  {"type":"function","name":"getLendOrderBook","stateMutability":"view",
   "inputs":[{"name":"_limit","type":"uint256"}],
   "outputs":[{"name":"unitPrices","type":"uint256[]"},{"name":"amounts","type":"uint256[]"},
              {"name":"quantities","type":"uint256[]"}]}
]`
)

type contractABIs struct {
	currency abi.ABI
	control  abi.ABI
	market   abi.ABI
}

func parseABIs() (contractABIs, error) {
	var out contractABIs
	for _, p := range []struct {
		name string
		src  string
		dst  *abi.ABI
	}{
		{"CurrencyController", currencyControllerABI, &out.currency},
		{"LendingMarketController", lendingMarketControllerABI, &out.control},
		{"LendingMarket", lendingMarketABI, &out.market},
	} {
		parsed, err := abi.JSON(strings.NewReader(p.src))
		if err != nil {
			return contractABIs{}, fmt.Errorf("securedfinance: parse %s abi: %w", p.name, err)
		}
		*p.dst = parsed
	}
	return out, nil
}
