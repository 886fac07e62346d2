// Package securedfinance is a go-ethereum client for the fixed-term lending
// protocol contracts: currency listing, per-maturity lending markets, their
// order books, and order creation.
package securedfinance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/termarb/internal/domain"
)

// Backend is the part of an Ethereum node connection the client uses.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// TxSigner signs transactions for the wallet that submits orders.
type TxSigner interface {
	Address() common.Address
	ChainID() *big.Int
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// ErrReadOnly is returned by write operations on a client built without a signer.
var ErrReadOnly = errors.New("securedfinance: client has no signer")

// Config holds contract addresses and gas policy.
type Config struct {
	CurrencyController      common.Address
	LendingMarketController common.Address
	// GasLimitBufferPct is added on top of the node's gas estimate.
	GasLimitBufferPct uint64
}

// Client talks to the protocol contracts through a Backend.
type Client struct {
	backend Backend
	abis    contractABIs
	cfg     Config
	signer  TxSigner
	logger  *slog.Logger
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("securedfinance: dial %s: %w", rpcURL, err)
	}
	return c, nil
}

// New creates a client. signer may be nil for a read-only client.
func New(backend Backend, cfg Config, signer TxSigner, logger *slog.Logger) (*Client, error) {
	abis, err := parseABIs()
	if err != nil {
		return nil, err
	}
	return &Client{
		backend: backend,
		abis:    abis,
		cfg:     cfg,
		signer:  signer,
		logger:  logger.With(slog.String("component", "securedfinance")),
	}, nil
}

// BookLevel is one price level of a lending market order book.
type BookLevel struct {
	UnitPrice *uint256.Int
	Amount    *uint256.Int
	Quantity  *uint256.Int
}

// OrderBook lists levels best first.
type OrderBook []BookLevel

// Best returns the top level, if any.
func (b OrderBook) Best() (BookLevel, bool) {
	if len(b) == 0 {
		return BookLevel{}, false
	}
	return b[0], true
}

// Currencies returns the symbols of every currency the protocol supports,
// in contract order.
func (c *Client) Currencies(ctx context.Context) ([]string, error) {
	out, err := c.call(ctx, c.cfg.CurrencyController, c.abis.currency, "getCurrencies")
	if err != nil {
		return nil, err
	}
	raw, ok := out[0].([][32]byte)
	if !ok {
		return nil, fmt.Errorf("securedfinance: getCurrencies: unexpected type %T", out[0])
	}
	names := make([]string, len(raw))
	for i, b := range raw {
		names[i] = Bytes32ToString(b)
	}
	return names, nil
}

// LendingMarkets returns the market contract of every open maturity for a currency.
func (c *Client) LendingMarkets(ctx context.Context, ccy string) ([]common.Address, error) {
	key, err := StringToBytes32(ccy)
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, c.cfg.LendingMarketController, c.abis.control, "getLendingMarkets", key)
	if err != nil {
		return nil, err
	}
	addrs, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("securedfinance: getLendingMarkets: unexpected type %T", out[0])
	}
	return addrs, nil
}

// Maturity returns the maturity of a lending market as unix seconds.
func (c *Client) Maturity(ctx context.Context, market common.Address) (int64, error) {
	out, err := c.call(ctx, market, c.abis.market, "getMaturity")
	if err != nil {
		return 0, err
	}
	m, ok := out[0].(*big.Int)
	if !ok || !m.IsInt64() {
		return 0, fmt.Errorf("securedfinance: getMaturity: bad value %v", out[0])
	}
	return m.Int64(), nil
}

// BorrowOrderBook returns up to depth levels of resting borrow orders.
func (c *Client) BorrowOrderBook(ctx context.Context, market common.Address, depth int64) (OrderBook, error) {
	return c.orderBook(ctx, market, "getBorrowOrderBook", depth)
}

// LendOrderBook returns up to depth levels of resting lend orders.
func (c *Client) LendOrderBook(ctx context.Context, market common.Address, depth int64) (OrderBook, error) {
	return c.orderBook(ctx, market, "getLendOrderBook", depth)
}

func (c *Client) orderBook(ctx context.Context, market common.Address, method string, depth int64) (OrderBook, error) {
	out, err := c.call(ctx, market, c.abis.market, method, big.NewInt(depth))
	if err != nil {
		return nil, err
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("securedfinance: %s: got %d outputs", method, len(out))
	}
	cols := make([][]*big.Int, 3)
	for i := range cols {
		v, ok := out[i].([]*big.Int)
		if !ok {
			return nil, fmt.Errorf("securedfinance: %s: unexpected type %T", method, out[i])
		}
		cols[i] = v
	}
	n := min(len(cols[0]), len(cols[1]), len(cols[2]))
	book := make(OrderBook, 0, n)
	for i := 0; i < n; i++ {
		level, err := toLevel(cols[0][i], cols[1][i], cols[2][i])
		if err != nil {
			return nil, fmt.Errorf("securedfinance: %s: level %d: %w", method, i, err)
		}
		book = append(book, level)
	}
	return book, nil
}

func toLevel(price, amount, qty *big.Int) (BookLevel, error) {
	var l BookLevel
	var overflow bool
	for _, p := range []struct {
		src *big.Int
		dst **uint256.Int
	}{{price, &l.UnitPrice}, {amount, &l.Amount}, {qty, &l.Quantity}} {
		if *p.dst, overflow = uint256.FromBig(p.src); overflow {
			return BookLevel{}, domain.ErrAmountOverflow
		}
	}
	return l, nil
}

// CreateOrder signs and sends a createOrder transaction on the lending market
// controller. It returns once the node has accepted the transaction.
func (c *Client) CreateOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if c.signer == nil {
		return domain.OrderResult{}, ErrReadOnly
	}
	data, err := c.packCreateOrder(req)
	if err != nil {
		return domain.OrderResult{}, err
	}
	tx, err := c.buildTx(ctx, c.cfg.LendingMarketController, data)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("securedfinance: createOrder: %w", err)
	}
	signed, err := c.signer.SignTx(tx)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("securedfinance: createOrder: %w: %v", domain.ErrSigningFailed, err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return domain.OrderResult{}, fmt.Errorf("securedfinance: createOrder: send: %w", err)
	}
	hash := signed.Hash().Hex()
	c.logger.InfoContext(ctx, "order submitted",
		slog.String("ccy", req.Token.Name),
		slog.String("side", req.Side.String()),
		slog.Int64("maturity", req.Maturity),
		slog.String("amount", req.Amount.Dec()),
		slog.Int("unit_price", req.UnitPrice),
		slog.String("tx", hash),
	)
	return domain.OrderResult{TxHash: hash, Submitted: true, SubmittedAt: time.Now().UTC()}, nil
}

// EstimateOrderCost returns the gas units and the current gas price of a
// createOrder call, without sending anything.
func (c *Client) EstimateOrderCost(ctx context.Context, req domain.OrderRequest, from common.Address) (uint64, *big.Int, error) {
	data, err := c.packCreateOrder(req)
	if err != nil {
		return 0, nil, err
	}
	to := c.cfg.LendingMarketController
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return 0, nil, fmt.Errorf("securedfinance: estimate gas: %w", err)
	}
	price, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("securedfinance: gas price: %w", err)
	}
	return c.buffered(gas), price, nil
}

func (c *Client) packCreateOrder(req domain.OrderRequest) ([]byte, error) {
	if !req.Side.Valid() {
		return nil, fmt.Errorf("securedfinance: createOrder: %w: side not set", domain.ErrInvalidQuote)
	}
	if req.Amount == nil {
		return nil, fmt.Errorf("securedfinance: createOrder: %w: nil amount", domain.ErrInvalidQuote)
	}
	ccy, err := StringToBytes32(req.Token.Name)
	if err != nil {
		return nil, err
	}
	data, err := c.abis.control.Pack("createOrder",
		ccy,
		big.NewInt(req.Maturity),
		req.Side.Flag(),
		req.Amount.ToBig(),
		big.NewInt(int64(req.UnitPrice)),
	)
	if err != nil {
		return nil, fmt.Errorf("securedfinance: pack createOrder: %w", err)
	}
	return data, nil
}

// buildTx prepares an unsigned transaction, EIP-1559 when the chain reports
// a base fee and legacy otherwise.
func (c *Client) buildTx(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	from := c.signer.Address()
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gas = c.buffered(gas)

	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}
	if head.BaseFee == nil {
		price, err := c.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("gas price: %w", err)
		}
		return types.NewTx(&types.LegacyTx{
			Nonce: nonce, GasPrice: price, Gas: gas, To: &to, Data: data,
		}), nil
	}
	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas tip: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.signer.ChainID(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Data:      data,
	}), nil
}

func (c *Client) buffered(gas uint64) uint64 {
	return gas + gas*c.cfg.GasLimitBufferPct/100
}

// call packs and executes a read-only contract call and unpacks its outputs.
func (c *Client) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("securedfinance: pack %s: %w", method, err)
	}
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("securedfinance: call %s: %w", method, err)
	}
	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("securedfinance: unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("securedfinance: %s returned nothing", method)
	}
	return out, nil
}
