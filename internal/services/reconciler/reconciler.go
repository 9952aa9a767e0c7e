// Package reconciler checks the tracked account balance against the
// authoritative on-chain wallet. A material discrepancy is auto-corrected
// and logged loudly; trading never proceeds on an unreconciled state.
package reconciler

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/verdict/internal/domain"
	"github.com/vadiminshakov/verdict/pkg/retrier"
	"go.uber.org/zap"
)

// erc20ABI covers the single view call the reconciler needs.
const erc20ABI = `[
	{
		"inputs": [{"name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// BalanceProvider returns the authoritative account balance.
type BalanceProvider interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
}

// ChainBalance reads an ERC-20 token balance for one wallet.
type ChainBalance struct {
	client   *ethclient.Client
	parsed   abi.ABI
	token    common.Address
	wallet   common.Address
	decimals int32
}

// NewChainBalance wires a token/wallet pair on an RPC client. decimals is
// the token's decimal count (6 for USDC).
func NewChainBalance(client *ethclient.Client, token, wallet common.Address, decimals int32) (*ChainBalance, error) {
	if client == nil {
		return nil, errors.New("eth client is required")
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, errors.Wrap(err, "parse erc20 abi")
	}
	return &ChainBalance{client: client, parsed: parsed, token: token, wallet: wallet, decimals: decimals}, nil
}

// Balance implements BalanceProvider via an eth_call of balanceOf.
func (c *ChainBalance) Balance(ctx context.Context) (decimal.Decimal, error) {
	data, err := c.parsed.Pack("balanceOf", c.wallet)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "pack balanceOf")
	}

	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.token, Data: data}, nil)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "call balanceOf")
	}

	var raw *big.Int
	if err := c.parsed.UnpackIntoInterface(&raw, "balanceOf", result); err != nil {
		return decimal.Zero, errors.Wrap(err, "unpack balanceOf")
	}
	return decimal.NewFromBigInt(raw, -c.decimals), nil
}

// corrector is the slice of the guardian the reconciler drives.
type corrector interface {
	Snapshot() domain.AccountState
	CorrectBalance(balance decimal.Decimal, source string) error
}

// Reconciler periodically compares the tracked balance with the provider's.
type Reconciler struct {
	provider BalanceProvider
	account  corrector
	// threshold is the relative discrepancy that triggers a correction.
	threshold float64
	retry     *retrier.Retrier
	logger    *zap.Logger
}

// New builds a reconciler with a 10% default threshold.
func New(provider BalanceProvider, account corrector, threshold float64, logger *zap.Logger) (*Reconciler, error) {
	if provider == nil || account == nil {
		return nil, errors.New("provider and account are required")
	}
	if threshold <= 0 {
		threshold = 0.10
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reconciler{
		provider:  provider,
		account:   account,
		threshold: threshold,
		retry: retrier.New(
			retrier.WithInitialInterval(time.Second),
			retrier.WithMaxInterval(15*time.Second),
			retrier.WithMaxRetries(4),
		),
		logger: logger,
	}, nil
}

// Reconcile fetches the authoritative balance and corrects the account when
// the tracked value deviates beyond the threshold. Cash is compared; funds
// locked in open positions are expected to be off-wallet.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	authoritative, err := retrier.DoWithData(r.retry, ctx, r.provider.Balance)
	if err != nil {
		return errors.Wrap(err, "fetch authoritative balance")
	}

	tracked := r.account.Snapshot().CurrentBalance
	if tracked.LessThanOrEqual(decimal.Zero) {
		if authoritative.GreaterThan(decimal.Zero) {
			return r.correct(tracked, authoritative)
		}
		return nil
	}

	deviation, _ := authoritative.Sub(tracked).Abs().Div(tracked).Float64()
	if deviation <= r.threshold {
		return nil
	}
	return r.correct(tracked, authoritative)
}

func (r *Reconciler) correct(tracked, authoritative decimal.Decimal) error {
	r.logger.Error("tracked balance disagrees with authoritative source, correcting",
		zap.String("tracked", tracked.String()),
		zap.String("authoritative", authoritative.String()))
	return errors.Wrap(r.account.CorrectBalance(authoritative, "reconciler"), "correct balance")
}

// Run reconciles on the interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Reconcile(ctx); err != nil {
				r.logger.Error("reconciliation failed", zap.Error(err))
			}
		}
	}
}
