package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"castboard/internal/domain"
	"castboard/internal/storage"
)

// CastBoardABI is the ABI of the participant registry contract.
const CastBoardABI = `[
  {"type":"function","name":"getActiveUsers","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
  {"type":"function","name":"users","stateMutability":"view","inputs":[{"name":"","type":"address"}],
   "outputs":[{"name":"username","type":"string"},{"name":"nftCount","type":"uint256"},{"name":"activityScore","type":"uint256"},{"name":"isActive","type":"bool"}]},
  {"type":"function","name":"addUser","stateMutability":"nonpayable","inputs":[{"name":"_address","type":"address"},{"name":"_username","type":"string"}],"outputs":[]},
  {"type":"function","name":"updateUser","stateMutability":"nonpayable","inputs":[{"name":"_address","type":"address"},{"name":"_nftCount","type":"uint256"},{"name":"_activityScore","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"removeUser","stateMutability":"nonpayable","inputs":[{"name":"_address","type":"address"}],"outputs":[]},
  {"type":"event","name":"UserAdded","inputs":[{"name":"user","type":"address","indexed":true},{"name":"username","type":"string","indexed":false}]},
  {"type":"event","name":"UserUpdated","inputs":[{"name":"user","type":"address","indexed":true},{"name":"nftCount","type":"uint256","indexed":false},{"name":"activityScore","type":"uint256","indexed":false}]},
  {"type":"event","name":"UserRemoved","inputs":[{"name":"user","type":"address","indexed":true}]}
]`

// Defaults for contract access.
const (
	DefaultConfirmTimeout  = 2 * time.Minute
	DefaultReadConcurrency = 8
)

// Backend is the chain access needed by Contract.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Contract is a Ledger backed by the CastBoard registry contract.
type Contract struct {
	address        common.Address
	backend        Backend
	bound          *bind.BoundContract
	auth           *bind.TransactOpts // nil when read-only
	confirmTimeout time.Duration
	concurrency    int
	logger         zerolog.Logger

	// writeMu serializes transactions so pending nonces do not collide.
	writeMu sync.Mutex
}

var _ Ledger = (*Contract)(nil)

// ContractOption configures Contract.
type ContractOption func(*Contract)

// WithSigner enables writes signed by key on chainID.
func WithSigner(key *ecdsa.PrivateKey, chainID *big.Int) ContractOption {
	return func(c *Contract) {
		auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			c.logger.Error().Err(err).Msg("invalid signer, ledger stays read-only")
			return
		}
		c.auth = auth
	}
}

// WithConfirmTimeout bounds how long a write waits to be mined.
func WithConfirmTimeout(d time.Duration) ContractOption {
	return func(c *Contract) {
		c.confirmTimeout = d
	}
}

// WithReadConcurrency bounds parallel per-participant reads.
func WithReadConcurrency(n int) ContractOption {
	return func(c *Contract) {
		c.concurrency = n
	}
}

// WithContractLogger sets the logger.
func WithContractLogger(logger zerolog.Logger) ContractOption {
	return func(c *Contract) {
		c.logger = logger
	}
}

// NewContract binds the registry at address.
func NewContract(address common.Address, backend Backend, opts ...ContractOption) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(CastBoardABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	c := &Contract{
		address:        address,
		backend:        backend,
		bound:          bind.NewBoundContract(address, parsed, backend, backend, backend),
		confirmTimeout: DefaultConfirmTimeout,
		concurrency:    DefaultReadConcurrency,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.concurrency < 1 {
		c.concurrency = 1
	}
	return c, nil
}

// DialContract connects to rpcURL and binds the registry at contractAddress.
// An empty privateKeyHex yields a read-only ledger.
func DialContract(ctx context.Context, rpcURL, contractAddress, privateKeyHex string, chainID int64, opts ...ContractOption) (*Contract, error) {
	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("%w: contract %q", domain.ErrInvalidAddress, contractAddress)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrLedgerUnavailable, rpcURL, err)
	}

	if privateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		opts = append(opts, WithSigner(key, big.NewInt(chainID)))
	}

	return NewContract(common.HexToAddress(contractAddress), client, opts...)
}

// Address returns the bound contract address.
func (c *Contract) Address() common.Address {
	return c.address
}

// ActiveParticipants reads the active address list and then each record.
// Records that are inactive or out of range are skipped.
func (c *Contract) ActiveParticipants(ctx context.Context) ([]domain.LedgerEntry, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "getActiveUsers"); err != nil {
		return nil, fmt.Errorf("%w: getActiveUsers: %v", ErrLedgerUnavailable, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: getActiveUsers: unexpected output", ErrLedgerUnavailable)
	}
	addrs := *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address)

	entries := make([]*domain.LedgerEntry, len(addrs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, addr := range addrs {
		g.Go(func() error {
			e, err := c.user(gctx, addr)
			if err != nil {
				return err
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([]domain.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		if e != nil {
			result = append(result, *e)
		}
	}
	return result, nil
}

// user reads one record. Returns nil for records that should not be listed.
func (c *Contract) user(ctx context.Context, addr common.Address) (*domain.LedgerEntry, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, "users", addr); err != nil {
		return nil, fmt.Errorf("%w: users(%s): %v", ErrLedgerUnavailable, addr.Hex(), err)
	}
	if len(out) != 4 {
		return nil, fmt.Errorf("%w: users(%s): unexpected output", ErrLedgerUnavailable, addr.Hex())
	}

	name := *abi.ConvertType(out[0], new(string)).(*string)
	nftCount := *abi.ConvertType(out[1], new(*big.Int)).(**big.Int)
	activity := *abi.ConvertType(out[2], new(*big.Int)).(**big.Int)
	active := *abi.ConvertType(out[3], new(bool)).(*bool)

	address := strings.ToLower(addr.Hex())
	if !active {
		return nil, nil
	}
	if !fitsInt(nftCount) || !fitsInt(activity) {
		c.logger.Warn().Str("address", address).Msg("ledger record out of range, skipping")
		return nil, nil
	}

	return &domain.LedgerEntry{
		Address:       address,
		Name:          name,
		NFTCount:      int(nftCount.Int64()),
		ActivityScore: int(activity.Int64()),
	}, nil
}

func fitsInt(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.IsInt64() && v.Int64() <= int64(^uint32(0)>>1)
}

// AddParticipant registers address with name.
func (c *Contract) AddParticipant(ctx context.Context, address, name string) error {
	if c.auth == nil {
		return ErrReadOnly
	}
	addr := common.HexToAddress(address)
	existing, err := c.user(ctx, addr)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s already registered", storage.ErrDuplicateKey, existing.Address)
	}
	return c.transact(ctx, "addUser", addr, name)
}

// UpdateParticipant records new counts for address.
func (c *Contract) UpdateParticipant(ctx context.Context, address string, nftCount, activityScore int) error {
	return c.transact(ctx, "updateUser", common.HexToAddress(address), big.NewInt(int64(nftCount)), big.NewInt(int64(activityScore)))
}

// RemoveParticipant deactivates address.
func (c *Contract) RemoveParticipant(ctx context.Context, address string) error {
	return c.transact(ctx, "removeUser", common.HexToAddress(address))
}

// transact sends a transaction and waits until it is mined.
func (c *Contract) transact(ctx context.Context, method string, args ...interface{}) error {
	if c.auth == nil {
		return ErrReadOnly
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	opts := *c.auth
	opts.Context = ctx

	tx, err := c.bound.Transact(&opts, method, args...)
	if err != nil {
		if strings.Contains(err.Error(), "execution reverted") {
			return fmt.Errorf("%w: %s: %v", ErrWriteRejected, method, err)
		}
		return fmt.Errorf("%w: %s: %v", ErrLedgerUnavailable, method, err)
	}

	wctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(wctx, c.backend, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s: tx %s not mined within %s", ErrLedgerUnavailable, method, tx.Hash().Hex(), c.confirmTimeout)
		}
		return fmt.Errorf("%w: %s: wait mined: %v", ErrLedgerUnavailable, method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s: tx %s reverted", ErrWriteRejected, method, tx.Hash().Hex())
	}

	c.logger.Info().
		Str("method", method).
		Str("tx", tx.Hash().Hex()).
		Uint64("block", receipt.BlockNumber.Uint64()).
		Msg("ledger write confirmed")
	return nil
}
