package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castboard/internal/storage"
)

type chainUser struct {
	name     string
	nfts     *big.Int
	activity *big.Int
	active   bool
}

// newChainServer serves eth_call for the registry from in-memory state.
func newChainServer(t *testing.T, active []common.Address, users map[common.Address]chainUser) *httptest.Server {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(CastBoardABI))
	require.NoError(t, err)

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}

		reply := func(result interface{}, rpcErr string) {
			resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
			if rpcErr != "" {
				resp["error"] = map[string]interface{}{"code": -32000, "message": rpcErr}
			} else {
				resp["result"] = result
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)
		}

		if req.Method != "eth_call" {
			reply(nil, "unsupported method "+req.Method)
			return
		}

		var call struct {
			Input hexutil.Bytes `json:"input"`
			Data  hexutil.Bytes `json:"data"`
		}
		if err := json.Unmarshal(req.Params[0], &call); err != nil {
			t.Errorf("decode call: %v", err)
			return
		}
		data := call.Input
		if len(data) == 0 {
			data = call.Data
		}

		method, err := parsed.MethodById(data[:4])
		if err != nil {
			reply(nil, err.Error())
			return
		}

		var out []byte
		switch method.Name {
		case "getActiveUsers":
			out, err = method.Outputs.Pack(active)
		case "users":
			args, uerr := method.Inputs.Unpack(data[4:])
			if uerr != nil {
				reply(nil, uerr.Error())
				return
			}
			u, ok := users[args[0].(common.Address)]
			if !ok {
				u = chainUser{nfts: big.NewInt(0), activity: big.NewInt(0)}
			}
			out, err = method.Outputs.Pack(u.name, u.nfts, u.activity, u.active)
		default:
			reply(nil, "unexpected call "+method.Name)
			return
		}
		if err != nil {
			t.Errorf("pack %s: %v", method.Name, err)
			return
		}
		reply(hexutil.Encode(out), "")
	}))
}

func dialTestContract(t *testing.T, server *httptest.Server, opts ...ContractOption) *Contract {
	t.Helper()
	client, err := ethclient.DialContext(context.Background(), server.URL)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	c, err := NewContract(common.HexToAddress("0x00000000000000000000000000000000000000cb"), client, append([]ContractOption{WithReadConcurrency(2)}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestContract_ActiveParticipants(t *testing.T) {
	alice := common.HexToAddress("0xAbC0000000000000000000000000000000000123")
	bob := common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	gone := common.HexToAddress("0x0000000000000000000000000000000000000d0d")
	huge := common.HexToAddress("0x0000000000000000000000000000000000000e0e")

	overflow := new(big.Int).Lsh(big.NewInt(1), 200)
	server := newChainServer(t,
		[]common.Address{alice, bob, gone, huge},
		map[common.Address]chainUser{
			alice: {name: "alice", nfts: big.NewInt(3), activity: big.NewInt(12), active: true},
			bob:   {name: "", nfts: big.NewInt(0), activity: big.NewInt(4), active: true},
			gone:  {name: "gone", nfts: big.NewInt(1), activity: big.NewInt(1), active: false},
			huge:  {name: "huge", nfts: overflow, activity: big.NewInt(1), active: true},
		})
	defer server.Close()

	c := dialTestContract(t, server)
	entries, err := c.ActiveParticipants(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "0xabc0000000000000000000000000000000000123", entries[0].Address)
	assert.Equal(t, "alice", entries[0].Name)
	assert.Equal(t, 3, entries[0].NFTCount)
	assert.Equal(t, 12, entries[0].ActivityScore)

	assert.Equal(t, "0x0000000000000000000000000000000000000b0b", entries[1].Address)
	assert.Equal(t, entries[1].Address, entries[1].DisplayName())
}

func TestContract_ActiveParticipants_Empty(t *testing.T) {
	server := newChainServer(t, []common.Address{}, nil)
	defer server.Close()

	c := dialTestContract(t, server)
	entries, err := c.ActiveParticipants(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestContract_ActiveParticipants_RPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := dialTestContract(t, server)
	_, err := c.ActiveParticipants(context.Background())
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
}

func TestContract_WritesRequireSigner(t *testing.T) {
	server := newChainServer(t, nil, nil)
	defer server.Close()

	c := dialTestContract(t, server)
	ctx := context.Background()

	assert.True(t, errors.Is(c.AddParticipant(ctx, "0x0000000000000000000000000000000000000001", "x"), ErrReadOnly))
	assert.True(t, errors.Is(c.UpdateParticipant(ctx, "0x0000000000000000000000000000000000000001", 1, 1), ErrReadOnly))
	assert.True(t, errors.Is(c.RemoveParticipant(ctx, "0x0000000000000000000000000000000000000001"), ErrReadOnly))
}

func TestContract_AddParticipantAlreadyActive(t *testing.T) {
	alice := common.HexToAddress("0xAbC0000000000000000000000000000000000123")
	server := newChainServer(t, []common.Address{alice}, map[common.Address]chainUser{
		alice: {name: "alice", nfts: big.NewInt(3), activity: big.NewInt(12), active: true},
	})
	defer server.Close()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	c := dialTestContract(t, server, WithSigner(key, big.NewInt(1)))

	err = c.AddParticipant(context.Background(), "0xabc0000000000000000000000000000000000123", "alice")
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	assert.NotErrorIs(t, err, ErrWriteRejected)
}

func TestDialContract_InvalidAddress(t *testing.T) {
	_, err := DialContract(context.Background(), "http://127.0.0.1:1", "not-an-address", "", 1)
	assert.Error(t, err)
}
