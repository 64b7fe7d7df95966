package multicall

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Multicall2.tryAggregate: failed sub-calls come back with Success=false
// instead of reverting the whole batch.
const multicallABI = `[
{
    "inputs": [
        {"name": "requireSuccess", "type": "bool"},
        {
            "components": [
                {"name": "target", "type": "address"},
                {"name": "callData", "type": "bytes"}
            ],
            "name": "calls",
            "type": "tuple[]"
        }
    ],
    "name": "tryAggregate",
    "outputs": [
        {
            "components": [
                {"name": "success", "type": "bool"},
                {"name": "returnData", "type": "bytes"}
            ],
            "name": "returnData",
            "type": "tuple[]"
        }
    ],
    "stateMutability": "nonpayable",
    "type": "function"
}
]`

type IClient interface {
	Aggregate(ctx context.Context, calls []Call) ([]Result, error)
}

// Caller is the subset of ethclient.Client used here.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

var _ Caller = (*ethclient.Client)(nil)

type Client struct {
	c    Caller
	addr common.Address
	abi  abi.ABI
}

func New(c Caller, multicallAddr common.Address) (*Client, error) {
	parsedABI, err := ABI()
	if err != nil {
		return nil, err
	}
	return &Client{c: c, addr: multicallAddr, abi: parsedABI}, nil
}

func ABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(multicallABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("bad abi: %w", err)
	}
	return parsed, nil
}

type Call struct {
	Target   common.Address
	CallData []byte
}

type Result struct {
	Success    bool
	ReturnData []byte
}

// Aggregate runs all calls in one eth_call. Results are index-aligned with
// calls.
func (c *Client) Aggregate(ctx context.Context, calls []Call) ([]Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	payload, err := c.abi.Pack("tryAggregate", false, calls)
	if err != nil {
		return nil, fmt.Errorf("pack tryAggregate: %w", err)
	}

	res, err := c.c.CallContract(ctx, ethereum.CallMsg{To: &c.addr, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("call tryAggregate: %w", err)
	}

	outs, err := c.abi.Methods["tryAggregate"].Outputs.Unpack(res)
	if err != nil || len(outs) == 0 {
		return nil, fmt.Errorf("unpack tryAggregate: %v", err)
	}
	out := *abi.ConvertType(outs[0], new([]Result)).(*[]Result)
	if len(out) != len(calls) {
		return nil, fmt.Errorf("tryAggregate: %d results for %d calls", len(out), len(calls))
	}
	return out, nil
}
