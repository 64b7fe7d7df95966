package multicall

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const erc20ABI = `[{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"payable":false,"stateMutability":"view","type":"function"}]`

// fakeCaller decodes the batch and answers each call from a canned list.
type fakeCaller struct {
	t       *testing.T
	to      common.Address
	results []Result
	err     error
	seen    int
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	require.NotNil(f.t, msg.To)
	assert.Equal(f.t, f.to, *msg.To)

	parsed, err := ABI()
	require.NoError(f.t, err)
	m := parsed.Methods["tryAggregate"]
	assert.Equal(f.t, m.ID, msg.Data[:4])
	in, err := m.Inputs.Unpack(msg.Data[4:])
	require.NoError(f.t, err)
	assert.Equal(f.t, false, in[0])
	calls := *abi.ConvertType(in[1], new([]Call)).(*[]Call)
	f.seen = len(calls)

	return m.Outputs.Pack(f.results)
}

func TestAggregate(t *testing.T) {
	erc20, err := abi.JSON(strings.NewReader(erc20ABI))
	require.NoError(t, err)
	callData, err := erc20.Pack("decimals")
	require.NoError(t, err)
	six, err := erc20.Methods["decimals"].Outputs.Pack(uint8(6))
	require.NoError(t, err)

	mcAddr := common.HexToAddress("0x5ba1e12693dc8f9c48aad8770482f4739beed696")
	fc := &fakeCaller{t: t, to: mcAddr, results: []Result{
		{Success: true, ReturnData: six},
		{Success: false, ReturnData: []byte{}},
	}}
	mc, err := New(fc, mcAddr)
	require.NoError(t, err)

	res, err := mc.Aggregate(context.Background(), []Call{
		{Target: common.HexToAddress("0x01"), CallData: callData},
		{Target: common.HexToAddress("0x02"), CallData: callData},
	})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, 2, fc.seen)
	assert.True(t, res[0].Success)
	assert.False(t, res[1].Success)

	outs, err := erc20.Methods["decimals"].Outputs.Unpack(res[0].ReturnData)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), outs[0])
}

func TestAggregate_Empty(t *testing.T) {
	mc, err := New(&fakeCaller{t: t}, common.Address{})
	require.NoError(t, err)
	res, err := mc.Aggregate(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestAggregate_CallError(t *testing.T) {
	boom := errors.New("rpc down")
	mc, err := New(&fakeCaller{t: t, err: boom}, common.Address{})
	require.NoError(t, err)
	_, err = mc.Aggregate(context.Background(), []Call{{Target: common.HexToAddress("0x01")}})
	assert.ErrorIs(t, err, boom)
}

func TestAggregate_LengthMismatch(t *testing.T) {
	mcAddr := common.HexToAddress("0x01")
	fc := &fakeCaller{t: t, to: mcAddr, results: []Result{{Success: true, ReturnData: []byte{1}}}}
	mc, err := New(fc, mcAddr)
	require.NoError(t, err)
	_, err = mc.Aggregate(context.Background(), []Call{{Target: mcAddr}, {Target: mcAddr}})
	assert.ErrorContains(t, err, "1 results for 2 calls")
}
