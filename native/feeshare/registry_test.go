package feeshare

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"curvemarket/state"
	"curvemarket/storage"
)

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(state.NewKVStore(storage.NewMemDB()))
}

func TestValidateEntries(t *testing.T) {
	require.ErrorIs(t, ValidateEntries(nil), ErrEmptyShares)
	require.ErrorIs(t, ValidateEntries([]Entry{{Owner: addr(1), Percent: 0}}), ErrZeroPercent)
	require.ErrorIs(t, ValidateEntries([]Entry{{Owner: [20]byte{}, Percent: TotalPercent}}), ErrZeroOwner)
	require.ErrorIs(t, ValidateEntries([]Entry{{Owner: addr(1), Percent: TotalPercent - 1}}), ErrPercentSum)
	require.ErrorIs(t, ValidateEntries([]Entry{
		{Owner: addr(1), Percent: TotalPercent},
		{Owner: addr(2), Percent: 1},
	}), ErrPercentSum)
	require.NoError(t, ValidateEntries([]Entry{
		{Owner: addr(1), Percent: 10_000},
		{Owner: addr(2), Percent: 90_000},
	}))
}

func TestCreateAndShares(t *testing.T) {
	reg := newTestRegistry(t)
	entries := []Entry{
		{Owner: addr(1), Percent: 10_000},
		{Owner: addr(2), Percent: 90_000},
	}
	require.NoError(t, reg.Create("t1", entries))
	require.ErrorIs(t, reg.Create("t1", entries), ErrExists)

	loaded, err := reg.Shares("t1")
	require.NoError(t, err)
	require.Equal(t, entries, loaded)

	_, err = reg.Shares("ghost")
	require.ErrorIs(t, err, ErrUnknown)
}

func TestSetOwner(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Create("t1", []Entry{
		{Owner: addr(1), Percent: 40_000},
		{Owner: addr(2), Percent: 60_000},
	}))

	require.ErrorIs(t, reg.SetOwner("t1", 5, addr(9)), ErrIndexRange)
	require.ErrorIs(t, reg.SetOwner("t1", 0, [20]byte{}), ErrZeroOwner)
	require.NoError(t, reg.SetOwner("t1", 0, addr(9)))

	loaded, err := reg.Shares("t1")
	require.NoError(t, err)
	require.Equal(t, addr(9), loaded[0].Owner)
	require.Equal(t, uint64(40_000), loaded[0].Percent)
}

func TestSplitFeeExact(t *testing.T) {
	entries := []Entry{
		{Owner: addr(1), Percent: 10_000},
		{Owner: addr(2), Percent: 90_000},
	}
	amounts, err := SplitFee(entries, big.NewInt(1000))
	require.NoError(t, err)
	require.Zero(t, amounts[0].Cmp(big.NewInt(100)))
	require.Zero(t, amounts[1].Cmp(big.NewInt(900)))
}

func TestSplitFeeDustGoesToLastEntry(t *testing.T) {
	entries := []Entry{
		{Owner: addr(1), Percent: 33_333},
		{Owner: addr(2), Percent: 33_333},
		{Owner: addr(3), Percent: 33_334},
	}
	fee := big.NewInt(100)
	amounts, err := SplitFee(entries, fee)
	require.NoError(t, err)

	total := big.NewInt(0)
	for _, amount := range amounts {
		total.Add(total, amount)
	}
	// The fan-out must sum to exactly the input fee, with the dust on the
	// last entry.
	require.Zero(t, total.Cmp(fee))
	require.Zero(t, amounts[0].Cmp(big.NewInt(33)))
	require.Zero(t, amounts[1].Cmp(big.NewInt(33)))
	require.Zero(t, amounts[2].Cmp(big.NewInt(34)))
}

func TestSplitFeeZero(t *testing.T) {
	entries := []Entry{{Owner: addr(1), Percent: TotalPercent}}
	amounts, err := SplitFee(entries, big.NewInt(0))
	require.NoError(t, err)
	require.Zero(t, amounts[0].Sign())
}
