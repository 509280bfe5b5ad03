package services

import (
	"math/big"
	"testing"
	"time"

	"ballotbox/contexts/governance/voting-ledger/domain/entities"
	domainerrors "ballotbox/contexts/governance/voting-ledger/domain/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closedLedger(t *testing.T, mode entities.SelectionMode, tally []uint64) entities.Ledger {
	t.Helper()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ledger, err := entities.NewLedger("ledger-1", "vote", "", len(tally)-1, mode, now, now.Add(-time.Hour))
	require.NoError(t, err)
	voter := 0
	for option := 1; option < len(tally); option++ {
		for i := uint64(0); i < tally[option]; i++ {
			voter++
			require.NoError(t, ledger.Cast("p"+big.NewInt(int64(voter)).String(), option))
		}
	}
	require.NoError(t, ledger.Close(now))
	return ledger
}

func TestSelectDeterministicPicksPluralityLowestOnTie(t *testing.T) {
	cases := []struct {
		tally []uint64
		want  int
	}{
		{tally: []uint64{0, 1, 3, 2}, want: 2},
		{tally: []uint64{0, 2, 2, 1}, want: 1},
		{tally: []uint64{0, 0, 4, 4}, want: 2},
		{tally: []uint64{0, 0, 0, 0}, want: 1},
	}
	for _, tc := range cases {
		ledger := closedLedger(t, entities.SelectionModeDeterministic, tc.tally)
		first, err := SelectDeterministic(ledger)
		require.NoError(t, err)
		second, err := SelectDeterministic(ledger)
		require.NoError(t, err)
		assert.Equal(t, tc.want, first)
		assert.Equal(t, first, second)
	}
}

func TestSelectRequiresClosedLedger(t *testing.T) {
	now := time.Now().UTC()
	ledger, err := entities.NewLedger("l", "vote", "", 3, entities.SelectionModeDeterministic, now.Add(time.Hour), now)
	require.NoError(t, err)
	_, err = SelectDeterministic(ledger)
	require.ErrorIs(t, err, domainerrors.ErrNotClosed)
	_, err = Select(ledger, big.NewInt(1))
	require.ErrorIs(t, err, domainerrors.ErrNotClosed)
}

func TestSelectWeightedFollowsVoteShare(t *testing.T) {
	tally := []uint64{0, 5, 3}
	wins := map[int]int{}
	for r := int64(0); r < 8000; r++ {
		option, err := SelectWeighted(tally, big.NewInt(r))
		require.NoError(t, err)
		wins[option]++
	}
	assert.Equal(t, 5000, wins[1])
	assert.Equal(t, 3000, wins[2])
}

func TestSelectWeightedBoundaries(t *testing.T) {
	tally := []uint64{0, 5, 3}
	cases := map[int64]int{0: 1, 4: 1, 5: 2, 7: 2, 8: 1, 13: 2}
	for r, want := range cases {
		option, err := SelectWeighted(tally, big.NewInt(r))
		require.NoError(t, err)
		assert.Equal(t, want, option, "r=%d", r)
	}

	huge, ok := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	require.True(t, ok)
	option, err := SelectWeighted(tally, huge)
	require.NoError(t, err)
	assert.Contains(t, []int{1, 2}, option)

	option, err = SelectWeighted([]uint64{0, 0, 4, 0}, big.NewInt(99))
	require.NoError(t, err)
	assert.Equal(t, 2, option)
}

func TestSelectWeightedRejectsBadInput(t *testing.T) {
	_, err := SelectWeighted([]uint64{0, 0, 0}, big.NewInt(7))
	require.ErrorIs(t, err, domainerrors.ErrNoVotesCast)
	_, err = SelectWeighted([]uint64{0, 1, 0}, big.NewInt(-1))
	require.ErrorIs(t, err, domainerrors.ErrInvalidRandomValue)
	_, err = SelectWeighted([]uint64{0, 1, 0}, nil)
	require.ErrorIs(t, err, domainerrors.ErrInvalidRandomValue)
}

func TestSelectDispatchesOnMode(t *testing.T) {
	weighted := closedLedger(t, entities.SelectionModeWeightedLottery, []uint64{0, 1, 1})
	option, err := Select(weighted, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, 2, option)

	empty := closedLedger(t, entities.SelectionModeWeightedLottery, []uint64{0, 0, 0})
	_, err = Select(empty, big.NewInt(1))
	require.ErrorIs(t, err, domainerrors.ErrNoVotesCast)

	deterministic := closedLedger(t, entities.SelectionModeDeterministic, []uint64{0, 1, 2})
	option, err = Select(deterministic, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, option)
}
