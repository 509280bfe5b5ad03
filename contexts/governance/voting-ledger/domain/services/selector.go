package services

import (
	"math/big"

	"ballotbox/contexts/governance/voting-ledger/domain/entities"
	domainerrors "ballotbox/contexts/governance/voting-ledger/domain/errors"
)

// SelectDeterministic returns the plurality option of a closed ledger.
// Ties go to the lowest index.
func SelectDeterministic(ledger entities.Ledger) (int, error) {
	if ledger.IsOpen() {
		return 0, domainerrors.ErrNotClosed
	}
	return pluralityIndex(ledger.Tally), nil
}

// SelectWeighted draws an option with probability proportional to its share
// of the tally: target = r mod T, the first option whose running sum exceeds
// target wins.
func SelectWeighted(tally []uint64, r *big.Int) (int, error) {
	if r == nil || r.Sign() < 0 {
		return 0, domainerrors.ErrInvalidRandomValue
	}
	total := new(big.Int)
	for option := 1; option < len(tally); option++ {
		total.Add(total, new(big.Int).SetUint64(tally[option]))
	}
	if total.Sign() == 0 {
		return 0, domainerrors.ErrNoVotesCast
	}
	target := new(big.Int).Mod(r, total)
	running := new(big.Int)
	for option := 1; option < len(tally); option++ {
		running.Add(running, new(big.Int).SetUint64(tally[option]))
		if running.Cmp(target) > 0 {
			return option, nil
		}
	}
	// unreachable while target < total
	return 0, domainerrors.ErrNoVotesCast
}

// Select dispatches on the ledger's mode. r is ignored in deterministic mode.
func Select(ledger entities.Ledger, r *big.Int) (int, error) {
	if ledger.IsOpen() {
		return 0, domainerrors.ErrNotClosed
	}
	if ledger.Mode == entities.SelectionModeWeightedLottery {
		return SelectWeighted(ledger.Tally, r)
	}
	return SelectDeterministic(ledger)
}

func pluralityIndex(tally []uint64) int {
	winner := 1
	for option := 2; option < len(tally); option++ {
		if tally[option] > tally[winner] {
			winner = option
		}
	}
	return winner
}
