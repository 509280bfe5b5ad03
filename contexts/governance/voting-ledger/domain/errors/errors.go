package errors

import "errors"

var (
	ErrVoteClosed             = errors.New("voting is closed")
	ErrInvalidOption          = errors.New("invalid option")
	ErrAlreadyVoted           = errors.New("principal has already voted")
	ErrNoExistingVote         = errors.New("principal has no recorded vote")
	ErrSameOption             = errors.New("new option equals the recorded option")
	ErrNotClosed              = errors.New("ledger is not closed")
	ErrNoVotesCast            = errors.New("no votes cast")
	ErrRequestAlreadyPending  = errors.New("randomness request already pending")
	ErrUnknownOrStaleRequest  = errors.New("unknown or stale randomness request")
	ErrNotDueYet              = errors.New("deadline has not passed yet")
	ErrAlreadyExecuted        = errors.New("schedule entry already executed")
	ErrInvalidLedgerInput     = errors.New("invalid ledger input")
	ErrLedgerNotFound         = errors.New("ledger not found")
	ErrAlreadyScheduled       = errors.New("ledger is already scheduled")
	ErrScheduleEntryNotFound  = errors.New("schedule entry not found")
	ErrRightNotHeld           = errors.New("principal does not hold the voting right")
	ErrAlreadyHoldsRight      = errors.New("principal already holds the voting right")
	ErrInvalidTransfer        = errors.New("invalid rights transfer")
	ErrInvalidRandomValue     = errors.New("invalid random value")
	ErrRandomnessNotAvailable = errors.New("ledger is not awaiting randomness")
	ErrConflict               = errors.New("ledger conflict")
)
