package postgresadapter

import (
	"context"
	"time"

	"ballotbox/contexts/governance/voting-ledger/ports"

	"github.com/google/uuid"
)

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

var (
	_ ports.Clock       = SystemClock{}
	_ ports.IDGenerator = UUIDGenerator{}
)
