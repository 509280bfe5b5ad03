package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrintJSONIndents(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printJSON(&out, map[string]int{"executed": 2}))
	require.Equal(t, "{\n  \"executed\": 2\n}\n", out.String())
}

func TestCommandArgs(t *testing.T) {
	require.Error(t, settleCommand().Args(settleCommand(), nil))
	require.NoError(t, settleCommand().Args(settleCommand(), []string{"ledger-1"}))
	require.Error(t, sweepCommand().Args(sweepCommand(), []string{"extra"}))
	require.Error(t, ledgersCommand().Args(ledgersCommand(), []string{"extra"}))
	require.NoError(t, ledgersCommand().Args(ledgersCommand(), nil))
}
