package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRepositoryContextsRespectBoundaries(t *testing.T) {
	chdir(t, "..")
	require.Empty(t, collectViolations("contexts"))
}

func TestDomainImportOfAdapterIsReported(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "contexts", "governance", "voting-ledger", "domain", "entities")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	source := `package entities

import (
	_ "ballotbox/contexts/governance/voting-ledger/adapters/memory"
	_ "github.com/moznion/go-optional"
)
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.go"), []byte(source), 0o600))

	chdir(t, root)
	violations := collectViolations("contexts")
	require.Len(t, violations, 2)
	rules := []string{violations[0].Rule, violations[1].Rule}
	require.Contains(t, rules, "domain must not import adapters")
	require.Contains(t, rules, "domain import is outside explicit allowlist")
}

func TestPortsMayNotReachIntoApplication(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "contexts", "governance", "voting-ledger", "ports")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	source := `package ports

import (
	_ "ballotbox/contexts/governance/voting-ledger/application/commands"
	_ "ballotbox/contexts/governance/voting-ledger/domain/entities"
	_ "ballotbox/contracts/gen/events/v1"
	_ "ballotbox/contexts/governance/other-service/domain"
)
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ports.go"), []byte(source), 0o600))
	chdir(t, root)

	var rules []string
	for _, v := range collectViolations("contexts") {
		rules = append(rules, v.Import+": "+v.Rule)
	}
	require.ElementsMatch(t, []string{
		"ballotbox/contexts/governance/voting-ledger/application/commands: ports must not import application",
		"ballotbox/contexts/governance/voting-ledger/application/commands: ports import is outside explicit allowlist",
		"ballotbox/contexts/governance/other-service/domain: cross-module imports are forbidden",
		"ballotbox/contexts/governance/other-service/domain: ports import is outside explicit allowlist",
	}, rules)
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
