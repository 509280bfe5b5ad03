package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const modulePath = "ballotbox"

// layerPolicy lists what a layer of a bounded context may import besides the
// standard library. Paths starting with "./" are relative to the context.
type layerPolicy struct {
	name    string
	forbid  []string
	allowed []string
}

var policies = map[string]layerPolicy{
	"domain": {
		name:    "domain",
		forbid:  []string{"/adapters", "/application", "/ports"},
		allowed: []string{"./domain", "github.com/moznion/go-optional"},
	},
	"ports": {
		name:    "ports",
		forbid:  []string{"/adapters", "/application"},
		allowed: []string{"./domain", modulePath + "/contracts"},
	},
	"application": {
		name:   "application",
		forbid: []string{"/adapters"},
		allowed: []string{
			"./application",
			"./domain",
			"./ports",
			modulePath + "/contracts",
			"github.com/go-playground/validator/v10",
			"github.com/moznion/go-optional",
		},
	},
}

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

func main() {
	violations := collectViolations("contexts")
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}
	slices.SortFunc(violations, func(a, b violation) int {
		if c := strings.Compare(a.File, b.File); c != 0 {
			return c
		}
		if a.Line != b.Line {
			return a.Line - b.Line
		}
		return strings.Compare(a.Import, b.Import)
	})

	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

// collectViolations walks contexts/<area>/<service>/<layer>/... below root.
// Test files are skipped; they may reach across layers to build fixtures.
func collectViolations(root string) []violation {
	var violations []violation
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		normalized := filepath.ToSlash(path)
		parts := strings.Split(normalized, "/")
		if len(parts) < 4 || parts[0] != "contexts" {
			return nil
		}
		contextPrefix := fmt.Sprintf("%s/contexts/%s/%s", modulePath, parts[1], parts[2])
		violations = append(violations, checkFile(path, normalized, parts[3], contextPrefix)...)
		return nil
	})
	return violations
}

func checkFile(path string, normalized string, layer string, contextPrefix string) []violation {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: normalized, Line: 1, Rule: "file must parse"}}
	}

	policy, constrained := policies[layer]
	var violations []violation
	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, `"`)
		report := func(rule string) {
			violations = append(violations, violation{
				File:   normalized,
				Line:   fset.Position(imp.Pos()).Line,
				Import: importPath,
				Rule:   rule,
			})
		}

		if strings.HasPrefix(importPath, modulePath+"/contexts/") && !hasPrefix(importPath, contextPrefix) {
			report("cross-module imports are forbidden")
		}
		if !constrained {
			continue
		}
		for _, fragment := range policy.forbid {
			if strings.HasPrefix(importPath, contextPrefix) && strings.Contains(strings.TrimPrefix(importPath, contextPrefix), fragment) {
				report(fmt.Sprintf("%s must not import %s", policy.name, strings.Trim(fragment, "/")))
			}
		}
		if strings.HasPrefix(importPath, modulePath+"/internal/") {
			report(policy.name + " must not import runtime infrastructure")
		}
		if !isStdlib(importPath) && !policy.allows(importPath, contextPrefix) {
			report(policy.name + " import is outside explicit allowlist")
		}
	}
	return violations
}

func (p layerPolicy) allows(importPath string, contextPrefix string) bool {
	for _, allowed := range p.allowed {
		if rest, ok := strings.CutPrefix(allowed, "./"); ok {
			allowed = contextPrefix + "/" + rest
		}
		if hasPrefix(importPath, allowed) {
			return true
		}
	}
	return false
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isStdlib(importPath string) bool {
	if hasPrefix(importPath, modulePath) {
		return false
	}
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".")
}
