// Package unittest turns the output of the unittest discovery program into
// suite trees. Test ids are dotted paths: module[.package...].Class.method.
package unittest

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/specvital/pyadapter/pkg/domain"
	"github.com/specvital/pyadapter/pkg/parser/results"
	"github.com/specvital/pyadapter/pkg/scripts"
)

// Separator joins the segments of a unittest id.
const Separator = "."

type discovery struct {
	Tests []struct {
		ID string `json:"id"`
	} `json:"tests"`
	Errors []struct {
		Class   string `json:"class"`
		Message string `json:"message"`
	} `json:"errors"`
}

// ParseSuites builds one suite per test class, in encounter order.
//
// startDir is the resolved discovery start directory; module files are
// located relative to it. Output without a well-formed discovery block
// yields no suites.
func ParseSuites(output, startDir string) []*domain.Node {
	block, ok := discoveryBlock(output)
	if !ok {
		return nil
	}

	var d discovery
	if err := json.Unmarshal([]byte(block), &d); err != nil {
		return nil
	}

	b := newBuilder(startDir)
	for _, t := range d.Tests {
		b.addTest(t.ID)
	}
	for _, e := range d.Errors {
		b.addError(e.Class, e.Message)
	}
	return b.suites
}

// ParseStates parses run-mode result lines.
func ParseStates(output string) []domain.TestEvent {
	return results.ParseStates(output)
}

// discoveryBlock returns the text between the last pair of discovery banners.
func discoveryBlock(output string) (string, bool) {
	begin := strings.LastIndex(output, scripts.DiscoveredBegin)
	if begin < 0 {
		return "", false
	}
	rest := output[begin+len(scripts.DiscoveredBegin):]
	end := strings.Index(rest, scripts.DiscoveredEnd)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

type builder struct {
	startDir string
	suites   []*domain.Node
	byID     map[string]*domain.Node
}

func newBuilder(startDir string) *builder {
	return &builder{
		startDir: startDir,
		byID:     make(map[string]*domain.Node),
	}
}

func (b *builder) addTest(id string) {
	cut := strings.LastIndex(id, Separator)
	if cut <= 0 || cut == len(id)-1 {
		return
	}
	suiteID, name := id[:cut], id[cut+1:]

	suite := b.suite(suiteID, b.moduleFile(suiteID))
	if suite.Child(id) != nil {
		return
	}
	suite.Append(domain.NewTest(id, name))
}

// addError records a class or module that failed to load. The placeholder
// leaf shares its id with the enclosing suite so that running either one
// reaches the same unittest name.
func (b *builder) addError(name, message string) {
	if name == "" {
		return
	}
	suite := b.suite(name, "")
	if suite.Child(name) != nil {
		return
	}
	suite.Append(domain.NewErroredTest(name, "Discovery error in "+lastSegment(name), message))
}

func (b *builder) suite(id, file string) *domain.Node {
	if s, ok := b.byID[id]; ok {
		return s
	}
	s := domain.NewSuite(id, lastSegment(id), file, domain.KindClass)
	b.byID[id] = s
	b.suites = append(b.suites, s)
	return s
}

// moduleFile maps "pkg.mod.Class" to <startDir>/pkg/mod.py. A suite id with a
// single segment has no module part and therefore no file.
func (b *builder) moduleFile(suiteID string) string {
	segments := strings.Split(suiteID, Separator)
	if len(segments) < 2 {
		return ""
	}
	parts := append([]string{b.startDir}, segments[:len(segments)-1]...)
	return filepath.Join(parts...) + ".py"
}

func lastSegment(id string) string {
	if i := strings.LastIndex(id, Separator); i >= 0 {
		return id[i+1:]
	}
	return id
}
