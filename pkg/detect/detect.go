// Package detect guesses the test framework of a workspace from its
// configuration files.
package detect

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/specvital/pyadapter/pkg/domain"
)

// Result names the detected framework and the file that decided it.
// ConfigPath is empty for the unittest fallback.
type Result struct {
	Framework  domain.Framework
	ConfigPath string
	Reason     string
}

// IsFallback reports whether no configuration file pointed to pytest.
func (r Result) IsFallback() bool {
	return r.ConfigPath == ""
}

type configMatcher struct {
	file   string
	reason string
	// section must occur in the file; nil means its presence is enough.
	section *regexp.Regexp
}

// Checked in order; the first match wins.
var pytestMatchers = []configMatcher{
	{file: "pytest.ini", reason: "pytest.ini present"},
	{file: "pyproject.toml", reason: "pyproject.toml contains [tool.pytest] section", section: regexp.MustCompile(`(?m)^\[tool\.pytest`)},
	{file: "tox.ini", reason: "tox.ini contains [pytest] section", section: regexp.MustCompile(`(?m)^\[pytest\]`)},
	{file: "setup.cfg", reason: "setup.cfg contains [tool:pytest] section", section: regexp.MustCompile(`(?m)^\[tool:pytest\]`)},
	{file: "conftest.py", reason: "conftest.py present"},
}

// Framework inspects the top level of workspace. Unreadable files count as
// absent.
func Framework(workspace string) Result {
	for _, m := range pytestMatchers {
		path := filepath.Join(workspace, m.file)
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if m.section != nil && !m.section.Match(content) {
			continue
		}
		return Result{Framework: domain.FrameworkPytest, ConfigPath: path, Reason: m.reason}
	}
	return Result{Framework: domain.FrameworkUnittest, Reason: "no pytest configuration found"}
}
