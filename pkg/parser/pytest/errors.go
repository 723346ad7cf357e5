package pytest

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/specvital/pyadapter/pkg/domain"
)

var (
	errorsBannerPattern = regexp.MustCompile(`^=+ ERRORS =+$`)
	errorHeaderPattern  = regexp.MustCompile(`^_+ ERROR collecting (.+?) _+$`)
)

type collectionError struct {
	path    string
	message string
}

// splitErrors cuts the output at the ERRORS banner.
func splitErrors(lines []string) (listing, errs []string) {
	for i, line := range lines {
		if errorsBannerPattern.MatchString(strings.TrimSpace(line)) {
			return lines[:i], lines[i+1:]
		}
	}
	return lines, nil
}

// parseErrors reads one block per "ERROR collecting <path>" header. A block
// ends at the next header or at any === or !!! banner.
func parseErrors(lines []string) []collectionError {
	var (
		errs []collectionError
		cur  *collectionError
		body []string
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.message = strings.TrimRight(strings.Join(body, "\n"), "\n ")
		errs = append(errs, *cur)
		cur, body = nil, nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if m := errorHeaderPattern.FindStringSubmatch(trimmed); m != nil {
			flush()
			cur = &collectionError{path: strings.TrimSpace(m[1])}
			body = []string{line}
			continue
		}
		if strings.HasPrefix(trimmed, "===") || strings.HasPrefix(trimmed, "!!!") {
			flush()
			continue
		}
		if cur != nil {
			body = append(body, line)
		}
	}
	flush()
	return errs
}

// attachError adds a failing placeholder for e. It goes into the module suite
// already discovered for the file, or into a new top-level suite.
func (p *parser) attachError(top *domain.Node, e collectionError) {
	file := p.resolve(e.path, "")
	name := filepath.Base(file)
	leaf := domain.NewErroredTest(file, "Discovery error in "+name, e.message)

	var module *domain.Node
	domain.Walk(top, func(n *domain.Node) bool {
		if module != nil {
			return false
		}
		if n.IsSuite() && n.ID == file {
			module = n
			return false
		}
		return n.IsSuite()
	})

	if module == nil {
		module = domain.NewSuite(file, name, file, domain.KindModule)
		top.Append(module)
	}
	if module.Child(file) == nil {
		module.Append(leaf)
	}
}
