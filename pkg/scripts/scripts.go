// Package scripts renders the Python programs executed by the runners.
//
// Both programs are compiled into the binary and parameterised at
// render time. The sentinel they print is ResultPrefix, the same constant the
// result parser matches on.
package scripts

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"text/template"
)

// ResultPrefix starts every result line printed in run mode:
//
//	<ResultPrefix>:<state>:<test id>:<base64 message>
const ResultPrefix = "TEST_EXECUTION_RESULT"

// Banners around the unittest discovery JSON block.
const (
	DiscoveredBegin = "==DISCOVERED TESTS BEGIN=="
	DiscoveredEnd   = "==DISCOVERED TESTS END=="
)

// Actions accepted as the first script argument.
const (
	ActionDiscover = "discover"
	ActionRun      = "run"
)

var (
	//go:embed unittest.py.tmpl
	unittestSource string
	//go:embed pytest.py.tmpl
	pytestSource string

	funcs = template.FuncMap{"py": pyString}

	unittestTemplate = template.Must(template.New("unittest").Funcs(funcs).Parse(unittestSource))
	pytestTemplate   = template.Must(template.New("pytest").Funcs(funcs).Parse(pytestSource))
)

// UnittestParams are the render-time inputs of the unittest program.
type UnittestParams struct {
	StartDirectory string
	Pattern        string
}

type unittestData struct {
	UnittestParams
	ResultPrefix    string
	DiscoveredBegin string
	DiscoveredEnd   string
}

type pytestData struct {
	ResultPrefix string
}

// Unittest renders the unittest discovery/run program.
func Unittest(p UnittestParams) (string, error) {
	return render(unittestTemplate, unittestData{
		UnittestParams:  p,
		ResultPrefix:    ResultPrefix,
		DiscoveredBegin: DiscoveredBegin,
		DiscoveredEnd:   DiscoveredEnd,
	})
}

// Pytest renders the pytest discovery/run program.
func Pytest() (string, error) {
	return render(pytestTemplate, pytestData{ResultPrefix: ResultPrefix})
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s script: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// pyString quotes s as a JSON string, which Python also parses as a str literal.
func pyString(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
