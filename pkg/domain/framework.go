// Package domain defines the test tree and result types shared by the parsers and the adapter.
package domain

// Framework identifies the Python test runner that produced a tree.
type Framework string

// Supported runners.
const (
	FrameworkPytest   Framework = "pytest"
	FrameworkUnittest Framework = "unittest"
)
