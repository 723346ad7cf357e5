package pytest

import "github.com/specvital/pyadapter/pkg/domain"

// collector is a pytest node class as printed by --collect-only.
type collector int

const (
	collectorUnknown collector = iota
	collectorPackage
	collectorDir
	collectorModule
	collectorClass
	collectorInstance
	collectorFunction
)

var collectors = map[string]collector{
	"Package":          collectorPackage,
	"Dir":              collectorDir,
	"Module":           collectorModule,
	"DoctestModule":    collectorModule,
	"DoctestTextfile":  collectorModule,
	"Class":            collectorClass,
	"UnitTestCase":     collectorClass,
	"DescribeBlock":    collectorClass,
	"Instance":         collectorInstance,
	"Function":         collectorFunction,
	"TestCaseFunction": collectorFunction,
	"DoctestItem":      collectorFunction,
}

func parseCollector(name string) collector {
	return collectors[name]
}

// role is what a collector becomes in the output tree.
type role int

const (
	// roleDirectory: suite without a file, id is an absolute directory.
	roleDirectory role = iota
	// roleFile: suite carrying the resolved file, id is the absolute path.
	roleFile
	// roleGroup: suite below a file, id joined with "::".
	roleGroup
	// roleTransparent: no node, children are spliced into the parent.
	roleTransparent
	// roleTest: leaf.
	roleTest
)

// roleOf maps a collector to its output role. Unknown collectors are
// suites when they contain anything and leaves otherwise.
func roleOf(c collector, hasChildren bool) role {
	switch c {
	case collectorPackage, collectorDir:
		return roleDirectory
	case collectorModule:
		return roleFile
	case collectorClass:
		return roleGroup
	case collectorInstance:
		return roleTransparent
	case collectorFunction:
		return roleTest
	case collectorUnknown:
		if hasChildren {
			return roleGroup
		}
		return roleTest
	default:
		panic("pytest: unmapped collector")
	}
}

func (c collector) nodeKind() domain.NodeKind {
	switch c {
	case collectorPackage, collectorDir:
		return domain.KindPackage
	case collectorModule:
		return domain.KindModule
	case collectorClass, collectorUnknown:
		return domain.KindClass
	default:
		return domain.KindFunction
	}
}
