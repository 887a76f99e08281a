package kwstats

import (
	"strings"
)

// ReportFormat identifies the serialization of an execution report.
type ReportFormat string

const (
	FormatXML  ReportFormat = "xml"
	FormatJSON ReportFormat = "json"
)

// FixtureKind distinguishes setup from teardown fixtures.
type FixtureKind string

const (
	FixtureSetup    FixtureKind = "setup"
	FixtureTeardown FixtureKind = "teardown"
)

// Report is a parsed Robot Framework execution result. It is read-only once parsed.
type Report struct {
	// Source is the path the report was read from.
	Source string
	// Format is the serialization the report was read from.
	Format ReportFormat
	// Generator is the raw generator string, e.g. "Robot 7.0.1 (Python 3.12.1 on linux)".
	Generator string
	// RobotVersion is the semver normalized framework version, empty if unknown.
	RobotVersion string
	// Root is the top level suite.
	Root *Suite
}

// Node is one element of the report tree. It is implemented only by *Suite, *TestCase, *KeywordCall and *Fixture.
type Node interface {
	isNode()
}

// Suite is a test suite, containing tests and further suites.
type Suite struct {
	// Name is the suite name.
	Name string
	// LongName is the dot separated name path from the root suite.
	LongName string
	// Setup is the optional suite setup.
	Setup *Fixture
	// Teardown is the optional suite teardown.
	Teardown *Fixture
	// Suites lists child suites in document order.
	Suites []*Suite
	// Tests lists the test cases directly in this suite.
	Tests []*TestCase
	// Parent is nil for the root suite.
	Parent *Suite
}

// TestCase is a single test (or task) within a suite.
type TestCase struct {
	// Name is the test name.
	Name string
	// LongName is the suite long name joined with the test name.
	LongName string
	// Setup is the optional test setup.
	Setup *Fixture
	// Teardown is the optional test teardown.
	Teardown *Fixture
	// Body lists the top level keyword calls of the test.
	Body []*KeywordCall
	// Parent is the suite owning the test.
	Parent *Suite
}

// KeywordCall is one invocation of a keyword.
type KeywordCall struct {
	// Name is the keyword name without any library prefix. Case is significant.
	Name string
	// Library is the owning library or resource, empty for keywords defined in the suite file.
	Library string
	// Setup is the optional keyword setup.
	Setup *Fixture
	// Teardown is the optional keyword teardown.
	Teardown *Fixture
	// Body lists the keyword calls made by this keyword, control structures are flattened into it.
	Body []*KeywordCall
	// Parent is the *TestCase, *KeywordCall or *Fixture this call appears in.
	Parent Node
}

// Fixture is a setup or teardown attached to a suite, test or keyword.
type Fixture struct {
	// Kind is setup or teardown.
	Kind FixtureKind
	// Call is the keyword invoked as fixture.
	Call *KeywordCall
	// Parent is the *Suite, *TestCase or *KeywordCall the fixture belongs to.
	Parent Node
}

func (*Suite) isNode()       {}
func (*TestCase) isNode()    {}
func (*KeywordCall) isNode() {}
func (*Fixture) isNode()     {}

// QualifiedName returns the library and keyword name joined by a dot, or only the name for suite-local keywords.
func (k *KeywordCall) QualifiedName() string {
	if k.Library == "" {
		return k.Name
	}
	return k.Library + "." + k.Name
}

// newSuite creates a suite and links it to the parent, computing the long name.
func newSuite(name string, parent *Suite) *Suite {
	s := &Suite{Name: name, Parent: parent, LongName: name}
	if parent != nil {
		s.LongName = parent.LongName + "." + name
		parent.Suites = append(parent.Suites, s)
	}
	return s
}

// newTestCase creates a test case and links it to the suite.
func newTestCase(name string, suite *Suite) *TestCase {
	t := &TestCase{Name: name, Parent: suite, LongName: name}
	if suite != nil {
		t.LongName = suite.LongName + "." + name
		suite.Tests = append(suite.Tests, t)
	}
	return t
}

// newKeywordCall creates a keyword call. The library prefix is removed from the name when present, older
// framework generations recorded names in the "Library.Keyword" form.
func newKeywordCall(name, library string) *KeywordCall {
	if library != "" && strings.HasPrefix(name, library+".") {
		name = name[len(library)+1:]
	}
	return &KeywordCall{Name: name, Library: library}
}

// attachFixture sets the fixture on its owner node.
func attachFixture(owner Node, f *Fixture) {
	f.Parent = owner
	if f.Call != nil {
		f.Call.Parent = f
	}
	switch o := owner.(type) {
	case *Suite:
		if f.Kind == FixtureSetup {
			o.Setup = f
		} else {
			o.Teardown = f
		}
	case *TestCase:
		if f.Kind == FixtureSetup {
			o.Setup = f
		} else {
			o.Teardown = f
		}
	case *KeywordCall:
		if f.Kind == FixtureSetup {
			o.Setup = f
		} else {
			o.Teardown = f
		}
	}
}

// appendCall adds the keyword call to the body of its owner node.
func appendCall(owner Node, k *KeywordCall) {
	k.Parent = owner
	switch o := owner.(type) {
	case *TestCase:
		o.Body = append(o.Body, k)
	case *KeywordCall:
		o.Body = append(o.Body, k)
	case *Suite:
		// older generations write suite fixtures as untyped keywords, a keyword after tests or child
		// suites is the teardown
		kind := FixtureSetup
		if o.Setup != nil || len(o.Tests) != 0 || len(o.Suites) != 0 {
			kind = FixtureTeardown
		}
		attachFixture(o, &Fixture{Kind: kind, Call: k})
	}
}
