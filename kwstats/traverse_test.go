package kwstats

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCall builds a keyword call with nested body calls.
func testCall(library, name string, body ...*KeywordCall) *KeywordCall {
	k := newKeywordCall(name, library)
	for _, child := range body {
		appendCall(k, child)
	}
	return k
}

func testCase(suite *Suite, name string, body ...*KeywordCall) *TestCase {
	tc := newTestCase(name, suite)
	for _, k := range body {
		appendCall(tc, k)
	}
	return tc
}

func testReport(root *Suite) *Report {
	return &Report{Source: "memory", Format: FormatXML, Root: root}
}

func aggregateRows(t *testing.T, report *Report, opts AggregateOptions) map[string][2]int {
	t.Helper()

	c, err := Aggregate(report, opts)
	require.NoError(t, err)
	rows := make(map[string][2]int)
	for _, row := range c.Summary(testTime).Keywords {
		rows[row.Keyword] = [2]int{row.CallCount, row.ParentCount}
	}
	return rows
}

func TestAggregateScenarios(t *testing.T) {
	t.Parallel()

	t.Run("sibling_calls_single_caller", func(t *testing.T) {
		root := newSuite("Root", nil)
		testCase(root, "T1",
			testCall("SeleniumLibrary", "Click Element"),
			testCall("SeleniumLibrary", "Click Element"),
			testCall("SeleniumLibrary", "Click Element"))

		rows := aggregateRows(t, testReport(root), AggregateOptions{})
		assert.Equal(t, map[string][2]int{"Click Element": {3, 1}}, rows)
	})

	t.Run("two_tests_two_callers", func(t *testing.T) {
		root := newSuite("Root", nil)
		testCase(root, "T1", testCall("SeleniumLibrary", "Go To"))
		testCase(root, "T2", testCall("SeleniumLibrary", "Go To"))

		rows := aggregateRows(t, testReport(root), AggregateOptions{})
		assert.Equal(t, map[string][2]int{"Go To": {2, 2}}, rows)
	})

	t.Run("user_keyword_attributes_to_test", func(t *testing.T) {
		root := newSuite("Root", nil)
		testCase(root, "T1",
			testCall("", "Open Product",
				testCall("SeleniumLibrary", "Click Element"),
				testCall("SeleniumLibrary", "Click Element")))

		rows := aggregateRows(t, testReport(root), AggregateOptions{})
		assert.Equal(t, [2]int{2, 1}, rows["Click Element"])
		assert.Equal(t, [2]int{1, 1}, rows["Open Product"])
	})

	t.Run("zero_keywords", func(t *testing.T) {
		root := newSuite("Root", nil)
		testCase(root, "Empty")

		c, err := Aggregate(testReport(root), AggregateOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0, c.Len())
		assert.Empty(t, c.Summary(testTime).Keywords)
	})

	t.Run("deep_nesting_counts_every_node", func(t *testing.T) {
		root := newSuite("Root", nil)
		child := newSuite("Child", root)
		inner := testCall("SeleniumLibrary", "Click Element")
		for i := 0; i < 5; i++ {
			inner = testCall("", "Wrapper", inner, testCall("SeleniumLibrary", "Click Element"))
		}
		testCase(child, "Deep", inner)

		rows := aggregateRows(t, testReport(root), AggregateOptions{})
		assert.Equal(t, [2]int{6, 1}, rows["Click Element"])
		assert.Equal(t, [2]int{5, 1}, rows["Wrapper"])
	})

	t.Run("suite_fixtures_attribute_to_suite", func(t *testing.T) {
		root := newSuite("Root", nil)
		attachFixture(root, &Fixture{Kind: FixtureSetup, Call: testCall("SeleniumLibrary", "Open Browser")})
		attachFixture(root, &Fixture{Kind: FixtureTeardown, Call: testCall("SeleniumLibrary", "Close Browser",
			testCall("SeleniumLibrary", "Click Element"))})
		tc := testCase(root, "T1", testCall("SeleniumLibrary", "Click Element"))
		attachFixture(tc, &Fixture{Kind: FixtureTeardown, Call: testCall("SeleniumLibrary", "Click Element")})

		rows := aggregateRows(t, testReport(root), AggregateOptions{})
		assert.Equal(t, [2]int{1, 1}, rows["Open Browser"])
		// test body and test teardown share the test, the suite teardown is a second caller
		assert.Equal(t, [2]int{3, 2}, rows["Click Element"])
	})

	t.Run("nil_report", func(t *testing.T) {
		c, err := Aggregate(nil, AggregateOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0, c.Len())
	})
}

func TestAggregateAttributionModes(t *testing.T) {
	t.Parallel()

	build := func() *Report {
		root := newSuite("Root", nil)
		testCase(root, "T1",
			testCall("", "Login", testCall("SeleniumLibrary", "Click Button")),
			testCall("", "Logout", testCall("SeleniumLibrary", "Click Button")),
			testCall("SeleniumLibrary", "Click Button"))
		return testReport(root)
	}

	tests := []struct {
		name    string
		mode    AttributionMode
		callers int
	}{
		{"default", "", 1},
		{"context", AttributionContext, 1},
		{"frame", AttributionFrame, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := aggregateRows(t, build(), AggregateOptions{Attribution: tt.mode})
			assert.Equal(t, [2]int{3, tt.callers}, rows["Click Button"])
		})
	}
}

func TestAggregateLibraryFilter(t *testing.T) {
	t.Parallel()

	root := newSuite("Root", nil)
	testCase(root, "T1",
		testCall("BuiltIn", "Log"),
		testCall("SeleniumLibrary", "Click Element"),
		testCall("SeleniumLibraryToBrowser", "Get Title"),
		testCall("", "Local Keyword", testCall("SeleniumLibrary", "Input Text")))
	libraries := []string{"SeleniumLibrary", "", "SeleniumLibraryToBrowser"}

	c, err := Aggregate(testReport(root), AggregateOptions{Libraries: libraries})
	require.NoError(t, err)
	assert.Equal(t, []string{"Click Element", "Get Title", "Input Text"}, c.Keywords())
	// filter input is not modified
	assert.Equal(t, []string{"SeleniumLibrary", "", "SeleniumLibraryToBrowser"}, libraries)
}

func TestAggregateDetachedCall(t *testing.T) {
	t.Parallel()

	root := newSuite("Root", nil)
	tc := testCase(root, "T1")
	orphan := testCall("SeleniumLibrary", "Click Element")
	tc.Body = append(tc.Body, orphan) // Parent left nil

	_, err := Aggregate(testReport(root), AggregateOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SeleniumLibrary.Click Element")
}

func TestWalkOrder(t *testing.T) {
	t.Parallel()

	root := newSuite("Root", nil)
	attachFixture(root, &Fixture{Kind: FixtureSetup, Call: testCall("", "suite setup")})
	attachFixture(root, &Fixture{Kind: FixtureTeardown, Call: testCall("", "suite teardown")})
	tc := testCase(root, "T1", testCall("", "body 1", testCall("", "nested")), testCall("", "body 2"))
	attachFixture(tc, &Fixture{Kind: FixtureSetup, Call: testCall("", "test setup")})
	attachFixture(tc, &Fixture{Kind: FixtureTeardown, Call: testCall("", "test teardown")})
	child := newSuite("Child", root)
	testCase(child, "T2", testCall("", "child body"))

	var visited []string
	require.NoError(t, Walk(root, func(k *KeywordCall) error {
		visited = append(visited, k.Name)
		return nil
	}))
	assert.Equal(t, []string{
		"suite setup", "test setup", "body 1", "nested", "body 2", "test teardown", "child body", "suite teardown",
	}, visited)

	t.Run("stop_early", func(t *testing.T) {
		var count int
		err := Walk(root, func(k *KeywordCall) error {
			count++
			if count == 2 {
				return ErrStopWalk
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("error_propagates", func(t *testing.T) {
		want := errors.New("boom")
		err := Walk(root, func(k *KeywordCall) error {
			return want
		})
		assert.ErrorIs(t, err, want)
	})

	t.Run("nil_root", func(t *testing.T) {
		assert.NoError(t, Walk(nil, func(k *KeywordCall) error {
			return errors.New("not called")
		}))
	})
}

func TestCallerName(t *testing.T) {
	t.Parallel()

	root := newSuite("Root", nil)
	child := newSuite("Child", root)
	tc := testCase(child, "My Test")
	uk := testCall("my_resource", "Do Things")
	appendCall(tc, uk)

	tests := []struct {
		name string
		node Node
		want string
	}{
		{"suite", child, "Root.Child"},
		{"test", tc, "Root.Child.My Test"},
		{"keyword", uk, "my_resourceDo Things"},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CallerName(tt.node))
		})
	}
}

func TestCaller(t *testing.T) {
	t.Parallel()

	root := newSuite("Root", nil)
	tc := testCase(root, "T1")
	uk := testCall("", "User Keyword")
	appendCall(tc, uk)
	setupCall := testCall("SeleniumLibrary", "Go To")
	attachFixture(uk, &Fixture{Kind: FixtureSetup, Call: setupCall})
	direct := testCall("SeleniumLibrary", "Click Element")
	appendCall(tc, direct)

	assert.Same(t, tc, Caller(direct, AttributionContext))
	assert.Same(t, tc, Caller(direct, AttributionFrame))
	assert.Same(t, tc, Caller(setupCall, AttributionContext))
	assert.Same(t, uk, Caller(setupCall, AttributionFrame))
	assert.Nil(t, Caller(testCall("", "Detached"), AttributionContext))
}

func TestModelBuilders(t *testing.T) {
	t.Parallel()

	t.Run("library_prefix_stripped", func(t *testing.T) {
		k := newKeywordCall("SeleniumLibrary.Click Element", "SeleniumLibrary")
		assert.Equal(t, "Click Element", k.Name)
		assert.Equal(t, "SeleniumLibrary.Click Element", k.QualifiedName())
	})

	t.Run("other_prefix_kept", func(t *testing.T) {
		k := newKeywordCall("Custom.Click Element", "SeleniumLibrary")
		assert.Equal(t, "Custom.Click Element", k.Name)
	})

	t.Run("no_library", func(t *testing.T) {
		k := newKeywordCall("My Keyword", "")
		assert.Equal(t, "My Keyword", k.QualifiedName())
	})

	t.Run("long_names", func(t *testing.T) {
		root := newSuite("A", nil)
		child := newSuite("B", root)
		tc := newTestCase("C", child)
		assert.Equal(t, "A.B", child.LongName)
		assert.Equal(t, "A.B.C", tc.LongName)
		assert.Equal(t, []*Suite{child}, root.Suites)
		assert.Equal(t, []*TestCase{tc}, child.Tests)
	})

	t.Run("untyped_suite_keywords_become_fixtures", func(t *testing.T) {
		root := newSuite("A", nil)
		first := newKeywordCall("Open", "")
		second := newKeywordCall("Close", "")
		appendCall(root, first)
		appendCall(root, second)

		require.NotNil(t, root.Setup)
		require.NotNil(t, root.Teardown)
		assert.Same(t, first, root.Setup.Call)
		assert.Same(t, second, root.Teardown.Call)
		assert.Same(t, root.Setup, first.Parent)
		assert.Equal(t, root, root.Setup.Parent)
	})

	t.Run("untyped_suite_keyword_after_tests_is_teardown", func(t *testing.T) {
		root := newSuite("A", nil)
		newTestCase("T", root)
		closeCall := newKeywordCall("Close", "")
		appendCall(root, closeCall)

		assert.Nil(t, root.Setup)
		require.NotNil(t, root.Teardown)
		assert.Equal(t, FixtureTeardown, root.Teardown.Kind)
		assert.Same(t, closeCall, root.Teardown.Call)
	})

	t.Run("untyped_suite_keyword_after_child_suite_is_teardown", func(t *testing.T) {
		root := newSuite("A", nil)
		newSuite("B", root)
		appendCall(root, newKeywordCall("Close", ""))

		assert.Nil(t, root.Setup)
		require.NotNil(t, root.Teardown)
		assert.Equal(t, FixtureTeardown, root.Teardown.Kind)
	})
}
