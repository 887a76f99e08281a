package kwstats

import (
	"encoding/json"
	"errors"
	"fmt"
)

// body item types that describe keyword calls, an empty type is a plain keyword
var jsonKeywordTypes = map[string]FixtureKind{
	"":         "",
	"KEYWORD":  "",
	"SETUP":    FixtureSetup,
	"TEARDOWN": FixtureTeardown,
}

// body item types without keyword content
var jsonLeafTypes = map[string]bool{
	"MESSAGE":  true,
	"VAR":      true,
	"RETURN":   true,
	"BREAK":    true,
	"CONTINUE": true,
	"ERROR":    true,
}

type jsonResult struct {
	Generator string     `json:"generator"`
	Suite     *jsonSuite `json:"suite"`
}

type jsonSuite struct {
	Name     string        `json:"name"`
	Setup    *jsonBodyItem `json:"setup"`
	Teardown *jsonBodyItem `json:"teardown"`
	Tests    []jsonTest    `json:"tests"`
	Suites   []jsonSuite   `json:"suites"`
}

type jsonTest struct {
	Name     string         `json:"name"`
	Setup    *jsonBodyItem  `json:"setup"`
	Teardown *jsonBodyItem  `json:"teardown"`
	Body     []jsonBodyItem `json:"body"`
}

type jsonBodyItem struct {
	Type     string         `json:"type"`
	Name     string         `json:"name"`
	Owner    string         `json:"owner"`
	Libname  string         `json:"libname"`
	Setup    *jsonBodyItem  `json:"setup"`
	Teardown *jsonBodyItem  `json:"teardown"`
	Body     []jsonBodyItem `json:"body"`
}

// parseJSON reads the JSON execution result format. JSON reports are decoded as a whole, there is no
// partial recovery.
func parseJSON(data []byte, source string) (*Report, error) {
	var doc jsonResult
	if err := json.Unmarshal(data, &doc); err != nil {
		pe := &ParseError{Path: source, Err: err}
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) {
			pe.Offset = syntaxErr.Offset
		} else if errors.As(err, &typeErr) {
			pe.Offset = typeErr.Offset
		}
		return nil, pe
	} else if doc.Suite == nil {
		return nil, &ParseError{Path: source, Err: errors.New("report contains no suite")}
	}

	report := &Report{
		Source:       source,
		Format:       FormatJSON,
		Generator:    doc.Generator,
		RobotVersion: robotVersion(doc.Generator),
	}
	report.Root = buildJSONSuite(doc.Suite, nil)
	return report, nil
}

func buildJSONSuite(js *jsonSuite, parent *Suite) *Suite {
	suite := newSuite(js.Name, parent)
	attachJSONFixture(suite, FixtureSetup, js.Setup)
	for _, jt := range js.Tests {
		test := newTestCase(jt.Name, suite)
		attachJSONFixture(test, FixtureSetup, jt.Setup)
		addJSONBody(test, jt.Body)
		attachJSONFixture(test, FixtureTeardown, jt.Teardown)
	}
	for i := range js.Suites {
		buildJSONSuite(&js.Suites[i], suite)
	}
	attachJSONFixture(suite, FixtureTeardown, js.Teardown)
	return suite
}

func attachJSONFixture(owner Node, kind FixtureKind, item *jsonBodyItem) {
	if item == nil || item.Name == "" {
		return
	}
	attachFixture(owner, &Fixture{Kind: kind, Call: buildJSONKeyword(item)})
}

func buildJSONKeyword(item *jsonBodyItem) *KeywordCall {
	library := item.Owner
	if library == "" {
		library = item.Libname
	}
	call := newKeywordCall(item.Name, library)
	attachJSONFixture(call, FixtureSetup, item.Setup)
	addJSONBody(call, item.Body)
	attachJSONFixture(call, FixtureTeardown, item.Teardown)
	return call
}

// addJSONBody adds the keyword calls of body to owner, flattening control structures.
func addJSONBody(owner Node, body []jsonBodyItem) {
	for i := range body {
		item := &body[i]
		if jsonLeafTypes[item.Type] {
			continue
		} else if kind, ok := jsonKeywordTypes[item.Type]; ok && item.Name != "" {
			call := buildJSONKeyword(item)
			if kind != "" {
				attachFixture(owner, &Fixture{Kind: kind, Call: call})
			} else {
				appendCall(owner, call)
			}
			continue
		}
		addJSONBody(owner, item.Body) // FOR, ITERATION, IF/ELSE ROOT, TRY/EXCEPT ROOT, WHILE, GROUP
	}
}

func (r *Report) String() string {
	return fmt.Sprintf("%s (%s, %s)", r.Source, r.Format, r.Generator)
}
