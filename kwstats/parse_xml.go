package kwstats

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// xml elements that only group keyword calls, their content is spliced into the enclosing body
var transparentXMLElements = map[string]bool{
	"for":    true,
	"iter":   true,
	"if":     true,
	"branch": true,
	"try":    true,
	"while":  true,
	"group":  true,
}

// keyword types used for control structures before the framework had dedicated elements
var legacyControlKeywordTypes = map[string]bool{
	"for":     true,
	"foritem": true,
}

type xmlParser struct {
	dec    *xml.Decoder
	report *Report
	// stack holds the owner node for each open element, transparent elements repeat their owner
	stack    []Node
	rootSeen bool
	legacy   bool
}

// parseXML reads an output.xml document. On a decoder failure after the root element was read, the partially
// built report is returned together with a *ParseError marked Partial.
func parseXML(r io.Reader, source string) (*Report, error) {
	p := &xmlParser{
		dec:    xml.NewDecoder(r),
		report: &Report{Source: source, Format: FormatXML},
	}
	if err := p.parse(); err != nil {
		var pe *ParseError
		if !errors.As(err, &pe) {
			pe = &ParseError{Path: source, Err: err}
		}
		pe.Offset = p.dec.InputOffset()
		if pe.Partial {
			return p.report, pe
		}
		return nil, pe
	}
	return p.report, nil
}

func (p *xmlParser) parse() error {
	for {
		tok, err := p.dec.Token()
		if errors.Is(err, io.EOF) {
			if !p.rootSeen {
				return &ParseError{Path: p.report.Source, Err: errors.New("no <robot> root element")}
			} else if len(p.stack) > 0 {
				return p.partialError(io.ErrUnexpectedEOF)
			}
			return p.checkRoot()
		} else if err != nil {
			return p.partialError(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if err := p.start(t); err != nil {
				return err
			}
		case xml.EndElement:
			if len(p.stack) == 0 {
				return p.partialError(fmt.Errorf("unexpected closing element </%s>", t.Name.Local))
			}
			p.stack = p.stack[:len(p.stack)-1]
			if len(p.stack) == 0 { // </robot>, anything after the root is not part of the report
				return p.checkRoot()
			}
		}
	}
}

func (p *xmlParser) partialError(err error) error {
	return &ParseError{Path: p.report.Source, Partial: p.report.Root != nil, Err: err}
}

func (p *xmlParser) checkRoot() error {
	if p.report.Root == nil {
		return &ParseError{Path: p.report.Source, Err: errors.New("report contains no suite")}
	}
	return nil
}

func (p *xmlParser) start(el xml.StartElement) error {
	name := el.Name.Local
	if !p.rootSeen {
		if name != "robot" {
			return &ParseError{Path: p.report.Source, Err: fmt.Errorf("unexpected root element <%s>", name)}
		}
		p.rootSeen = true
		p.report.Generator = xmlAttr(el, "generator")
		p.report.RobotVersion = robotVersion(p.report.Generator)
		p.legacy = legacySchema(p.report.RobotVersion)
		p.stack = append(p.stack, nil)
		return nil
	}

	owner := p.stack[len(p.stack)-1]
	switch {
	case name == "suite":
		return p.startSuite(el, owner)
	case name == "test":
		suite, ok := owner.(*Suite)
		if !ok {
			return p.skip()
		}
		p.stack = append(p.stack, newTestCase(xmlAttr(el, "name"), suite))
		return nil
	case name == "kw":
		return p.startKeyword(el, owner, strings.ToLower(xmlAttr(el, "type")))
	case name == "setup" || name == "teardown":
		return p.startKeyword(el, owner, name)
	case transparentXMLElements[name]:
		if owner == nil {
			return p.skip()
		}
		p.stack = append(p.stack, owner)
		return nil
	default:
		return p.skip()
	}
}

func (p *xmlParser) startSuite(el xml.StartElement, owner Node) error {
	var parent *Suite
	switch o := owner.(type) {
	case nil:
		if p.report.Root != nil {
			return p.partialError(errors.New("multiple top level suites"))
		}
	case *Suite:
		parent = o
	default:
		return p.skip()
	}
	suite := newSuite(xmlAttr(el, "name"), parent)
	if parent == nil {
		p.report.Root = suite
	}
	p.stack = append(p.stack, suite)
	return nil
}

func (p *xmlParser) startKeyword(el xml.StartElement, owner Node, kwType string) error {
	if owner == nil {
		return p.skip()
	} else if legacyControlKeywordTypes[kwType] && (p.legacy || p.report.RobotVersion == "") {
		p.stack = append(p.stack, owner)
		return nil
	}

	library := xmlAttr(el, "owner")
	if library == "" {
		library = xmlAttr(el, "library")
	}
	call := newKeywordCall(xmlAttr(el, "name"), library)
	switch kwType {
	case "setup":
		attachFixture(owner, &Fixture{Kind: FixtureSetup, Call: call})
	case "teardown":
		attachFixture(owner, &Fixture{Kind: FixtureTeardown, Call: call})
	default:
		appendCall(owner, call)
	}
	p.stack = append(p.stack, call)
	return nil
}

// skip consumes the rest of the current element without building nodes.
func (p *xmlParser) skip() error {
	if err := p.dec.Skip(); err != nil {
		return p.partialError(err)
	}
	return nil
}

func xmlAttr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
