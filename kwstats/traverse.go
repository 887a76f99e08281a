package kwstats

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-analyze/bulk"
)

// AttributionMode selects which enclosing node is reported as the caller of a keyword call.
type AttributionMode string

const (
	// AttributionContext attributes calls to the enclosing test case, or to the suite for calls made
	// from suite setup and teardown. User keyword frames never become the caller.
	AttributionContext AttributionMode = "context"
	// AttributionFrame attributes calls to the nearest enclosing keyword call, falling back to the
	// test case or suite when the call is at the top of its body.
	AttributionFrame AttributionMode = "frame"
)

// ErrStopWalk can be returned by a walk function to end the walk early without an error.
var ErrStopWalk = errors.New("stop walk")

// Walk visits every keyword call below the suite exactly once, depth first in preorder.
// Within a suite the order is suite setup, tests, child suites and suite teardown.
// Within a test or keyword the order is setup, body and teardown.
func Walk(root *Suite, fn func(*KeywordCall) error) error {
	if root == nil {
		return nil
	}
	err := walkSuite(root, fn)
	if errors.Is(err, ErrStopWalk) {
		return nil
	}
	return err
}

func walkSuite(s *Suite, fn func(*KeywordCall) error) error {
	if err := walkFixture(s.Setup, fn); err != nil {
		return err
	}
	for _, t := range s.Tests {
		if err := walkFixture(t.Setup, fn); err != nil {
			return err
		} else if err := walkCalls(t.Body, fn); err != nil {
			return err
		} else if err := walkFixture(t.Teardown, fn); err != nil {
			return err
		}
	}
	for _, child := range s.Suites {
		if err := walkSuite(child, fn); err != nil {
			return err
		}
	}
	return walkFixture(s.Teardown, fn)
}

func walkFixture(f *Fixture, fn func(*KeywordCall) error) error {
	if f == nil || f.Call == nil {
		return nil
	}
	return walkCall(f.Call, fn)
}

func walkCalls(calls []*KeywordCall, fn func(*KeywordCall) error) error {
	for _, k := range calls {
		if err := walkCall(k, fn); err != nil {
			return err
		}
	}
	return nil
}

func walkCall(k *KeywordCall, fn func(*KeywordCall) error) error {
	if err := fn(k); err != nil {
		return err
	} else if err := walkFixture(k.Setup, fn); err != nil {
		return err
	} else if err := walkCalls(k.Body, fn); err != nil {
		return err
	}
	return walkFixture(k.Teardown, fn)
}

// Caller resolves the calling context of the keyword call. The result is a *TestCase, *Suite or, in frame
// mode, a *KeywordCall. Nil is returned for a detached call.
func Caller(call *KeywordCall, mode AttributionMode) Node {
	var node Node = call.Parent
	for node != nil {
		switch n := node.(type) {
		case *TestCase:
			return n
		case *Suite:
			return n
		case *KeywordCall:
			if mode == AttributionFrame {
				return n
			}
			node = n.Parent
		case *Fixture:
			node = n.Parent
		default:
			panic(fmt.Sprintf("unexpected report node %T", node))
		}
	}
	return nil
}

// CallerName returns the qualifying name hashed into the caller token.
func CallerName(node Node) string {
	switch n := node.(type) {
	case *TestCase:
		return n.LongName
	case *Suite:
		return n.LongName
	case *KeywordCall:
		return n.Library + n.Name
	case *Fixture:
		if n.Call != nil {
			return n.Call.Library + n.Call.Name
		}
		return ""
	case nil:
		return ""
	default:
		panic(fmt.Sprintf("unexpected report node %T", node))
	}
}

// AggregateOptions configures Aggregate.
type AggregateOptions struct {
	// Attribution selects the caller resolution, defaults to AttributionContext.
	Attribution AttributionMode
	// Libraries restricts counting to keywords owned by these libraries, empty counts every keyword.
	Libraries []string
}

// Aggregate walks the report and counts every keyword call against its anonymized caller.
func Aggregate(report *Report, opts AggregateOptions) (*Counter, error) {
	if opts.Attribution == "" {
		opts.Attribution = AttributionContext
	}
	libraries := bulk.SliceFilterInPlace(func(lib string) bool {
		return lib != ""
	}, slices.Clone(opts.Libraries))

	counter := NewCounter()
	if report == nil {
		return counter, nil
	}
	err := Walk(report.Root, func(call *KeywordCall) error {
		if len(libraries) > 0 && !slices.Contains(libraries, call.Library) {
			return nil
		}
		caller := Caller(call, opts.Attribution)
		if caller == nil {
			return fmt.Errorf("keyword %q has no calling context", call.QualifiedName())
		}
		counter.Add(call.Name, Anonymize(CallerName(caller)))
		return nil
	})
	return counter, err
}
