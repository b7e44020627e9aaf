// Package capture implements screenshot selection and image grabbing.
package capture

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidSelector is returned for selectors outside the grammar
// <appid>[key=value]:<output>.
var ErrInvalidSelector = errors.New("invalid screenshot selector")

var selectorRe = regexp.MustCompile(`^([a-z.-]+)?(\[([a-zA-Z0-9_.]+)=([^\]]*)\])?(:([0-9]+))?`)

// Selector picks the windows and outputs to capture.
type Selector struct {
	AppID          string
	AttributeKey   string
	AttributeValue string
	OutputIndex    int
	HasOutputIndex bool
}

// HasAttribute reports whether the selector filters on a window property.
func (s Selector) HasAttribute() bool {
	return s.AttributeKey != ""
}

// FullOutput reports whether whole outputs are grabbed instead of windows.
func (s Selector) FullOutput() bool {
	return s.AppID == "" && !s.HasAttribute()
}

// MatchesOutput reports whether the output at index is selected.
func (s Selector) MatchesOutput(index int) bool {
	return !s.HasOutputIndex || s.OutputIndex == index
}

func (s Selector) String() string {
	var b strings.Builder
	b.WriteString(s.AppID)
	if s.HasAttribute() {
		fmt.Fprintf(&b, "[%s=%s]", s.AttributeKey, s.AttributeValue)
	}
	if s.HasOutputIndex {
		fmt.Fprintf(&b, ":%d", s.OutputIndex)
	}
	return b.String()
}

// ParseSelector parses sel. The empty selector selects every output. Input
// the grammar does not fully consume is rejected.
func ParseSelector(sel string) (Selector, error) {
	m := selectorRe.FindStringSubmatchIndex(sel)
	if m == nil || m[1] != len(sel) {
		return Selector{}, fmt.Errorf("%w: %q", ErrInvalidSelector, sel)
	}

	group := func(n int) string {
		if m[2*n] < 0 {
			return ""
		}
		return sel[m[2*n]:m[2*n+1]]
	}

	s := Selector{
		AppID:          group(1),
		AttributeKey:   group(3),
		AttributeValue: group(4),
	}
	if idx := group(6); idx != "" {
		n, err := strconv.Atoi(idx)
		if err != nil {
			return Selector{}, fmt.Errorf("%w: output index %q: %v", ErrInvalidSelector, idx, err)
		}
		s.OutputIndex = n
		s.HasOutputIndex = true
	}
	return s, nil
}
