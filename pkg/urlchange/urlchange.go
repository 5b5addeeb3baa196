// Package urlchange compares page URLs before and after an action.
//
// Comparison never fails: unparsable URLs are reported as changed with a
// note in Details, so URL handling is never the reason an action fails.
package urlchange

import (
	"errors"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var errMissingScheme = errors.New("missing scheme")

// Options configures Detect.
type Options struct {
	// CheckComponents enables per-component analysis of changed URLs
	CheckComponents bool
}

// ComponentDelta reports which URL components differ.
type ComponentDelta struct {
	Path  bool
	Query bool
	Hash  bool
	Host  bool

	// Site is true when the registrable domain (eTLD+1) differs
	Site bool
}

// Result is the outcome of Detect.
type Result struct {
	Changed bool

	// Components is set only when component analysis ran and both URLs parsed
	Components *ComponentDelta

	Details map[string]any
}

// Detect compares before and after.
func Detect(before, after string, opts Options) Result {
	if before == after {
		return Result{Changed: false, Details: map[string]any{"before": before, "after": after}}
	}

	result := Result{
		Changed: true,
		Details: map[string]any{"before": before, "after": after},
	}
	if !opts.CheckComponents {
		return result
	}

	b, errBefore := parse(before)
	a, errAfter := parse(after)
	if errBefore != nil || errAfter != nil {
		var notes []string
		if errBefore != nil {
			notes = append(notes, "before: "+errBefore.Error())
		}
		if errAfter != nil {
			notes = append(notes, "after: "+errAfter.Error())
		}
		result.Details["parseError"] = strings.Join(notes, "; ")
		return result
	}

	delta := &ComponentDelta{
		Path:  b.Path != a.Path,
		Query: b.RawQuery != a.RawQuery,
		Hash:  b.Fragment != a.Fragment,
		Host:  !strings.EqualFold(b.Host, a.Host),
	}
	if delta.Host {
		delta.Site = site(b.Hostname()) != site(a.Hostname())
	}
	result.Components = delta
	return result
}

// Changed is shorthand for Detect without component analysis.
func Changed(before, after string) bool {
	return before != after
}

func parse(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		return nil, &url.Error{Op: "parse", URL: raw, Err: errMissingScheme}
	}
	return u, nil
}

// site returns the registrable domain of host, or host itself when it has
// none (IP addresses, localhost, bare suffixes).
func site(host string) string {
	host = strings.ToLower(host)
	s, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return s
}
