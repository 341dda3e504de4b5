package matcher

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultPatterns are the eBay search-result pages the filter runs on.
var DefaultPatterns = []string{
	"*://*.ebay.at/sch/*", "*://*.ebay.be/sch/*", "*://*.ebay.ca/sch/*",
	"*://*.ebay.ch/sch/*", "*://*.ebay.cn/sch/*", "*://*.ebay.co.jp/sch/*",
	"*://*.ebay.co.uk/sch/*", "*://*.ebay.com/sch/*", "*://*.ebay.com.au/sch/*",
	"*://*.ebay.com.hk/sch/*", "*://*.ebay.com.mx/sch/*", "*://*.ebay.com.my/sch/*",
	"*://*.ebay.com.sg/sch/*", "*://*.ebay.com.tw/sch/*", "*://*.ebay.de/sch/*",
	"*://*.ebay.es/sch/*", "*://*.ebay.fr/sch/*", "*://*.ebay.ie/sch/*",
	"*://*.ebay.in/sch/*", "*://*.ebay.it/sch/*", "*://*.ebay.nl/sch/*",
	"*://*.ebay.ph/sch/*", "*://*.ebay.pl/sch/*", "*://*.ebay.se/sch/*",
	"*://*.ebay.vn/sch/*", "*://*.ebaythailand.co.th/sch/*",
}

// Matcher tests URLs against browser-extension style match patterns.
type Matcher struct {
	patterns []string
	rules    []rule
}

// rule is one compiled pattern. Scheme, host and path are matched
// separately so a wildcard can never reach across the host boundary.
type rule struct {
	schemes []string
	hosts   []glob.Glob
	path    glob.Glob
}

// New compiles patterns of the form scheme://host/path. A "*" scheme means
// http or https, and a "*." host prefix also matches the bare host, the
// way extension match patterns do.
func New(patterns []string) (*Matcher, error) {
	m := &Matcher{patterns: patterns}
	for _, p := range patterns {
		r, err := compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		m.rules = append(m.rules, r)
	}
	return m, nil
}

func compile(p string) (rule, error) {
	scheme, rest, ok := strings.Cut(p, "://")
	if !ok || scheme == "" {
		return rule{}, errors.New("missing scheme")
	}
	host, path, ok := strings.Cut(rest, "/")
	if !ok {
		return rule{}, errors.New("missing path")
	}
	if host == "" {
		return rule{}, errors.New("missing host")
	}

	var r rule
	if scheme == "*" {
		r.schemes = []string{"http", "https"}
	} else {
		r.schemes = []string{scheme}
	}

	hosts := []string{host}
	if bare, ok := strings.CutPrefix(host, "*."); ok {
		hosts = append(hosts, bare)
	}
	for _, h := range hosts {
		g, err := glob.Compile(h)
		if err != nil {
			return rule{}, err
		}
		r.hosts = append(r.hosts, g)
	}

	g, err := glob.Compile("/" + path)
	if err != nil {
		return rule{}, err
	}
	r.path = g
	return r, nil
}

func (r rule) match(u *url.URL) bool {
	if !slices.Contains(r.schemes, u.Scheme) {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if !slices.ContainsFunc(r.hosts, func(g glob.Glob) bool { return g.Match(host) }) {
		return false
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return r.path.Match(path)
}

// Default returns a Matcher for DefaultPatterns.
func Default() *Matcher {
	m, err := New(DefaultPatterns)
	if err != nil {
		panic(err)
	}
	return m
}

// Match reports whether raw is a listing-search page. Empty or
// unparseable URLs never match.
func (m *Matcher) Match(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	for _, r := range m.rules {
		if r.match(u) {
			return true
		}
	}
	return false
}

// Patterns returns the source patterns.
func (m *Matcher) Patterns() []string {
	return m.patterns
}
