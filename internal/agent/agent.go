// Package agent is the page-side filter: it hides listings on one search
// results page and reports how many it hid.
package agent

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/andybalholm/cascadia"
	"github.com/go-shiori/dom"
	"golang.org/x/net/html"

	"github.com/lotas/hidenobids/internal/applog"
	"github.com/lotas/hidenobids/internal/filter"
	"github.com/lotas/hidenobids/internal/types"
)

// HiddenClass is toggled on listings that should not be displayed.
const HiddenClass = "hnb-hidden"

const (
	styleMarker = "data-hnb"
	hideRule    = ".hnb-hidden { display: none !important; }"
)

// Selectors locate listings and their bid counts on a page.
type Selectors struct {
	Listing  string `yaml:"listing"`
	BidCount string `yaml:"bid_count"`
}

// DefaultSelectors matches eBay's search result markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Listing:  "li.s-item",
		BidCount: ".s-item__bidCount",
	}
}

// Message is a coordinator -> page message.
type Message struct {
	Action   string
	Settings types.Settings
}

// Bus is the page end of a tab's message channel.
type Bus interface {
	Listen(handler func(ctx context.Context, msg Message))
}

// Reporter sends the hidden count up to the coordinator.
type Reporter interface {
	ReportCount(ctx context.Context, count int) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, count int) error

func (f ReporterFunc) ReportCount(ctx context.Context, count int) error {
	return f(ctx, count)
}

// Agent filters a single page. It is safe to call ApplyFilter from the
// page's message handler and from callers concurrently; calls serialize.
type Agent struct {
	doc      *html.Node
	listing  cascadia.Selector
	bidCount cascadia.Selector
	reporter Reporter

	initialized atomic.Bool

	mu        sync.Mutex
	lastCount int
}

// New compiles the selectors and binds the agent to doc.
func New(doc *html.Node, sel Selectors, reporter Reporter) (*Agent, error) {
	listing, err := cascadia.Compile(sel.Listing)
	if err != nil {
		return nil, fmt.Errorf("listing selector %q: %w", sel.Listing, err)
	}
	bidCount, err := cascadia.Compile(sel.BidCount)
	if err != nil {
		return nil, fmt.Errorf("bid count selector %q: %w", sel.BidCount, err)
	}
	if reporter == nil {
		reporter = ReporterFunc(func(context.Context, int) error { return nil })
	}
	return &Agent{
		doc:      doc,
		listing:  listing,
		bidCount: bidCount,
		reporter: reporter,
	}, nil
}

// Parse reads an HTML page, normalizing its text encoding.
func Parse(r io.Reader) (*html.Node, error) {
	return dom.Parse(r)
}

// Initialize installs the hide rule and registers the updateFilter handler.
// Only the first call has any effect; it reports whether it ran.
func (a *Agent) Initialize(bus Bus) bool {
	if !a.initialized.CompareAndSwap(false, true) {
		return false
	}
	a.injectStyle()
	if bus != nil {
		bus.Listen(func(ctx context.Context, msg Message) {
			if msg.Action == types.ActionUpdateFilter {
				a.ApplyFilter(ctx, msg.Settings)
			}
		})
	}
	applog.Info("agent.init")
	return true
}

// Initialized reports whether Initialize has run.
func (a *Agent) Initialized() bool {
	return a.initialized.Load()
}

func (a *Agent) injectStyle() {
	if dom.QuerySelector(a.doc, "style["+styleMarker+"]") != nil {
		return
	}
	head := dom.QuerySelector(a.doc, "head")
	if head == nil {
		head = dom.DocumentElement(a.doc)
	}
	if head == nil {
		return
	}
	style := dom.CreateElement("style")
	dom.SetAttribute(style, styleMarker, "")
	dom.SetTextContent(style, hideRule)
	dom.AppendChild(head, style)
}

// ApplyFilter sets the visibility of every listing for s, reports the
// number hidden and returns it. A failed report is logged; the DOM changes
// are kept.
func (a *Agent) ApplyFilter(ctx context.Context, s types.Settings) int {
	a.mu.Lock()
	hidden := 0
	for _, item := range a.listing.MatchAll(a.doc) {
		hide := filter.ShouldHide(a.bidsOf(item), s)
		setClass(item, HiddenClass, hide)
		if hide {
			hidden++
		}
	}
	a.lastCount = hidden
	a.mu.Unlock()

	if err := a.reporter.ReportCount(ctx, hidden); err != nil {
		applog.Error("agent.report", err, "count", hidden)
	}
	return hidden
}

// LastCount is the hidden count of the most recent ApplyFilter.
func (a *Agent) LastCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastCount
}

// Listings returns the listing elements currently on the page.
func (a *Agent) Listings() []*html.Node {
	return a.listing.MatchAll(a.doc)
}

// BidCount returns the parsed bid count of a listing element.
func (a *Agent) BidCount(item *html.Node) int {
	return a.bidsOf(item)
}

func (a *Agent) bidsOf(item *html.Node) int {
	el := a.bidCount.MatchFirst(item)
	if el == nil {
		return 0
	}
	return filter.ParseBidCount(dom.TextContent(el))
}

// Render writes the (filtered) document.
func (a *Agent) Render(w io.Writer) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return html.Render(w, a.doc)
}

// IsHidden reports whether the hide class is set on n.
func IsHidden(n *html.Node) bool {
	return slices.Contains(strings.Fields(dom.ClassName(n)), HiddenClass)
}

func setClass(n *html.Node, class string, on bool) {
	classes := strings.Fields(dom.ClassName(n))
	has := slices.Contains(classes, class)
	switch {
	case on && !has:
		classes = append(classes, class)
	case !on && has:
		classes = slices.DeleteFunc(classes, func(c string) bool { return c == class })
	default:
		return
	}
	if len(classes) == 0 {
		dom.RemoveAttribute(n, "class")
		return
	}
	dom.SetAttribute(n, "class", strings.Join(classes, " "))
}
