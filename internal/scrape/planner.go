package scrape

import "strings"

// Strategy codes name how a URL will be acquired; methods name the engine
// routine that implements a strategy.
const (
	StrategySkip       = "skip"
	StrategyHTMLSimple = "html_simple"
	StrategyDOI        = "doi"

	MethodSkip       = "skip"
	MethodGetHTML    = "get_html"
	MethodResolveDOI = "resolve_doi"
)

// Journal codes for URLs the planner cannot attribute to a publisher.
const (
	JournalUnknown    = "unknown"
	JournalInvalidURL = "invalid_url"
	JournalDOI        = "DOI"
)

// Plan is the planner's verdict for one URL.
type Plan struct {
	Journal  string
	Strategy string
	Method   string
}

// domainPlan pairs the journal code with the acquisition strategy for one
// registered domain.
type domainPlan struct {
	Journal  string
	Strategy string
}

// DomainScrapeMap maps publisher domains to (journal code, strategy). Lookup
// strips https:// and takes the longest registered prefix, so more specific
// entries win over shorter ones.
var DomainScrapeMap = map[string]domainPlan{
	"pubs.rsc.org":            {"RSC", StrategyHTMLSimple},
	"pubs.acs.org":            {"ACS", StrategyHTMLSimple},
	"link.springer.com":       {"Springer", StrategyHTMLSimple},
	"onlinelibrary.wiley.com": {"Wiley", StrategyHTMLSimple},
	"www.nature.com":          {"Nature", StrategyHTMLSimple},
	"www.mdpi.com":            {"MDPI", StrategyHTMLSimple},
	"www.sciencedirect.com":   {"Elsevier", StrategyHTMLSimple},
	"www.frontiersin.org":     {"Frontiers", StrategyHTMLSimple},
	"www.tandfonline.com":     {"T&F", StrategyHTMLSimple},
	"doi.org":                 {JournalDOI, StrategyDOI},
	"dx.doi.org":              {JournalDOI, StrategyDOI},
}

// ScrapeMethodMap names the engine method for each strategy code.
var ScrapeMethodMap = map[string]string{
	StrategySkip:       MethodSkip,
	StrategyHTMLSimple: MethodGetHTML,
	StrategyDOI:        MethodResolveDOI,
}

// PlanURL decides how one normalized input entry will be scraped. Anything
// not reachable over https is skipped; hosts absent from the domain map get
// the plain-GET strategy under the unknown journal code.
func PlanURL(url string) Plan {
	if !strings.HasPrefix(url, "https://") {
		return Plan{Journal: JournalInvalidURL, Strategy: StrategySkip, Method: MethodSkip}
	}

	stripped := strings.TrimPrefix(url, "https://")
	var best string
	verdict := domainPlan{Journal: JournalUnknown, Strategy: StrategyHTMLSimple}
	for domain, plan := range DomainScrapeMap {
		if strings.HasPrefix(stripped, domain) && len(domain) > len(best) {
			best = domain
			verdict = plan
		}
	}

	return Plan{
		Journal:  verdict.Journal,
		Strategy: verdict.Strategy,
		Method:   ScrapeMethodMap[verdict.Strategy],
	}
}
