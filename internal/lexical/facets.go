package lexical

const (
	FacetPricing     = "Pricing"
	FacetIntegration = "Integration"
	FacetSupport     = "Support"
	FacetReliability = "Reliability"
	FacetOnboarding  = "Onboarding"
	FacetReporting   = "Reporting"
	FacetSecurity    = "Security"
	FacetUsability   = "Usability"
	FacetOther       = "Other"
)

type facetRule struct {
	name     string
	keywords TokenSet
}

// facetPriority is evaluated in order; the first facet whose keywords
// intersect the token set wins.
var facetPriority = []facetRule{
	{FacetPricing, setOf(
		"price", "prices", "pricing", "priced", "cost", "costs", "costly", "tier", "tiers",
		"discount", "discounts", "fee", "fees", "subscription", "contract", "contracts",
		"quote", "quotes", "billing", "invoice", "invoices", "license", "licensing", "budget",
		"expensive", "cheap", "affordable", "roi", "renewal", "seat", "seats", "plan pricing",
	)},
	{FacetIntegration, setOf(
		"3pl", "erp", "crm", "sync", "syncing", "synchronization", "connector", "connectors",
		"sdk", "edi", "plugin", "plugins", "middleware", "data feed", "interoperability",
		"import", "export",
	)},
	{FacetSupport, setOf(
		"support", "helpdesk", "ticket", "tickets", "response time", "csm", "account manager",
		"escalation", "escalations", "service team", "support team", "chat support",
	)},
	{FacetReliability, setOf(
		"outage", "outages", "downtime", "uptime", "reliability", "reliable", "unreliable",
		"bug", "bugs", "buggy", "crash", "crashes", "error", "errors", "stability", "unstable",
		"latency", "sla",
	)},
	{FacetOnboarding, setOf(
		"onboarding", "setup", "implementation", "training", "migration", "ramp", "kickoff",
		"go-live", "rollout",
	)},
	{FacetReporting, setOf(
		"report", "reports", "reporting", "dashboard", "dashboards", "analytics", "visibility",
		"insights", "metrics", "kpi", "kpis", "forecast", "forecasting",
	)},
	{FacetSecurity, setOf(
		"security", "compliance", "sso", "permissions", "audit", "gdpr", "soc", "encryption",
		"access control", "privacy",
	)},
	{FacetUsability, setOf(
		"ui", "ux", "interface", "usability", "intuitive", "confusing", "workflow", "workflows",
		"navigation", "clunky", "usable",
	)},
}

// integrationFallback forces the Integration facet when no prioritized facet
// matched but the statement still talks about programmatic access.
var integrationFallback = []string{"api", "integration", "webhook"}

// Facets lists every facet label in priority order, followed by Other.
func Facets() []string {
	out := make([]string, 0, len(facetPriority)+1)
	for _, rule := range facetPriority {
		out = append(out, rule.name)
	}
	return append(out, FacetOther)
}

// PrimaryFacet picks a single facet label for a content-token set.
func PrimaryFacet(tokens TokenSet) string {
	for _, rule := range facetPriority {
		if rule.keywords.Intersects(tokens) {
			return rule.name
		}
	}
	if tokens.HasAny(integrationFallback...) {
		return FacetIntegration
	}
	return FacetOther
}
