package lexical

// VocabFlag marks a vocabulary class a statement draws from.
type VocabFlag uint16

const (
	VocabAutomated VocabFlag = 1 << iota
	VocabManual
	VocabOperations
	VocabFinance
	VocabPricing
	VocabSupport
	VocabPilot
	VocabProduction
)

// Vocab records which conflict-relevant vocabulary classes a statement uses
// plus the bridging terms that can reconcile two sides of a conflict.
type Vocab struct {
	Flags VocabFlag
	// DeliveryContext holds qualifying terms shared by automated and manual work.
	DeliveryContext TokenSet
	// StakeholderBridge holds business-problem terms common to ops and finance.
	StakeholderBridge TokenSet
	// ModalityBridge holds terms tying commercial terms to service.
	ModalityBridge TokenSet
}

// Has reports whether every given flag is set.
func (v Vocab) Has(flag VocabFlag) bool {
	return v.Flags&flag == flag
}

// Only reports that flag is set and other is not.
func (v Vocab) Only(flag, other VocabFlag) bool {
	return v.Has(flag) && !v.Has(other)
}

func classifyVocab(tokens TokenSet) Vocab {
	var v Vocab
	for _, class := range vocabClasses {
		if class.terms.Intersects(tokens) {
			v.Flags |= class.flag
		}
	}
	v.DeliveryContext = intersect(tokens, deliveryContextTerms)
	v.StakeholderBridge = intersect(tokens, stakeholderBridgeTerms)
	v.ModalityBridge = intersect(tokens, modalityBridgeTerms)
	return v
}

func intersect(tokens, vocabulary TokenSet) TokenSet {
	out := TokenSet{}
	for term := range vocabulary {
		if tokens.Has(term) {
			out[term] = struct{}{}
		}
	}
	return out
}

var vocabClasses = []struct {
	flag  VocabFlag
	terms TokenSet
}{
	{VocabAutomated, setOf(
		"automated", "automation", "automatic", "automatically", "auto", "self-service",
		"api", "scheduled", "real-time", "hands-off", "no-touch",
	)},
	{VocabManual, setOf(
		"manual", "manually", "human", "humans", "spreadsheet", "spreadsheets",
		"copy paste", "phone", "phone call", "white-glove", "concierge",
	)},
	{VocabOperations, setOf(
		"operations", "ops", "warehouse", "fulfillment", "shipping", "logistics", "inventory",
		"3pl", "picking", "dispatch", "supply chain", "operators", "floor",
	)},
	{VocabFinance, setOf(
		"finance", "financial", "accounting", "accountants", "cfo", "controller", "ledger",
		"reconciliation", "invoice", "invoices", "billing", "payables", "receivables",
		"revenue", "audit",
	)},
	{VocabPricing, setOf(
		"price", "prices", "pricing", "cost", "costs", "tier", "tiers", "discount", "fee",
		"fees", "subscription", "contract", "quote", "license", "licensing", "expensive",
		"cheap", "renewal", "seats",
	)},
	{VocabSupport, setOf(
		"support", "helpdesk", "ticket", "tickets", "response time", "csm", "account manager",
		"escalation", "agent", "agents", "service team", "support team",
	)},
	{VocabPilot, setOf(
		"pilot", "trial", "trials", "evaluation", "evaluating", "sandbox", "beta", "test run",
		"prototype",
	)},
	{VocabProduction, setOf(
		"production", "steady-state", "steady state", "live", "go-live", "rollout",
		"day-to-day", "ongoing", "full deployment",
	)},
}

var deliveryContextTerms = setOf(
	"hybrid", "fallback", "exception", "exceptions", "override", "backup", "handoff",
	"approval", "review", "edge cases",
)

var stakeholderBridgeTerms = setOf(
	"cash flow", "margin", "margins", "working capital", "visibility", "accuracy",
	"month-end", "close", "errors", "reconcile", "forecast", "forecasting", "costs",
	"order-to-cash",
)

var modalityBridgeTerms = setOf(
	"support plan", "support tier", "premium support", "sla", "slas", "included",
	"package", "packages", "bundle", "service level", "add-on", "value",
)
