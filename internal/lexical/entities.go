package lexical

// businessEntities are named platforms and system classes that make two
// statements about "the same thing". Multi-word names are matched as n-grams.
var businessEntities = setOf(
	"salesforce", "hubspot", "netsuite", "sap", "oracle", "shopify", "magento",
	"woocommerce", "bigcommerce", "quickbooks", "xero", "zendesk", "intercom", "freshdesk",
	"slack", "jira", "stripe", "paypal", "amazon", "ebay", "ups", "fedex", "dhl",
	"usps", "excel", "google sheets", "power bi", "tableau", "looker", "snowflake",
	"microsoft dynamics", "dynamics", "workday", "okta", "sftp", "edi", "3pl", "erp", "crm",
	"api", "tms", "pos",
)

func entityMentions(tokens TokenSet) TokenSet {
	return intersect(tokens, businessEntities)
}

// Entities returns the business entity mentions found in normalized text.
func Entities(normalized string) TokenSet {
	return entityMentions(ContentTokens(normalized))
}

// genericEntities are system classes rather than specific products.
var genericEntities = setOf("api", "erp", "crm", "3pl", "edi", "sftp", "tms", "pos")

// NamedEntities drops generic system classes, leaving specific products.
func NamedEntities(entities TokenSet) TokenSet {
	out := TokenSet{}
	for entity := range entities {
		if !genericEntities.Has(entity) {
			out[entity] = struct{}{}
		}
	}
	return out
}
