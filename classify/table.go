package classify

// DefaultTable returns the built-in keyword table. Categories are listed in
// tie-break order.
func DefaultTable() Table {
	return Table{
		Categories: []Category{
			{Name: "pricing", Keywords: []string{"price", "pricing", "fee", "charge", "cost", "tier", "billing"}},
			{Name: "data_usage", Label: "Data Usage", Keywords: []string{"data", "collect", "share", "retain", "store", "process", "retention"}},
			{Name: "ip_ai_training", Label: "IP / AI Training", Keywords: []string{"train", "training", "ai", "model", "license", "ip"}},
			{Name: "deprecation", Keywords: []string{"deprecat", "sunset", "remove", "eol", "replacement", "migrate", "discontinue", "end of life"}},
			{Name: "rate_limits", Label: "Rate Limits", Keywords: []string{"rate limit", "quota", "rpm", "rps", "requests per", "throughput"}},
			{Name: "acceptable_use", Label: "Acceptable Use", Keywords: []string{"prohibited", "abuse", "spam", "illegal", "malware", "harmful", "terminate", "suspend", "without notice"}},
			{Name: "privacy", Keywords: []string{"privacy", "gdpr", "ccpa", "pii", "data subject", "controller", "processor"}},
		},
		Default: Category{Name: "general", Label: "General"},
	}
}
