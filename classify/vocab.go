package classify

import "github.com/BaSui01/flowroute/types"

// vocabTerm is one weighted phrase in an intent vocabulary. Matching is
// substring-based on the normalized input, so multi-word phrases work.
type vocabTerm struct {
	term   string
	weight float64
}

// intentVocab holds the per-intent domain vocabularies. Weights favor
// distinctive phrases over generic single words.
var intentVocab = map[types.Intent][]vocabTerm{
	types.IntentEmailAutomation: {
		{"email", 2.0},
		{"e-mail", 2.0},
		{"gmail", 2.0},
		{"inbox", 1.5},
		{"newsletter", 1.5},
		{"mailing list", 1.5},
		{"smtp", 1.5},
		{"imap", 1.5},
		{"attachment", 1.0},
	},
	types.IntentAIWorkflow: {
		{"ai ", 1.5},
		{"llm", 2.0},
		{"gpt", 2.0},
		{"chatbot", 2.0},
		{"assistant", 1.5},
		{"summarize", 1.5},
		{"summarise", 1.5},
		{"sentiment", 1.5},
		{"classify text", 1.5},
		{"generate content", 1.5},
		{"embedding", 1.5},
		{"prompt", 1.0},
	},
	types.IntentDataProcessing: {
		{"csv", 2.0},
		{"spreadsheet", 2.0},
		{"etl", 2.0},
		{"transform data", 2.0},
		{"parse", 1.5},
		{"deduplicate", 1.5},
		{"aggregate", 1.5},
		{"database", 1.0},
		{"export", 1.0},
		{"import", 1.0},
	},
	types.IntentAPIIntegration: {
		{"api", 2.0},
		{"webhook", 2.0},
		{"integration", 1.5},
		{"integrate", 1.5},
		{"rest", 1.5},
		{"graphql", 1.5},
		{"endpoint", 1.5},
		{"third-party", 1.0},
		{"crm", 1.0},
		{"salesforce", 1.5},
	},
	types.IntentScheduling: {
		{"schedule", 2.0},
		{"cron", 2.0},
		{"every day", 1.5},
		{"every week", 1.5},
		{"daily", 1.5},
		{"weekly", 1.5},
		{"monthly", 1.5},
		{"recurring", 1.5},
		{"calendar", 1.5},
		{"reminder", 1.0},
	},
	types.IntentNotification: {
		{"slack", 2.0},
		{"notify", 1.5},
		{"alert", 1.5},
		{"notification", 1.0},
		{"sms", 1.5},
		{"push message", 1.5},
		{"telegram", 1.5},
		{"discord", 1.5},
	},
}

// baseComplexity is the starting complexity score per intent.
var baseComplexity = map[types.Intent]float64{
	types.IntentEmailAutomation: 2.0,
	types.IntentNotification:    2.0,
	types.IntentScheduling:      2.5,
	types.IntentDataProcessing:  3.0,
	types.IntentAPIIntegration:  4.0,
	types.IntentAIWorkflow:      4.5,
	types.IntentUnknown:         3.0,
}

// Complexity modifier vocabularies. Each matched category adds its weight
// once, regardless of how many of its terms appear.
var (
	securityVocab = []string{
		"security", "credential", "secret", "password", "api key",
		"token", "oauth", "encrypt", "vulnerability", "penetration",
	}

	governanceVocab = []string{
		"compliance", "gdpr", "hipaa", "soc2", "governance",
		"enterprise", "regulated", "audit trail", "data residency",
	}

	integrationVocab = []string{
		"multi-system", "multiple systems", "integration", "integrate",
		"sync across", "connect to", "webhook", "bidirectional",
	}

	realtimeVocab = []string{
		"real-time", "realtime", "low latency", "low-latency",
		"instantly", "immediately", "streaming",
	}
)

const (
	securityWeight    = 2.0
	governanceWeight  = 2.0
	integrationWeight = 1.5
	realtimeWeight    = 1.0

	// Each 5 existing workflow nodes add one complexity point, capped.
	workflowSizeDivisor = 5.0
	workflowSizeCap     = 3.0
)
