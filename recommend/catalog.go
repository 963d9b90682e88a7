package recommend

import "github.com/BaSui01/flowroute/types"

// candidate is one catalog entry: a building block with its base score and
// the keywords that boost it when present in the request text.
type candidate struct {
	nodeID       string
	category     types.NodeCategory
	base         float64
	performance  int
	community    int
	keywords     []string
	alternatives []string
}

// catalog maps each intent to its candidate building blocks, best-first by
// base confidence. Scores are curated from observed workflow usage.
var catalog = map[types.Intent][]candidate{
	types.IntentEmailAutomation: {
		{
			nodeID:       "email-send",
			category:     types.CategoryAction,
			base:         0.9,
			performance:  80,
			community:    92,
			keywords:     []string{"send", "notify", "report"},
			alternatives: []string{"gmail-send", "sendgrid"},
		},
		{
			nodeID:       "imap-trigger",
			category:     types.CategoryTrigger,
			base:         0.7,
			performance:  70,
			community:    85,
			keywords:     []string{"incoming", "receive", "inbox", "arrive"},
			alternatives: []string{"gmail-trigger"},
		},
		{
			nodeID:      "template-render",
			category:    types.CategoryTransform,
			base:        0.55,
			performance: 88,
			community:   78,
			keywords:    []string{"template", "format", "personalize"},
		},
	},
	types.IntentAIWorkflow: {
		{
			nodeID:       "llm-chat",
			category:     types.CategoryAI,
			base:         0.9,
			performance:  55,
			community:    95,
			keywords:     []string{"summarize", "summarise", "chatbot", "assistant", "generate"},
			alternatives: []string{"llm-completion", "local-model"},
		},
		{
			nodeID:       "text-classifier",
			category:     types.CategoryAI,
			base:         0.7,
			performance:  65,
			community:    82,
			keywords:     []string{"classify", "sentiment", "categorize", "label"},
			alternatives: []string{"embedding-search"},
		},
		{
			nodeID:      "prompt-builder",
			category:    types.CategoryTransform,
			base:        0.6,
			performance: 90,
			community:   74,
			keywords:    []string{"prompt", "context"},
		},
	},
	types.IntentDataProcessing: {
		{
			nodeID:       "csv-parse",
			category:     types.CategoryTransform,
			base:         0.85,
			performance:  90,
			community:    88,
			keywords:     []string{"csv", "spreadsheet", "parse"},
			alternatives: []string{"xlsx-parse", "json-parse"},
		},
		{
			nodeID:       "field-map",
			category:     types.CategoryTransform,
			base:         0.75,
			performance:  92,
			community:    84,
			keywords:     []string{"transform", "map", "rename", "convert"},
			alternatives: []string{"code"},
		},
		{
			nodeID:       "db-write",
			category:     types.CategoryAction,
			base:         0.65,
			performance:  75,
			community:    86,
			keywords:     []string{"database", "store", "insert", "export"},
			alternatives: []string{"postgres-write", "mysql-write"},
		},
		{
			nodeID:      "deduplicate",
			category:    types.CategoryTransform,
			base:        0.5,
			performance: 85,
			community:   72,
			keywords:    []string{"deduplicate", "duplicate", "unique"},
		},
	},
	types.IntentAPIIntegration: {
		{
			nodeID:       "http-request",
			category:     types.CategoryIntegration,
			base:         0.9,
			performance:  85,
			community:    96,
			keywords:     []string{"api", "rest", "endpoint", "fetch"},
			alternatives: []string{"graphql-request"},
		},
		{
			nodeID:       "webhook-trigger",
			category:     types.CategoryTrigger,
			base:         0.8,
			performance:  88,
			community:    93,
			keywords:     []string{"webhook", "callback", "receive"},
			alternatives: []string{"poll-trigger"},
		},
		{
			nodeID:      "error-catch",
			category:    types.CategoryErrorHandling,
			base:        0.6,
			performance: 95,
			community:   80,
			keywords:    []string{"retry", "failure", "fallback"},
		},
		{
			nodeID:       "auth-header",
			category:     types.CategoryTransform,
			base:         0.55,
			performance:  94,
			community:    76,
			keywords:     []string{"oauth", "token", "auth"},
			alternatives: []string{"oauth2-credential"},
		},
	},
	types.IntentScheduling: {
		{
			nodeID:       "cron-trigger",
			category:     types.CategoryTrigger,
			base:         0.9,
			performance:  95,
			community:    94,
			keywords:     []string{"cron", "schedule", "recurring", "daily", "weekly"},
			alternatives: []string{"interval-trigger"},
		},
		{
			nodeID:      "calendar-read",
			category:    types.CategoryIntegration,
			base:        0.6,
			performance: 72,
			community:   79,
			keywords:    []string{"calendar", "event", "meeting"},
		},
		{
			nodeID:      "delay",
			category:    types.CategoryTransform,
			base:        0.5,
			performance: 98,
			community:   70,
			keywords:    []string{"wait", "delay", "after"},
		},
	},
	types.IntentNotification: {
		{
			nodeID:       "slack-post",
			category:     types.CategoryAction,
			base:         0.9,
			performance:  82,
			community:    95,
			keywords:     []string{"slack", "channel", "team"},
			alternatives: []string{"discord-post", "teams-post"},
		},
		{
			nodeID:       "sms-send",
			category:     types.CategoryAction,
			base:         0.65,
			performance:  78,
			community:    81,
			keywords:     []string{"sms", "phone", "text message"},
			alternatives: []string{"push-send"},
		},
		{
			nodeID:      "alert-dedupe",
			category:    types.CategoryTransform,
			base:        0.5,
			performance: 90,
			community:   68,
			keywords:    []string{"alert", "noise", "throttle"},
		},
	},
}

// patterns is the curated library of proven node combinations.
var patterns = []types.WorkflowPattern{
	{
		ID:          "order-email-loop",
		Description: "Trigger on an inbound event, render a template, and send email",
		Intent:      types.IntentEmailAutomation,
		Nodes:       []string{"webhook-trigger", "template-render", "email-send"},
		SuccessRate: 0.94,
	},
	{
		ID:          "digest-mailer",
		Description: "Scheduled digest: collect records, render, and mail a summary",
		Intent:      types.IntentEmailAutomation,
		Nodes:       []string{"cron-trigger", "db-write", "template-render", "email-send"},
		SuccessRate: 0.91,
	},
	{
		ID:          "summarize-and-route",
		Description: "Summarize inbound text with an LLM and post the result",
		Intent:      types.IntentAIWorkflow,
		Nodes:       []string{"webhook-trigger", "prompt-builder", "llm-chat", "slack-post"},
		SuccessRate: 0.88,
	},
	{
		ID:          "classify-triage",
		Description: "Classify inbound items and branch on the predicted label",
		Intent:      types.IntentAIWorkflow,
		Nodes:       []string{"imap-trigger", "text-classifier", "field-map"},
		SuccessRate: 0.86,
	},
	{
		ID:          "csv-to-db",
		Description: "Parse an uploaded CSV, map fields, and load into a database",
		Intent:      types.IntentDataProcessing,
		Nodes:       []string{"csv-parse", "field-map", "deduplicate", "db-write"},
		SuccessRate: 0.93,
	},
	{
		ID:          "resilient-api-sync",
		Description: "Call a third-party API with retry and error capture",
		Intent:      types.IntentAPIIntegration,
		Nodes:       []string{"webhook-trigger", "auth-header", "http-request", "error-catch"},
		SuccessRate: 0.9,
	},
	{
		ID:          "nightly-cleanup",
		Description: "Cron-driven maintenance over stored records",
		Intent:      types.IntentScheduling,
		Nodes:       []string{"cron-trigger", "db-write", "slack-post"},
		SuccessRate: 0.95,
	},
	{
		ID:          "deploy-announce",
		Description: "Announce pipeline events to a chat channel with deduping",
		Intent:      types.IntentNotification,
		Nodes:       []string{"webhook-trigger", "alert-dedupe", "slack-post"},
		SuccessRate: 0.92,
	},
}

// nodeCategory indexes every catalog node by its category, used to inspect
// the nodes a caller reports as already present in the workflow.
var nodeCategory = func() map[string]types.NodeCategory {
	m := make(map[string]types.NodeCategory)
	for _, cands := range catalog {
		for _, c := range cands {
			m[c.nodeID] = c.category
		}
	}
	return m
}()

// patternsFor returns the curated patterns for one intent.
func patternsFor(intent types.Intent) []types.WorkflowPattern {
	out := []types.WorkflowPattern{}
	for _, p := range patterns {
		if p.Intent == intent {
			out = append(out, p)
		}
	}
	return out
}
