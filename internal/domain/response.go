package domain

// ToolCall records one tool invocation requested by a model.
type ToolCall struct {
	// Name matches a ToolDefinition.Name from the variant configuration.
	Name string `json:"name"`

	// Arguments is the decoded argument payload supplied by the model.
	Arguments map[string]any `json:"arguments"`
}

// ProviderResponse is the normalized result of a single provider call.
// It is produced once per task, either from a live call or from the cache,
// and is immutable after creation.
type ProviderResponse struct {
	// Content is the free-text completion. May be empty when the model
	// responded exclusively with tool calls.
	Content string `json:"content"`

	// ToolCalls lists tool invocations in the order the model emitted them.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// InputTokens and OutputTokens are the provider-reported usage counts,
	// falling back to an estimate when the provider omits them.
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	// LatencyMS is the wall-clock duration of the live call in
	// milliseconds. Cached responses carry the originally recorded value.
	LatencyMS int `json:"latency_ms"`

	// Raw preserves an opaque diagnostic payload from the provider.
	Raw map[string]any `json:"raw,omitempty"`
}
