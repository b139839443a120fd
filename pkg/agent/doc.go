// Package agent holds the conversation data model shared by the relay and
// the LLM provider adapters that back it.
//
// Invariants:
//   - Every Message carries exactly one Role from a closed set; Classify fails
//     the whole call on anything else.
//   - Transcripts only grow. Append returns a new value and Snapshots never
//     observe later appends.
//   - Providers are synchronous and safe for concurrent use.
//
// Usage:
//
//	factory := &agent.ProviderFactory{Credentials: creds}
//	provider, _ := factory.NewProvider(ctx, agent.ProviderAnthropic)
//	resp, _ := provider.Call(ctx, agent.LLMRequest{
//		Model:    "claude-3-7-sonnet-latest",
//		Messages: []agent.Message{agent.HumanMessage("hello")},
//	})
//	_ = resp.Content
package agent
