// Package message defines the conversation turn exchanged with the agent backend.
//
// # Roles
//
//   - user: text typed by the person at the keyboard; content is never empty
//   - assistant: either a natural-language reply or a tool-call request with
//     null content and a non-empty ToolCalls list
//   - tool: the result of one tool invocation, correlated by ToolCallID
//
// # Wire Format
//
// Messages marshal to the JSON shape the backend expects in POST /chat and
// POST /chat/messages. A nil Content marshals as "content": null:
//
//	{"role":"assistant","content":null,"tool_calls":[{"id":"1","type":"function",...}]}
//	{"role":"tool","content":"[]","tool_call_id":"1","name":"list_events"}
package message
