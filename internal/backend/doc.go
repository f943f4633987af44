// Package backend is the HTTP client for the agent and session service.
//
// # Endpoints
//
//	GET    auth/status          -> {"authenticated": bool}
//	GET    auth/login           -> {"url": "..."}
//	GET    chat/sessions        -> [{"id", "title", "created_at", "updated_at", "message_count"}]
//	POST   chat/sessions        {"title"} -> session
//	GET    chat/sessions/{id}   -> {"messages": [...]}
//	DELETE chat/sessions/{id}
//	POST   chat/messages        {"session_id", "role", "content", ...}
//	POST   chat                 {"messages": [...]} -> NDJSON stream
//
// Chat returns the raw response body; decoding it is the job of package
// stream. Every other call is plain request/response bounded by the
// configured request timeout.
//
// # Degraded Calls
//
// IsAuthenticated and SessionsOrEmpty never fail: errors are logged and
// reported as "not authenticated" and "no sessions".
package backend
