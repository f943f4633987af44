// Package fakeagent is a self-contained reference backend for the chat client.
//
// It serves the full backend HTTP surface (auth status and login, session
// CRUD, message persistence and the streamed chat endpoint) on top of
// internal/store, and answers chat requests with a scripted agent:
//
//   - Calendar questions produce a status, a tool-call log entry, the
//     tool call and its result as history_append events, and a final answer.
//   - Anything else gets a markdown reply streamed one word at a time as a
//     growing sequence of answer events.
//
// Word pacing uses a token-bucket limiter so the client sees realistic
// incremental updates. When a JWT secret is configured, calendar tools
// require a bearer token; GET /auth/callback issues one.
package fakeagent
