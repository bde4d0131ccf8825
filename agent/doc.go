// Package agent is the execution core for one or more conversational agents.
//
// An Instance owns a lazily built Runtime, a dedicated worker goroutine and
// a per-turn result mailbox. Callers drive it without blocking: Send starts
// a turn on the worker, Poll drains results once per frame, Cancel signals
// the cooperative CancellationToken observed by the runtime. Middleware runs
// around every turn and the injection scheduler may queue follow-up turns.
//
// Manager keeps a registry of instances, spawns worker agents under a task
// manager and routes worker completions back to the tool that started them.
package agent
