// Copyright (c) AgentDash Authors.
// Licensed under the MIT License.

/*
Package types holds the shared, dependency-free types of the agent runtime.

# Overview

types sits at the bottom of the import graph. agent, agent/middleware,
agent/injection, agent/tools and the internal packages all exchange
identities, roles and messages through it, which keeps those packages free of
import cycles.

# Core types

  - AgentID         — UUID identity minted once per agent instance
  - AgentType       — closed set of agent roles (TaskManager, TaskWorker, PageBuilderWorker)
  - AgentStatus     — Running / Paused / Completed / Failed(msg) / Cancelled
  - LogLevel        — runtime verbosity (Off, Info, Debug, Trace)
  - Message / Role  — model conversation messages including tool calls and results
  - ToolSchema      — tool definition exposed to the model
  - Credentials     — resolved cloud credentials handed to a runtime
*/
package types
