// Package telemetry initializes the OpenTelemetry SDK and provides the span
// helpers agent runtimes use for turns, model calls and tool calls.
package telemetry
