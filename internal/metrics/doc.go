/*
Package metrics records Prometheus metrics for agent turns, state
transitions, sandbox executions, middleware and injection events, tool calls,
HTTP requests and the snapshot cache.

Collector registers its vectors through promauto under a caller-supplied
namespace. All Record methods are safe on a nil *Collector so components can
run without metrics.
*/
package metrics
