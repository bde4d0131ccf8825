/*
Package server hosts the local HTTP surface used by the renderer.

Manager owns the http.Server lifecycle on a listener capped with
netutil.LimitListener. NewMux serves /healthz (dependency checks),
/metrics (Prometheus) and /events, where EventHub streams agent UI
events as JSON text frames over websocket.
*/
package server
