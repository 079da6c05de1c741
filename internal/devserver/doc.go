// Package devserver is an in-memory stand-in for the proxy backend. It
// serves the same REST and websocket surface the real proxy exposes, so
// the client can be exercised end to end without Ollama or Qdrant
// running. State lives in a single QueueManager; the /api/test routes
// drive request lifecycles by hand.
package devserver
