// Package acquire pulls tab snapshots from the browser extension over a WebSocket.
//
// The policy loop asks for a refresh with Request; the listener goroutine (Run)
// turns that into an empty wake frame broadcast to every connected extension.
// Each connection has its own receiver that parses the text frame the extension
// answers with, resolves renderer ids to pids, replaces the status store and
// reports the outcome on Results.
//
// Both queues hold one element. Requests are dropped when one is already
// pending; results overwrite an unread one. Responses carry no request id, so a
// late answer to an abandoned request is applied like a fresh one.
//
// Example Usage:
//
//	ch := acquire.New(store, process.NewSystemSampler(), detector.RendererDetector{})
//	go ch.Run(ctx)
//	srv := acquire.NewServer("127.0.0.1:60000", ch)
package acquire
