// Package buffer provides a bounded, thread-safe ring that keeps the most
// recent values pushed to it. The serve command uses it to retain the latest
// flow events so late websocket subscribers can replay them.
package buffer
