// Package audit queues security events and hands them to a Sink off the
// request path.
//
// [Dispatcher] owns one worker goroutine and a bounded queue. When the queue
// is full it either drops the event (counted in Dropped) or blocks the caller
// until room frees up, the caller's context ends, or Close runs. Close
// delivers whatever is still queued.
//
// Sinks: [ChannelSink] for tests and in-process consumers, [JSONWriterSink]
// for newline-delimited JSON, [LogrusSink] for structured logs, and
// [SinkFunc] for anything else.
//
// # Architecture boundaries
//
// The engine decides which events exist and what they carry. This package
// only moves them.
//
// # What this package must NOT do
//
//   - Filter events.
//   - Import ctxAuth or sibling internal packages.
package audit
