// Package audit delivers flow audit events to a Sink from a background
// goroutine.
//
// Sinks: NoOpSink, ChannelSink for tests, JSONWriterSink for JSON lines,
// ZapSink for structured logs, and FanOut to combine them.
//
// The Dispatcher either drops events when its buffer is full (counted in
// Stats) or blocks the emitting flow until space frees up, depending on
// Config.DropIfFull. Close drains whatever is buffered before returning.
//
// Which events exist, and what they contain, is decided by the engine. This
// package never inspects event contents and never imports authflow.
package audit
