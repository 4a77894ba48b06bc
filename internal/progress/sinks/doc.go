// Package sinks implements concrete progress consumers. LogSink writes each
// event as a structured zap entry and PrometheusSink turns the per-URL stage
// stream into job and render collectors.
package sinks
