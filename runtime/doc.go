// Package runtime defines the contract between the bridge and an agent
// runtime: the events a runtime produces, the tools it can call, the agent
// definition it runs, and the Runner that drives one invocation.
//
// The bridge never calls a model directly. It hands a Runner an Invocation
// (agent, session snapshot and new message) and consumes the Events it
// yields. Tools flagged LongRunning are not awaited by the runtime; their
// results arrive in a later invocation as function responses.
package runtime
