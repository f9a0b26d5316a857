// Package toolproxy exposes client-declared tools to the agent runtime.
//
// A client lists tools it can execute itself (confirm dialogs, pickers,
// anything needing a human) in each run request. The Registry wraps each
// declaration in a Proxy: a long-running runtime.Tool that, when invoked,
// announces the call to the client as TOOL_CALL_START, ARGS and END and
// returns immediately without a result. The client answers in a later run
// with a tool message.
package toolproxy
