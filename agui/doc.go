// Package agui adapts the bridge to the AG-UI protocol.
//
// AG-UI (Agent-User Interface) is an event-based protocol that standardizes
// how agents stream output to user-facing applications. This package holds
// the protocol-facing pieces of the bridge:
//
//   - [RunAgentInput]: the decoded run request
//   - [Translator]: the stateful converter from runtime events to AG-UI events
//   - [Mapper]: run lifecycle and error events for one thread and run
//   - message helpers for reading AG-UI messages
//
// # Translation
//
// A Translator is created per execution. It tracks the open text message so
// that AG-UI's START, CONTENT, END pattern is respected even when the runtime
// streams partial chunks and then repeats the full text as a final event:
//
//	tr := agui.NewTranslator(agui.WithLogger(logger))
//	for ev, err := range runner.Run(ctx, inv) {
//	    if err != nil {
//	        break
//	    }
//	    for _, out := range tr.Translate(ev, threadID, runID) {
//	        emit(out)
//	    }
//	}
//	for _, out := range tr.ForceCloseStreamingMessage() {
//	    emit(out)
//	}
//
// # Thread Safety
//
// Translator and Mapper are NOT safe for concurrent use. Each execution owns
// its own instances. Message helpers are stateless.
package agui
