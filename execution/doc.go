// Package execution runs an agent runtime on behalf of AG-UI run requests.
//
// A Manager receives the full message history of a thread on every
// request. It classifies the messages it has not seen yet into batches,
// drives the runtime once per batch in a background goroutine and streams
// the translated AG-UI events back to the caller:
//
//	mgr, err := execution.NewManager(runner, agent, sessions,
//		execution.WithMaxConcurrent(20),
//		execution.WithExecutionTimeout(5*time.Minute),
//	)
//	for ev := range mgr.Run(ctx, input) {
//		// encode ev as SSE
//	}
//
// Calls to client-declared tools end the run after the call is announced.
// The call ids stay pending on the thread's session until a later request
// delivers their results as tool messages.
package execution
