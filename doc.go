// Package aguibridge connects a stateful conversational agent runtime to
// clients speaking the AG-UI protocol over server-sent events.
//
// A client posts the full message history of a thread on every run. The
// bridge works out which messages it has not consumed yet, drives the agent
// runtime with exactly that input, and streams the runtime's output back as
// ordered AG-UI events.
//
// # Packages
//
//   - [github.com/spetersoncode/aguibridge/runtime]: the contract an agent runtime implements
//   - [github.com/spetersoncode/aguibridge/agui]: request decoding and runtime-to-AG-UI event translation
//   - [github.com/spetersoncode/aguibridge/session]: per-thread session state, processed ids and expiry
//   - [github.com/spetersoncode/aguibridge/toolproxy]: client-executed (human-in-the-loop) tools
//   - [github.com/spetersoncode/aguibridge/execution]: message classification and execution orchestration
//   - [github.com/spetersoncode/aguibridge/dispatch]: the HTTP/SSE boundary
//   - [github.com/spetersoncode/aguibridge/llm]: a reference runtime backed by chat models
//
// # Human-in-the-loop tools
//
// Tools declared by the client are exposed to the runtime as long-running
// proxies. When the model calls one, the bridge emits TOOL_CALL_START, ARGS
// and END, ends the run, and records the call as pending on the session.
// The client executes the tool and posts a tool message carrying the result;
// the next run resumes the conversation with that result.
//
//	sessions := session.NewManager(session.NewMemoryStore())
//	defer sessions.Stop()
//
//	mgr, err := execution.NewManager(runner, agent, sessions)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Close()
//
//	http.Handle("/agent", dispatch.New(dispatch.SingleAgent(mgr)))
package aguibridge
