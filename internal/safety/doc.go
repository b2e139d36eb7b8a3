// Package safety provides the runtime guards that keep the utopian agent from
// touching more of the host than it needs.
//
// The agent runs a remote model in a loop and writes whatever that model
// produces into the node directory. The only host programs it may start are
// the ones its content pipeline needs, and every path that arrives from a
// model or a remote tool call is confined to the node root.
//
// # Threat Model
//
// T1 - Arbitrary Command Execution: Model output or tool arguments could name
// any program on the host. Mitigations: a closed, name-based allow-list
// (marp, ffmpeg, git, mflux-generate, lms), bare names only (no path
// separators), array-based execution that never goes through a shell, and
// caller-supplied values placed after "--" or rejected when they start with
// "-" so they cannot turn into options of an allowed program.
// The allow-list is a filter, not a sandbox: an allowed program runs with the
// full privileges of the agent process.
//
// T2 - Path Traversal: Paths supplied by a model or an MCP client could escape
// the node via "..", absolute paths, or "~". Mitigation: storage.Store.Resolve
// confines them to the node root before any read or write.
//
// T3 - Runaway Generation: An unattended loop can call the chat API forever.
// Mitigations: a hard iteration ceiling, delays between cycles (longer after a
// failure), and context cancellation on SIGINT/SIGTERM.
//
// T4 - Unreviewed Changes: Generated content lands on disk without review.
// Mitigations: HITL preview files under .utopia/hitl are always written, and
// interactive runs require an explicit "y" before proceeding.
//
// # Design Principles
//
// Fail before spawning: a disallowed name never reaches exec, so a rejected
// command has no side effect at all.
//
// No hidden retries or timeouts: Runner.Run does exactly one attempt and
// honors only the caller's context.
package safety
