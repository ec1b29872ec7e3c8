// Package core provides the foundational domain types and contracts used by
// gambit. It defines the abstractions shared by every other package:
//
//   - Agents (descriptors, loaded runtimes and the decision contract)
//   - Capabilities (the read-only view of a game an agent may query)
//   - Games (the rules-engine boundary and board snapshots)
//   - Sessions (live games with move history and a generation counter)
//   - Events (notification records published to observers)
//
// Implementation concerns (sandboxes, orchestration, persistence) live in
// their own packages and depend on the small interfaces declared here.
package core
