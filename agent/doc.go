// Package agent groups the execution styles an agent can be written in.
// Each subpackage implements core.Runtime and core.Compiler for one style:
//
//   - wasm: sandboxed WebAssembly modules run by wazero
//   - script: JavaScript sources evaluated by goja
//   - builtin: the catalog of agents shipped with gambit
//
// Both runtimes serialize calls per agent, bind a core.Capabilities view for
// the duration of a call and report failures as *core.AgentError.
package agent
