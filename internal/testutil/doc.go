// Package testutil contains helpers shared by package tests: stub runtimes
// and compilers, a hand-driven scheduler, an event recorder, a session
// builder and a tiny WebAssembly encoder for compiled agent fixtures. They
// are not intended for production usage.
package testutil
