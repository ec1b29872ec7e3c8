// Package rules adapts github.com/notnil/chess to the core.Game boundary.
// Moves cross the boundary in UCI notation and positions as FEN strings.
package rules
