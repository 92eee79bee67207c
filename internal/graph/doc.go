// Package graph models the task dependency graph and derives execution waves.
//
// Tasks form a directed acyclic graph; an edge A -> B means B depends on A.
// Waves are computed by repeated topological leveling: wave 0 holds every
// task with no dependencies, and wave k holds every task whose dependencies
// all sit in waves earlier than k. A cycle is a fatal configuration error
// detected at build time, before any dispatch.
//
// Graphs are loaded from TOML documents:
//
//	[tasks.build]
//	weight = 3
//
//	[tasks.test]
//	weight = 1
//	depends_on = ["build"]
package graph
