// Package graph builds and validates the executable form of a workflow.
//
// Validation and contraction happen entirely at build time. The full edge
// set is decomposed into strongly-connected components; any component that
// cycles without an explicitly marked feedback edge is rejected as a
// structural error. Each legal component becomes a cycle group and is
// contracted into a single schedulable unit, so the scheduler always walks
// a DAG: the condensation of the original graph.
package graph
