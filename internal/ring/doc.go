// Package ring implements a consistent hashing ring with virtual nodes and
// resource-aware admission. It maps entities to distinct physical nodes,
// minimizes movement when membership changes, and skips nodes whose
// advertised budget cannot cover an entity's consumption.
package ring
