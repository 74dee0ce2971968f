// Package core defines the shared language of the lineage engine.
//
// This package contains:
//   - Parser graph entities (Graph, GraphNode, GraphEdge)
//   - Resolved lineage entities (ColumnRef, LineageRecord, JobInfo)
//   - Service interfaces (Parser, MetadataProvider)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
