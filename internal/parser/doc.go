// Package parser implements the core.Parser port.
//
// Builtin is an in-process recursive descent parser for the SELECT,
// INSERT ... SELECT, CREATE TABLE ... AS and CREATE VIEW ... AS statements
// that carry column lineage. It is used when no parser command is
// configured.
//
// A Command parser runs an external program per statement, writes a JSON
// request on its stdin and reads a cytoscape-style element list from its
// stdout:
//
//	request:  {"sql": "...", "dialect": "hive", "metadata": {"db.t": ["a", "b"]}}
//	response: [{"data": {"id": "db.t.a", "type": "Column",
//	            "parent_candidates": [{"type": "Table", "name": "db.t"}]}},
//	           {"data": {"id": "e1", "source": "db.t.a", "target": "db.u.a"}}]
//
// Elements carrying both source and target are edges; everything else is a
// node. Both parsers emit the same id conventions, so the engine cannot tell
// them apart.
package parser
