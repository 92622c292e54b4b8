// Package sqlsplit splits SQL text into individually executable statements.
//
// The splitter is not a parser. It runs a single left-to-right scan over the
// input and only tracks enough lexical state to know whether a semicolon is a
// statement boundary:
//
//   - line comments (-- ...) and block comments (/* ... */)
//   - single-quoted strings, where '' is the only escape
//   - double-quoted identifiers
//   - dollar-quoted bodies ($$ ... $$ or $tag$ ... $tag$), closed only by the
//     exact opening tag
//
// Anonymous code blocks (DO $$ ... $$) end at their closing tag even when the
// author left out the trailing semicolon, so the block never swallows the
// statements that follow it.
//
// Comments are kept verbatim inside the statement they belong to. Chunks that
// hold nothing but whitespace or comments are dropped.
//
// Example:
//
//	stmts := sqlsplit.Split("select ';' as x; select 2;")
//	// []string{"select ';' as x;", "select 2;"}
package sqlsplit
