// Package database records the history of index runs in SQLite.
//
// Every bootstrap and update writes one row to index_runs with its counts,
// failures and outcome. The index documents themselves live in JSON files;
// this table only answers "what ran, when, and how did it go".
package database
