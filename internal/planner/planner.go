// Package planner builds structured queries for the document store REST API.
// It translates org, administration, user and assignment lookups into
// runQuery and runAggregationQuery request bodies, and evaluates the same
// filter trees in memory for tests and the local store.
package planner
