// Package ir holds the canonical form of experiment inputs.
//
// Configs and parameter files are free-form JSON objects. Two runs are the
// same experiment when their inputs are equal as JSON values, regardless of
// key order, whitespace or Unicode normalization, so identity is computed
// from an RFC 8785 canonical serialization hashed with domain separation.
//
// ir imports nothing internal.
package ir
