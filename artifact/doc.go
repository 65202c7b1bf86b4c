// Package artifact streams incrementally built, schema validated values to
// the caller while a tool runs.
//
// A Definition pairs a name with a JSON schema. Create starts an instance on
// the call's writer and returns a Handle; every Update deep-merges a partial
// value into the current state, validates it and emits the full state.
//
// Merge rule: two records (JSON objects) are merged key by key, recursively.
// Any other combination (arrays, scalars, null) replaces the old value.
package artifact
