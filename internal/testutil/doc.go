// Package testutil contains helpers used across tests to script model turns
// and inspect the requests agents send. They are not intended for
// production usage.
package testutil
