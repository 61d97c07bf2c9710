// Package session implements the per-proxy-connection context: identity,
// the acquired rules-engine handle and connection object, and the
// txn_count/closing protocol that decides which of {last transaction
// close, session close} tears the session down.
package session
