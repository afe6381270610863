/*
Package types defines the data model shared by every component of the
control plane: data identifiers, subscriptions and their filters, rule
templates and materialized rules, RSEs and their protocols/limits/usage,
replicas, outbox messages, and heartbeats.

All types are plain structs with typed string enums and are JSON-
serializable for storage by pkg/catalog. Optional fields use pointers
(*int64 Lifetime, *time.Time Tombstone) so "unset" is distinguishable
from the zero value.
*/
package types
