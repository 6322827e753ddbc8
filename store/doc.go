// Package store defines the persistence contracts for user accounts and
// database access keys, with an in-memory implementation for
// single-process deployments and a Postgres implementation for shared
// multi-tenant databases.
package store
