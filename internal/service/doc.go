// Package service keeps one session's collection of study groups in sync
// with the remote store.
//
// THE LAYERS:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (this package)   → validates, decides fallback, orchestrates
//	Repository (data layer)  → relation-scoped rows, no domain types
//
// The Coordinator is the only type callers need. It reads with Fetch, writes
// with Create/Join/Leave/Update/Delete, and answers IsMember/IsOwner from the
// collection it publishes.
//
// READ PATH (fetch.go):
//
//	study_groups (newest first)
//	  ├─ profiles            WHERE user_id IN (creator ids)     ┐ concurrently
//	  └─ study_group_members + embedded profiles                ┘
//	→ normalize (normalize.go) → publish
//
// When the backend is not provisioned (missing relation, permission denied,
// unreachable, or something blew up on our side) the fixed dataset from
// fallback.go is published instead, and writes are absorbed locally
// (degrade.go). Any other failure is reported, never hidden.
//
// The Coordinator takes a repository.Store, never a concrete *sqlstore.DB.
package service
