// Package roomcache is the realtime synchronization cache for
// collaborative rooms: the optimistic-concurrency board patch engine,
// the activation lock, the presence tracker, the membership directory
// and the bounded message cache. Everything lives in revisioned
// key-value buckets (see the store package) and is a rebuildable
// projection of the durable store — a cold or corrupt read surfaces as
// nil and callers repopulate from there.
//
// Expected outcomes (lock busy, version conflict, cache miss) are
// returned as values; errors mean the store itself failed.
package roomcache
