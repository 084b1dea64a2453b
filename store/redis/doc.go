// Package redis provides the cross-process coordination pieces on Redis:
// a lock.Locker built on SET NX PX with an owner-token compare-and-delete
// release, and a kv.Store holding circuit breaker counters and
// notification cooldowns.
//
// Jobs and mappings stay in a SQL backend; this package only replaces the
// state every process must agree on.
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
