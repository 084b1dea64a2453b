package redis

// Redis key naming conventions for odoosync state.
// All keys are prefixed with "odoosync:" to avoid collisions.

const keyPrefix = "odoosync:"

// lockKey returns the key of a named lock: odoosync:lock:{name}
func lockKey(name string) string { return keyPrefix + "lock:" + name }

// intKey returns the key of a kv integer: odoosync:kv:int:{name}
func intKey(name string) string { return keyPrefix + "kv:int:" + name }

// timeKey returns the key of a kv timestamp: odoosync:kv:time:{name}
func timeKey(name string) string { return keyPrefix + "kv:time:" + name }
