// Package redisstore implements account.Store on Redis.
//
// Each account is a hash under {prefix}:acct:<id>, with string keys
// {prefix}:email:<normalized email> and {prefix}:verify:<token digest>
// pointing back at the id. The prefix is wrapped in a hash tag so every key
// lands in one cluster slot and the Lua scripts may touch them together.
package redisstore
