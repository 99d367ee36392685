// Package lua runs Lua scripts against the key-value stores.
//
// Scripts see KEYS and ARGV tables and a redis table whose call and
// pcall functions dispatch GET, SET, DEL, INCR, DBSIZE, KEYS, ZADD,
// ZCARD, ZRANK and ZRANGE. Loaded scripts are cached by SHA1 for
// EVALSHA. Only the base, table, string and math libraries are opened
// and every execution is bounded by a timeout.
package lua
