// Package server exposes the key-value stores over RESP so standard
// clients such as github.com/redis/go-redis can talk to them.
//
// Supported commands:
//   - Connection: PING, ECHO, AUTH, QUIT, CLIENT SETNAME|GETNAME|SETINFO
//   - Scalar: SET [EX seconds], GET, DEL, INCR, DBSIZE, KEYS
//   - Ranked: ZADD key member=value..., ZCARD, ZRANK, ZRANGE
//   - Scripting: EVAL, EVALSHA, SCRIPT LOAD|EXISTS|FLUSH
//
// HELLO is rejected so clients fall back to RESP2.
package server
