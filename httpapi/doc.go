// Package httpapi serves the key-value stores over plain HTTP.
//
// Every command maps to one method and path and answers with a text body:
//
//	PUT    /{key}                      set (body is the value)        OK
//	PUT    /{key}/{seconds}            set with expiry                OK
//	GET    /{key}                      get                            value or (nil)
//	DELETE /{key}                      delete                         OK or (nil)
//	GET    /                           number of keys
//	PATCH  /{key}                      increment                      (integer) N
//	POST   /{key}                      zadd (body is member=value)    (integer) 1
//	GET    /zcard/{key}                cardinality
//	GET    /{key}/{value}              rank of value, -1 when absent
//	GET    /zrange/{key}?start=&stop=  numbered range listing
//	GET    /all, /zall                 JSON dumps
//
// Static paths take precedence, so keys named all, zall, zcard, zrange,
// metrics or ping are not reachable through GET.
package httpapi
