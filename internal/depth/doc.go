// Package depth decodes incremental depth-update messages and applies them to a
// book.
//
// Wire shape (one JSON object per text frame):
//
//	{"e":"depthUpdate","E":1700000000000,"s":"BNBBTC","U":157,"u":160,
//	 "b":[["0.0024","10"]],"a":[["0.0026","100"]]}
//
// Only "b" and "a" drive book mutation. The envelope fields are kept for logging
// and the top-of-book recorder.
package depth
