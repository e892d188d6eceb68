// Package chunkmerger reassembles contiguous SSL read/write fragments from
// the same connection into whole HTTP messages, so the downstream parser
// never sees a request or response split across 32KiB probe captures.
package chunkmerger

import "github.com/agentsight/agentsight/internal/eventmodel"

// Key identifies one logical byte stream: a single thread's calls to one
// libssl function on one connection. Fragments under the same Key are
// assumed to arrive in order — out-of-order fragments on a single TLS
// session are not reordered, per the single-thread-per-session model.
type Key struct {
	Pid      uint32
	Tid      uint32
	Function eventmodel.SSLFunction
}

const shardCount = 16

func shardIndex(k Key) int {
	h := uint32(2166136261)
	h = (h ^ k.Pid) * 16777619
	h = (h ^ k.Tid) * 16777619
	for i := 0; i < len(k.Function); i++ {
		h = (h ^ uint32(k.Function[i])) * 16777619
	}
	return int(h % shardCount)
}
