package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// StateDigest returns a canonical SHA-256 digest of the full mutable
// state: step counter plus every agent's wealth, position and idle
// counter in id order. Two engines with the same config and seed produce
// the same digest sequence.
func (e *Engine) StateDigest() string {
	h := sha256.New()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	put(e.step)
	put(uint64(len(e.agents)))
	for _, a := range e.agents {
		put(uint64(int64(a.Wealth)))
		put(uint64(int64(a.X)))
		put(uint64(int64(a.Y)))
		put(uint64(int64(a.IdleSteps)))
	}
	return hex.EncodeToString(h.Sum(nil))
}
