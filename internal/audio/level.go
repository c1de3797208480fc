package audio

import (
	"encoding/binary"
	"math"
)

// Level returns the RMS of 16-bit little-endian PCM scaled to [0, 1]
func Level(data []byte) float64 {
	n := len(data) / 2
	if n == 0 {
		return 0
	}

	var power float64
	for off := 0; off+1 < len(data); off += 2 {
		v := float64(int16(binary.LittleEndian.Uint16(data[off:]))) / math.MaxInt16
		power += v * v
	}
	return math.Min(1, math.Sqrt(power/float64(n)))
}

// IsSilent reports whether a clip stays below the given RMS threshold.
// A threshold of zero or less disables the check.
func IsSilent(clip Clip, threshold float64) bool {
	if threshold <= 0 {
		return false
	}
	return Level(clip.Data) < threshold
}
