// Package audio provides the capture and playback pipelines for realtime
// voice sessions: device input capture with volume metering, 16-bit PCM
// conversion, and cursor-scheduled gapless playback of streamed model audio.
package audio

import "encoding/binary"

// PCM16FromFloat32 converts normalized float samples in [-1, 1] to
// little-endian 16-bit signed PCM. Out-of-range input is clamped rather than
// wrapped, so clipping distorts instead of corrupting.
func PCM16FromFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s * 32768)
		if v > 32767 {
			v = 32767
		}
		if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// Float32FromPCM16 converts little-endian 16-bit signed PCM back to
// normalized float samples. A trailing odd byte is ignored.
func Float32FromPCM16(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(v) / 32768
	}
	return out
}
