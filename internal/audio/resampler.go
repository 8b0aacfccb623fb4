package audio

import (
	"fmt"
	"math"

	"github.com/satriahrh/oralexam/domain/entities"
)

// Resampler downsamples native-rate frames into fixed-size chunks at a target rate.
//
// Native samples accumulate in a buffer. Once the buffer holds at least
// chunkSize*ratio samples, one chunk is produced by averaging the native samples
// that fall into each output slot, and floor(chunkSize*ratio) samples are dropped
// from the head of the buffer. The remainder carries over so chunk boundaries stay
// phase-continuous.
type Resampler struct {
	nativeRate int
	targetRate int
	chunkSize  int
	ratio      float64
	buf        []float32
	seq        uint64
}

// NewResampler creates a resampler from nativeRate to targetRate producing chunkSize samples per chunk
func NewResampler(nativeRate, targetRate, chunkSize int) (*Resampler, error) {
	if nativeRate <= 0 || targetRate <= 0 {
		return nil, fmt.Errorf("sample rates must be positive, got native=%d target=%d", nativeRate, targetRate)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkSize*nativeRate < targetRate {
		return nil, fmt.Errorf("chunk of %d samples is shorter than one native sample", chunkSize)
	}
	ratio := float64(nativeRate) / float64(targetRate)
	return &Resampler{
		nativeRate: nativeRate,
		targetRate: targetRate,
		chunkSize:  chunkSize,
		ratio:      ratio,
		buf:        make([]float32, 0, int(math.Ceil(float64(chunkSize)*ratio))*2),
	}, nil
}

// Ratio returns nativeRate / targetRate
func (r *Resampler) Ratio() float64 {
	return r.ratio
}

// Buffered returns the number of native samples waiting for the next chunk
func (r *Resampler) Buffered() int {
	return len(r.buf)
}

// Write appends a native-rate frame and returns every chunk that became complete
func (r *Resampler) Write(frame []float32) []entities.OutgoingAudioChunk {
	r.buf = append(r.buf, frame...)

	// slot boundaries use integer arithmetic so floor(i*ratio) is exact for any rate pair
	consume := r.chunkSize * r.nativeRate / r.targetRate

	var chunks []entities.OutgoingAudioChunk
	for len(r.buf)*r.targetRate >= r.chunkSize*r.nativeRate {
		out := make([]int16, r.chunkSize)
		for i := 0; i < r.chunkSize; i++ {
			start := i * r.nativeRate / r.targetRate
			end := (i + 1) * r.nativeRate / r.targetRate

			var v float64
			if end > start {
				var sum float64
				for _, s := range r.buf[start:end] {
					sum += float64(s)
				}
				v = sum / float64(end-start)
			} else {
				v = float64(r.buf[start])
			}
			out[i] = FloatToPCM16(v)
		}

		chunks = append(chunks, entities.NewOutgoingAudioChunk(r.seq, r.targetRate, out))
		r.seq++

		// keep the remainder for the next chunk
		n := copy(r.buf, r.buf[consume:])
		r.buf = r.buf[:n]
	}
	return chunks
}

// Reset drops buffered samples
func (r *Resampler) Reset() {
	r.buf = r.buf[:0]
}
