package audio

// sampleQueue is the FIFO between playback writes and the device callback.
// It holds at most max samples; a push past that drops the oldest queued
// samples first.
type sampleQueue struct {
	buf []int16
	max int
}

func (q *sampleQueue) push(samples []int16) {
	limit := q.max
	if limit <= 0 {
		limit = fallbackSampleRate * maxPlaybackBufferSeconds
	}
	if len(samples) >= limit {
		q.buf = append(q.buf[:0], samples[len(samples)-limit:]...)
		return
	}
	if over := len(q.buf) + len(samples) - limit; over > 0 {
		q.buf = q.buf[:copy(q.buf, q.buf[over:])]
	}
	q.buf = append(q.buf, samples...)
}

// pop fills out from the front of the queue and pads the rest with
// silence. It returns the number of queued samples used.
func (q *sampleQueue) pop(out []int16) int {
	n := copy(out, q.buf)
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	q.buf = q.buf[:copy(q.buf, q.buf[n:])]
	return n
}

func (q *sampleQueue) len() int {
	return len(q.buf)
}
