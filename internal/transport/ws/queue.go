package ws

// sendQueue buffers outbound frames issued while the link is down and drains
// them FIFO on the next transition into Connected. It is unbounded: it only
// grows for the length of a disconnect window, and Disconnect clears it.
// Callers hold the Client mutex.
type sendQueue struct {
	frames []Frame
}

func (q *sendQueue) push(f Frame) {
	q.frames = append(q.frames, f)
}

// shift pops the oldest frame.
func (q *sendQueue) shift() (Frame, bool) {
	if len(q.frames) == 0 {
		return Frame{}, false
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return f, true
}

// unshift puts a frame back at the head after a failed mid-drain write so the
// next connection retransmits it first.
func (q *sendQueue) unshift(f Frame) {
	q.frames = append([]Frame{f}, q.frames...)
}

func (q *sendQueue) size() int {
	return len(q.frames)
}

func (q *sendQueue) clear() {
	q.frames = nil
}
