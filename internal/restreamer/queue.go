package restreamer

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// lineQueue is an unbounded FIFO of output lines with one producer (the
// reader goroutine) and one consumer (the control loop).
type lineQueue struct {
	mu    sync.Mutex
	lines []string
}

func (q *lineQueue) push(line string) {
	q.mu.Lock()
	q.lines = append(q.lines, line)
	q.mu.Unlock()
}

// drain returns every queued line in arrival order without blocking.
func (q *lineQueue) drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.lines
	q.lines = nil
	return out
}

func (q *lineQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lines)
}

// readLines copies trimmed lines from r into q until r reports EOF or an
// error, then closes done. It has no cancellation of its own: it stops when
// the writing side of the pipe closes, i.e. once the process group is gone.
func readLines(r io.Reader, q *lineQueue, done chan<- struct{}) {
	defer close(done)
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			q.push(strings.TrimSpace(line))
		}
		if err != nil {
			return
		}
	}
}
