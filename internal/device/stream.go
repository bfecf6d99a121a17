package device

import "sync"

// stream executes submitted tasks one at a time in submission order.
type stream struct {
	tasks chan func()
	done  chan struct{}
	wg    sync.WaitGroup
}

func newStream(depth int) *stream {
	s := &stream{
		tasks: make(chan func(), depth),
		done:  make(chan struct{}),
	}
	go s.worker()
	return s
}

func (s *stream) worker() {
	for task := range s.tasks {
		task()
		s.wg.Done()
	}
	close(s.done)
}

// submit queues task and returns immediately.
func (s *stream) submit(task func()) {
	s.wg.Add(1)
	s.tasks <- task
}

// submitWait queues task and blocks until it has run.
func (s *stream) submitWait(task func() error) error {
	errc := make(chan error, 1)
	s.submit(func() { errc <- task() })
	return <-errc
}

// wait blocks until every submitted task has run.
func (s *stream) wait() {
	s.wg.Wait()
}

// close drains the queue and stops the worker.
func (s *stream) close() {
	close(s.tasks)
	<-s.done
}
