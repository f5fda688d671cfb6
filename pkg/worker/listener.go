package worker

// ProgressListener observes workers. Calls may come from any worker
// goroutine.
type ProgressListener interface {
	AllWorkersStarted(n int)
	WorkerStarted(w *Worker)
	WorkerFinished(w *Worker)
	ConnectionRestarted(w *Worker)
	AllWorkersFinished(n int)
	CriticalError(w *Worker, err error)
}

// NopListener ignores every event. Embed it to implement only some methods.
type NopListener struct{}

func (NopListener) AllWorkersStarted(int)        {}
func (NopListener) WorkerStarted(*Worker)        {}
func (NopListener) WorkerFinished(*Worker)       {}
func (NopListener) ConnectionRestarted(*Worker)  {}
func (NopListener) AllWorkersFinished(int)       {}
func (NopListener) CriticalError(*Worker, error) {}
