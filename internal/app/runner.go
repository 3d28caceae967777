package app

import (
	"context"
	"sync"

	"github.com/lvcoi/freeytzone/internal/video"
)

// Exit codes for batch resolution. Higher codes win when several URLs fail.
const (
	ExitOK          = 0
	ExitFailed      = 1
	ExitInvalidURL  = 2
	ExitUnavailable = 3
	ExitInterrupted = 130
)

// MetadataResolver is the part of the resolver Run needs.
type MetadataResolver interface {
	Resolve(ctx context.Context, rawURL string) (video.Metadata, error)
}

type Result struct {
	URL      string          `json:"url"`
	Metadata *video.Metadata `json:"metadata,omitempty"`
	Err      error           `json:"-"`
	Error    string          `json:"error,omitempty"`
	Kind     video.Kind      `json:"kind,omitempty"`
}

// ExitCode maps a resolution error onto a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch video.KindOf(err) {
	case video.KindInvalidURL:
		return ExitInvalidURL
	case video.KindBackendUnavailable:
		return ExitUnavailable
	default:
		return ExitFailed
	}
}

// Run resolves urls with up to jobs concurrent workers. Results come back
// in input order.
func Run(ctx context.Context, urls []string, r MetadataResolver, jobs int) ([]Result, int) {
	if jobs < 1 {
		jobs = 1
	}

	type task struct {
		index int
		url   string
	}
	type indexed struct {
		index  int
		result Result
	}
	tasks := make(chan task)
	results := make(chan indexed, len(urls))

	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t, ok := <-tasks:
					if !ok {
						return
					}
					result := Result{URL: t.url}
					meta, err := r.Resolve(ctx, t.url)
					if err != nil {
						result.Err = err
						result.Error = video.UserMessage(err)
						result.Kind = video.KindOf(err)
					} else {
						result.Metadata = &meta
					}
					select {
					case results <- indexed{index: t.index, result: result}:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	submitted := 0
submit:
	for i, url := range urls {
		select {
		case <-ctx.Done():
			break submit
		case tasks <- task{index: i, url: url}:
			submitted++
		}
	}
	close(tasks)

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*Result, len(urls))
	exitCode := ExitOK
	for res := range results {
		ordered[res.index] = &res.result
		if code := ExitCode(res.result.Err); code > exitCode {
			exitCode = code
		}
	}

	output := make([]Result, 0, submitted)
	for _, res := range ordered {
		if res != nil {
			output = append(output, *res)
		}
	}

	if ctx.Err() != nil && exitCode == ExitOK {
		exitCode = ExitInterrupted
	}
	return output, exitCode
}
