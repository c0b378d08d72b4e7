package pipeline

import (
	"sync"

	"github.com/MeKo-Tech/docflow/internal/artifact"
)

// runParallel fans pages out to a bounded worker pool. Pages share no mutable
// state, so workers need no coordination beyond their result slots; the queue
// and log writers serialize internally.
func (p *Pipeline) runParallel(pages []*artifact.Page, pctx *artifact.Context) []*artifact.Structured {
	workers := p.cfg.Workers
	if workers > len(pages) {
		workers = len(pages)
	}

	type job struct {
		idx  int
		page *artifact.Page
	}
	jobs := make(chan job)
	out := make([]*artifact.Structured, len(pages))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				out[j.idx] = p.ProcessPage(j.page, pctx)
			}
		}()
	}
	for i, page := range pages {
		jobs <- job{idx: i, page: page}
	}
	close(jobs)
	wg.Wait()
	return out
}
