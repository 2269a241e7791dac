package cfr

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/lox/egsolver/internal/betting"
)

// subgamePool runs deferred street-initial computations on background
// workers. The pre-phase pass posts one job per subgame root; the main
// pass, after the join, consumes the delivered value buffers in place
// of re-entering the subgame. A counting semaphore bounds how many
// subgames run at once; results land in the engine's finalVals map
// under the pool's lock.
type subgamePool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
	mu  sync.Mutex
}

func newSubgamePool(workers int) *subgamePool {
	return &subgamePool{sem: semaphore.NewWeighted(int64(workers))}
}

// spawnSubgame posts the street-initial computation at node to the
// pool. The opp reach vector is immutable once forked, so the job
// shares it with the spawning walk.
func (e *Engine) spawnSubgame(node *betting.Node, plbd int, actionSequence string, oppProbs []float64) {
	if e.pool == nil {
		e.pool = newSubgamePool(e.numThreads)
	}
	pool := e.pool
	key := finalValsKey{node.PlayerActing, node.NonterminalID, plbd}

	pool.wg.Add(1)
	if err := pool.sem.Acquire(context.Background(), 1); err != nil {
		e.log.Fatal().Err(err).Msg("subgame semaphore acquire failed")
	}
	go func() {
		defer pool.wg.Done()
		defer pool.sem.Release(1)

		worker := *e
		worker.isSubgame = true
		worker.prePhase = false
		streetBuckets := AllocateStreetBuckets(worker.g)
		state := &State{
			OppProbs:       oppProbs,
			StreetBuckets:  streetBuckets,
			ActionSequence: actionSequence,
			RootBdSt:       0,
			RootBd:         0,
			HandTree:       e.trunkHandTree,
		}
		vals := worker.StreetInitial(node, plbd, state)

		pool.mu.Lock()
		e.finalVals[key] = vals
		pool.mu.Unlock()
	}()
}

// WaitForFinalSubgames joins every outstanding subgame job. Must be
// called between the pre phase and the consuming pass.
func (e *Engine) WaitForFinalSubgames() {
	if e.pool != nil {
		e.pool.wg.Wait()
	}
}
