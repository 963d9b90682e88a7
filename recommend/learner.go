package recommend

import (
	"fmt"
	"hash/fnv"
	"time"

	"go.uber.org/zap"
)

// maxSeenFeedback bounds the replay-dedupe set.
const maxSeenFeedback = 4096

// Feedback is one workflow execution outcome fed back into ranking.
type Feedback struct {
	WorkflowID    string
	Intent        string
	NodesUsed     []string
	Success       bool
	ExecutionTime time.Duration
}

// LearnFromWorkflow submits execution feedback. It is fire-and-forget:
// the call never blocks and never fails. Feedback is dropped when the
// queue is full, and replays of the same workflow outcome are ignored.
func (r *Recommender) LearnFromWorkflow(fb Feedback) {
	select {
	case r.learnCh <- fb:
	case <-r.done:
	default:
		r.logger.Debug("learning queue full, dropping feedback",
			zap.String("workflow_id", fb.WorkflowID))
	}
}

// Close stops the learning worker. Queued feedback is discarded.
func (r *Recommender) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}

// learnLoop is the single writer for learned boosts. Serializing all
// applications here keeps rank adjustments race-free without per-node locks.
func (r *Recommender) learnLoop() {
	for {
		select {
		case <-r.done:
			return
		case fb := <-r.learnCh:
			r.apply(fb)
		}
	}
}

func (r *Recommender) apply(fb Feedback) {
	key := feedbackKey(fb)

	r.mu.Lock()
	if _, dup := r.seen[key]; dup {
		r.mu.Unlock()
		return
	}
	r.seen[key] = struct{}{}
	r.seenOrder = append(r.seenOrder, key)
	if len(r.seenOrder) > maxSeenFeedback {
		oldest := r.seenOrder[0]
		r.seenOrder = r.seenOrder[1:]
		delete(r.seen, oldest)
	}

	delta := learnStep
	if !fb.Success {
		delta = -learnStep
	}
	for _, node := range fb.NodesUsed {
		bk := fb.Intent + "/" + node
		next := r.boosts[bk] + delta
		if next > learnCap {
			next = learnCap
		}
		if next < -learnCap {
			next = -learnCap
		}
		r.boosts[bk] = next
	}
	r.mu.Unlock()

	// Cached sets were ranked with the old boosts.
	r.cache.Purge()

	r.logger.Debug("applied workflow feedback",
		zap.String("workflow_id", fb.WorkflowID),
		zap.String("intent", fb.Intent),
		zap.Bool("success", fb.Success),
		zap.Int("nodes", len(fb.NodesUsed)))
}

// feedbackKey identifies one workflow outcome for replay deduplication.
func feedbackKey(fb Feedback) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%v|%t|%d", fb.WorkflowID, fb.Intent, fb.NodesUsed, fb.Success, fb.ExecutionTime)
	return fmt.Sprintf("%x", h.Sum64())
}
