// Package replay implements episodic experience replay for sequence
// models. Unlike step-based replay, the buffer keeps episode boundaries
// so that sampled training sequences are always contiguous windows of
// a single episode.
package replay

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	ts "github.com/latentrl/dreamer/timestep"
)

// sampleRetries bounds how many episodes are drawn per batch row before
// sampling gives up. Episodes shorter than the requested sequence
// length are rejected and redrawn.
const sampleRetries = 64

// episode holds one recorded episode. The observation list has one
// more entry than the others: obs[t] is the observation action[t] was
// taken from, and the final entry is the observation the episode ended
// on.
type episode struct {
	obs      [][]float64
	actions  [][]float64
	rewards  []float64
	nonTerms []float64
}

// steps returns the number of transitions in the episode
func (e *episode) steps() int {
	return len(e.rewards)
}

// Batch is a batch of fixed-length training sequences in time-major
// layout: index i of each slice holds the data of sequence step i for
// every batch row. Obs[i] is the observation reached by Actions[i],
// with Rewards[i] the reward received and NonTerms[i] zero where the
// episode terminated on that step.
type Batch struct {
	Obs      []*mat.Dense
	Actions  []*mat.Dense
	Rewards  []*mat.Dense
	NonTerms []*mat.Dense
}

// Buffer is a bounded episodic replay buffer. Completed episodes are
// evicted oldest-first once the total number of stored transitions
// exceeds the capacity.
type Buffer struct {
	capacity   int
	obsSize    int
	actionSize int

	episodes []*episode
	stored   int // transitions in completed episodes
	current  *episode

	rng *rand.Rand
}

// New returns a new empty buffer holding at most capacity transitions
// of obsSize-dimensional observations and actionSize-dimensional
// one-hot actions.
func New(capacity, obsSize, actionSize int, seed uint64) (*Buffer, error) {
	if capacity <= 0 {
		return nil, &BufferError{
			Op:  "new",
			Err: fmt.Errorf("capacity must be positive, got %v", capacity),
		}
	}
	if obsSize <= 0 || actionSize <= 0 {
		return nil, &BufferError{
			Op: "new",
			Err: fmt.Errorf("observation and action sizes must be "+
				"positive, got (%v, %v)", obsSize, actionSize),
		}
	}
	return &Buffer{
		capacity:   capacity,
		obsSize:    obsSize,
		actionSize: actionSize,
		current:    &episode{},
		rng:        rand.New(rand.NewSource(seed)),
	}, nil
}

// Store appends a transition to the episode currently being recorded
func (b *Buffer) Store(t ts.Transition) error {
	if t.Obs.Len() != b.obsSize {
		return &BufferError{
			Op: "store",
			Err: fmt.Errorf("invalid observation size \n\twant(%v)"+
				"\n\thave(%v)", b.obsSize, t.Obs.Len()),
		}
	}
	if t.Action.Len() != b.actionSize {
		return &BufferError{
			Op: "store",
			Err: fmt.Errorf("invalid action size \n\twant(%v)"+
				"\n\thave(%v)", b.actionSize, t.Action.Len()),
		}
	}

	b.current.obs = append(b.current.obs, vecData(t.Obs))
	b.current.actions = append(b.current.actions, vecData(t.Action))
	b.current.rewards = append(b.current.rewards, t.Reward)
	b.current.nonTerms = append(b.current.nonTerms, t.NonTerm)
	return nil
}

// EndEpisode closes the episode currently being recorded with its
// final observation, making it available for sampling, and evicts the
// oldest episodes if the capacity is exceeded. Episodes with no
// transitions are discarded.
func (b *Buffer) EndEpisode(finalObs mat.Vector) error {
	if finalObs.Len() != b.obsSize {
		return &BufferError{
			Op: "endEpisode",
			Err: fmt.Errorf("invalid observation size \n\twant(%v)"+
				"\n\thave(%v)", b.obsSize, finalObs.Len()),
		}
	}

	ep := b.current
	b.current = &episode{}
	if ep.steps() == 0 {
		return nil
	}
	ep.obs = append(ep.obs, vecData(finalObs))

	b.episodes = append(b.episodes, ep)
	b.stored += ep.steps()
	b.evict()
	return nil
}

// evict drops the oldest episodes until the stored transitions fit the
// capacity. If a single episode alone exceeds the capacity, its oldest
// transitions are trimmed instead.
func (b *Buffer) evict() {
	for b.stored > b.capacity && len(b.episodes) > 1 {
		b.stored -= b.episodes[0].steps()
		b.episodes[0] = nil
		b.episodes = b.episodes[1:]
	}

	if b.stored > b.capacity {
		ep := b.episodes[0]
		trim := b.stored - b.capacity
		ep.obs = ep.obs[trim:]
		ep.actions = ep.actions[trim:]
		ep.rewards = ep.rewards[trim:]
		ep.nonTerms = ep.nonTerms[trim:]
		b.stored = b.capacity
	}
}

// Episodes returns the number of completed episodes in the buffer
func (b *Buffer) Episodes() int {
	return len(b.episodes)
}

// Transitions returns the number of transitions in completed episodes
func (b *Buffer) Transitions() int {
	return b.stored
}

// Sample draws batchSize contiguous windows of seqLen transitions.
// Each window comes from a uniformly random episode and a uniformly
// random valid offset within it, and never crosses an episode
// boundary. Episodes shorter than seqLen are redrawn; if no episode is
// long enough the error wraps ErrInsufficientData.
func (b *Buffer) Sample(batchSize, seqLen int) (*Batch, error) {
	if batchSize <= 0 || seqLen <= 0 {
		return nil, &BufferError{
			Op: "sample",
			Err: fmt.Errorf("batch size and sequence length must be "+
				"positive, got (%v, %v)", batchSize, seqLen),
		}
	}

	feasible := false
	for _, ep := range b.episodes {
		if ep.steps() >= seqLen {
			feasible = true
			break
		}
	}
	if !feasible {
		return nil, &BufferError{Op: "sample", Err: ErrInsufficientData}
	}

	batch := &Batch{
		Obs:      make([]*mat.Dense, seqLen),
		Actions:  make([]*mat.Dense, seqLen),
		Rewards:  make([]*mat.Dense, seqLen),
		NonTerms: make([]*mat.Dense, seqLen),
	}
	for i := 0; i < seqLen; i++ {
		batch.Obs[i] = mat.NewDense(batchSize, b.obsSize, nil)
		batch.Actions[i] = mat.NewDense(batchSize, b.actionSize, nil)
		batch.Rewards[i] = mat.NewDense(batchSize, 1, nil)
		batch.NonTerms[i] = mat.NewDense(batchSize, 1, nil)
	}

	for row := 0; row < batchSize; row++ {
		ep, offset, err := b.drawWindow(seqLen)
		if err != nil {
			return nil, err
		}

		for i := 0; i < seqLen; i++ {
			j := offset + i
			batch.Obs[i].SetRow(row, ep.obs[j+1])
			batch.Actions[i].SetRow(row, ep.actions[j])
			batch.Rewards[i].Set(row, 0, ep.rewards[j])
			batch.NonTerms[i].Set(row, 0, ep.nonTerms[j])
		}
	}
	return batch, nil
}

// drawWindow selects an episode and a window start offset for one
// batch row.
func (b *Buffer) drawWindow(seqLen int) (*episode, int, error) {
	for attempt := 0; attempt < sampleRetries; attempt++ {
		ep := b.episodes[b.rng.Intn(len(b.episodes))]
		if ep.steps() < seqLen {
			continue
		}
		return ep, b.rng.Intn(ep.steps() - seqLen + 1), nil
	}
	return nil, 0, &BufferError{
		Op: "sample",
		Err: fmt.Errorf("no sufficiently long episode drawn in %v "+
			"attempts: %w", sampleRetries, ErrInsufficientData),
	}
}

// vecData copies a vector's entries into a fresh slice
func vecData(v mat.Vector) []float64 {
	data := make([]float64, v.Len())
	for i := range data {
		data[i] = v.AtVec(i)
	}
	return data
}
