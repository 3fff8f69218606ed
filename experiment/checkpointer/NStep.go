package checkpointer

// nStep implements checkpointing every N steps
type nStep struct {
	interval int
	last     int
	object   Serializable

	// filename returns the filename to save the object in, given the
	// step count the checkpoint is taken at. Use StepNamer to save
	// each checkpoint to a separate file keyed by its step count.
	filename func(step int) string
}

// NewNStep returns a checkpointer that checkpoints every n steps
func NewNStep(n int, object Serializable,
	filename func(step int) string) Checkpointer {
	return &nStep{
		interval: n,
		object:   object,
		filename: filename,
	}
}

// Checkpoint saves the tracked object if at least interval steps have
// passed since the last checkpoint
func (n *nStep) Checkpoint(step int) error {
	if step-n.last < n.interval {
		return nil
	}
	n.last = step
	return n.object.Save(n.filename(step))
}
