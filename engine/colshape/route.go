package colshape

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/gostream/engine/entity"
)

// LinkRoute chains checkpoints so that each points at the next; the last one points at itself
func LinkRoute(checkpoints []*entity.Object) error {
	for i, cp := range checkpoints {
		if !cp.IsValid() || cp.Checkpoint() == nil {
			return errors.Errorf("route stop %d is not a checkpoint: %s", i, cp)
		}
	}
	for i, cp := range checkpoints {
		next := cp.Position()
		if i+1 < len(checkpoints) {
			next = checkpoints[i+1].Position()
		}
		cp.SetNextPos(next)
	}
	return nil
}
