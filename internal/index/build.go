package index

import (
	"context"

	"github.com/TigerSong/OAP/internal/callgroup"
	"github.com/TigerSong/OAP/internal/handle"
)

type buildKey struct {
	file handle.Identity
	name string
}

// BuildHelper deduplicates concurrent builds of the same index of the
// same file.
type BuildHelper struct {
	group callgroup.Group[buildKey, Scanner]
}

func NewBuildHelper() *BuildHelper {
	return &BuildHelper{}
}

// Build runs build for index d of file id. If a build for the same pair is
// already in flight, this call waits for it and shares the result. If the
// caller's context is cancelled while waiting, it returns the context
// error without cancelling the in-flight build.
func (h *BuildHelper) Build(ctx context.Context, id handle.Identity, d handle.IndexDescriptor, build func(context.Context) (Scanner, error)) (Scanner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := h.group.DoChan(buildKey{file: id, name: d.Name}, func() (Scanner, error) {
		// Detach from the initiator's context so that cancelling one caller
		// does not abort the shared build.
		return build(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InFlight reports whether index d of file id is being built.
func (h *BuildHelper) InFlight(id handle.Identity, d handle.IndexDescriptor) bool {
	return h.group.InFlight(buildKey{file: id, name: d.Name})
}
