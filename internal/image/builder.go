package image

import (
	"context"

	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
	"git.home.luguber.info/inful/cicdsim/internal/logfields"
)

var ErrBuildFailed = ferrors.BuildError("image build failed").Build()

// BuildRequest describes one image build.
type BuildRequest struct {
	ContextDir string
	Dockerfile string
	Image      string
}

// Builder builds images with `<engine> build -f <dockerfile> -t <image> <context>`.
type Builder struct {
	engine *Engine
}

func NewBuilder(engine *Engine) *Builder {
	return &Builder{engine: engine}
}

// Build runs the engine build. Output is streamed to the debug log.
func (b *Builder) Build(ctx context.Context, req BuildRequest) error {
	if req.Image == "" {
		return ferrors.ValidationError("image reference is required").Build()
	}

	b.engine.logger.Info("Building image",
		logfields.Image(req.Image),
		logfields.Path(req.Dockerfile),
		logfields.Root(req.ContextDir))

	return b.engine.run(ctx, ferrors.CategoryBuild, ErrBuildFailed.Message(),
		"build", "-f", req.Dockerfile, "-t", req.Image, req.ContextDir)
}
