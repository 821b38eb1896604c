package loader

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-billy/v5/util"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/restree/tree"
)

// Text loads .txt files as strings.
func Text() Loader {
	return Extension("text", `txt`, func(ctx context.Context, ref tree.FileRef) (any, error) {
		b, err := util.ReadFile(ref.FS, ref.Path)
		if err != nil {
			return nil, err
		}
		log.FromContext(ctx).Debug("loaded text", "path", ref.Path, "bytes", len(b))
		return string(b), nil
	})
}

// JSON loads .json files into generic Go values (map[string]any, []any,
// int64, float64, string, bool).
func JSON() Loader {
	return Extension("json", `json`, func(ctx context.Context, ref tree.FileRef) (any, error) {
		b, err := util.ReadFile(ref.FS, ref.Path)
		if err != nil {
			return nil, err
		}
		return oj.Parse(b)
	})
}

// Bytes loads any remaining file as raw bytes. Place it last as a catch-all.
func Bytes() Loader {
	return Extension("bytes", `.*`, func(ctx context.Context, ref tree.FileRef) (any, error) {
		return util.ReadFile(ref.FS, ref.Path)
	})
}
