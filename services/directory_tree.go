package services

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/facette/natsort"
	"github.com/rs/zerolog/log"

	"github.com/camden-git/imageindex/database"
	"github.com/camden-git/imageindex/models"
)

// ImageCounter counts indexed images matching a filter.
type ImageCounter interface {
	CountImages(ctx context.Context, filter database.ImageFilter) (int64, error)
}

// TreeNode is one directory in a browsable tree. ImageCount covers images
// directly inside the directory, not its descendants.
type TreeNode struct {
	Name       string      `json:"name"`
	Path       string      `json:"path"`
	Children   []*TreeNode `json:"children"`
	HasSubdirs bool        `json:"has_subdirs"`
	ImageCount int64       `json:"image_count"`
}

type DirectoryTree struct {
	counter ImageCounter
}

func NewDirectoryTree(counter ImageCounter) *DirectoryTree {
	return &DirectoryTree{counter: counter}
}

// BuildTree walks root down to maxDepth levels. Deeper directories are not
// expanded, but HasSubdirs still tells the caller whether there is more to
// load. Unreadable subdirectories become leaves instead of failing the build.
func (t *DirectoryTree) BuildTree(ctx context.Context, root string, maxDepth int) (*TreeNode, error) {
	if !filepath.IsAbs(root) {
		return nil, models.NewValidationError("path", "must be an absolute path")
	}
	if maxDepth < 0 {
		return nil, models.NewValidationError("depth", "must not be negative")
	}
	root = filepath.Clean(root)

	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, models.NotFoundf("directory %s", root)
		}
		return nil, models.NewValidationError("path", "cannot be read: %v", err)
	}
	if !info.IsDir() {
		return nil, models.NewValidationError("path", "is not a directory")
	}

	return t.build(ctx, root, 0, maxDepth), nil
}

func (t *DirectoryTree) build(ctx context.Context, path string, depth, maxDepth int) *TreeNode {
	node := &TreeNode{
		Name:     filepath.Base(path),
		Path:     path,
		Children: []*TreeNode{},
	}

	count, err := t.counter.CountImages(ctx, database.ImageFilter{Directory: &path})
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("tree: failed to count images")
	}
	node.ImageCount = count

	subdirs, err := visibleSubdirs(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("tree: cannot read directory")
		return node
	}
	node.HasSubdirs = len(subdirs) > 0
	if depth >= maxDepth || ctx.Err() != nil {
		return node
	}

	for _, name := range subdirs {
		node.Children = append(node.Children, t.build(ctx, filepath.Join(path, name), depth+1, maxDepth))
	}
	return node
}

// visibleSubdirs lists the non-hidden subdirectories of path in natural order.
func visibleSubdirs(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.SliceStable(names, func(i, j int) bool { return natsort.Compare(names[i], names[j]) })
	return names, nil
}
