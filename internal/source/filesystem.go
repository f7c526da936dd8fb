package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// FilesystemClient serves documents from a watched directory. The source
// ID is the path relative to the root; the revision tag is the SHA-256 of
// the file content, so touching a file without changing it does not
// produce a new revision.
type FilesystemClient struct {
	root string
}

var _ Client = (*FilesystemClient)(nil)

// NewFilesystemClient creates a client rooted at dir.
func NewFilesystemClient(dir string) (*FilesystemClient, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch path %s is not a directory", dir)
	}
	return &FilesystemClient{root: dir}, nil
}

var documentExtensions = map[string]bool{
	".html": true,
	".htm":  true,
	".md":   true,
	".txt":  true,
}

// ListChanged walks the root and returns documents modified since the
// given time. A zero since returns everything.
func (c *FilesystemClient) ListChanged(ctx context.Context, since time.Time) ([]Change, error) {
	var changes []Change
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != c.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !documentExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !since.IsZero() && !info.ModTime().After(since) {
			return nil
		}

		rel, err := filepath.Rel(c.root, path)
		if err != nil {
			return err
		}
		tag, err := c.revisionTag(path)
		if err != nil {
			return err
		}
		changes = append(changes, Change{
			SourceID:    filepath.ToSlash(rel),
			RevisionTag: tag,
			ModifiedAt:  info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk watch directory: %w", err)
	}
	return changes, nil
}

// FetchContent reads the document for a source ID.
func (c *FilesystemClient) FetchContent(ctx context.Context, sourceID string) (*types.SourceDocument, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	path := filepath.Join(c.root, filepath.FromSlash(sourceID))
	rel, err := filepath.Rel(c.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("source id %q escapes the watch directory", sourceID)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source document %s: %w", sourceID, err)
	}

	sum := sha256.Sum256(data)
	return &types.SourceDocument{
		SourceID:    sourceID,
		RevisionTag: hex.EncodeToString(sum[:]),
		Content:     string(data),
		FetchedAt:   time.Now().UTC(),
	}, nil
}

func (c *FilesystemClient) revisionTag(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
