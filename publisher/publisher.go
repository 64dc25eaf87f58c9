package publisher

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"
)

// A local file and the object key it is published under.
type Object struct {
	LocalPath string
	Key       string
}

type Publisher interface {
	// Create the destination if it does not exist yet.
	SetUp(ctx context.Context) error

	// Upload every object. Failed uploads do not stop the others.
	Publish(ctx context.Context, objects []*Object) error
}

// Lists every file under root, keyed by its slash-separated path relative to root under prefix.
func CollectObjects(fs afero.Fs, root string, prefix string) ([]*Object, error) {
	objects := []*Object{}
	err := afero.Walk(fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		objects = append(objects, &Object{
			LocalPath: p,
			Key:       path.Join(prefix, filepath.ToSlash(rel)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list results under %s: %w", root, err)
	}
	return objects, nil
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	default:
		return "text/plain"
	}
}
