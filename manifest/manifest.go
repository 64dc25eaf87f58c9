package manifest

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/segmentio/ksuid"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

//go:embed templates/*.yaml
var templates embed.FS

type Kind string

const (
	SingleNode Kind = "single-node"
	MultiNode  Kind = "multi-node"
)

// Placeholder tokens substituted literally into templates.
const (
	TokenStorageClass = "${STORAGE_CLASS}"
	TokenDuration     = "${DURATION}"
	TokenNodeNum      = "${NODE_NUM}"
)

type Values struct {
	StorageClass    string
	DurationSeconds int
	NodeNum         int // zero for the single-node template, which has no node token
}

func LoadBuiltinTemplate(kind Kind) (string, error) {
	buf, err := templates.ReadFile(path.Join("templates", string(kind)+".yaml"))
	if err != nil {
		return "", fmt.Errorf("unknown manifest template: %s", kind)
	}
	return string(buf), nil
}

// Loads a user supplied template, or the builtin template for kind when templatePath is empty.
func LoadTemplate(fs afero.Fs, kind Kind, templatePath string) (string, error) {
	if templatePath == "" {
		return LoadBuiltinTemplate(kind)
	}
	buf, err := afero.ReadFile(fs, templatePath)
	if err != nil {
		return "", fmt.Errorf("failed to read manifest template: %w", err)
	}
	return string(buf), nil
}

// Substitutes the placeholder tokens. No other templating is performed.
func Render(template string, v Values) string {
	out := strings.ReplaceAll(template, TokenStorageClass, v.StorageClass)
	out = strings.ReplaceAll(out, TokenDuration, strconv.Itoa(v.DurationSeconds))
	if v.NodeNum > 0 {
		out = strings.ReplaceAll(out, TokenNodeNum, strconv.Itoa(v.NodeNum))
	}
	return out
}

type object struct {
	Kind     string `yaml:"kind"`
	Metadata struct {
		Name string `yaml:"name"`
	} `yaml:"metadata"`
}

// Parses the rendered manifest and returns the name of its Job.
func JobName(rendered string) (string, error) {
	dec := yaml.NewDecoder(strings.NewReader(rendered))
	for {
		obj := object{}
		err := dec.Decode(&obj)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("rendered manifest is not valid YAML: %w", err)
		}
		if obj.Kind == "Job" && obj.Metadata.Name != "" {
			return obj.Metadata.Name, nil
		}
	}
	return "", fmt.Errorf("rendered manifest has no named Job")
}

// Writes the rendered manifest to a uniquely named file under dir. The returned cleanup removes it.
func WriteTemp(fs afero.Fs, dir string, prefix string, rendered string) (string, func(), error) {
	p := path.Join(dir, fmt.Sprintf("%s-%s.yaml", prefix, ksuid.New().String()))
	err := afero.WriteFile(fs, p, []byte(rendered), 0o600)
	if err != nil {
		return "", nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	return p, func() {
		err := fs.Remove(p)
		if err != nil {
			slog.Warn("failed to remove transient manifest", slog.String("path", p), slog.String("error", err.Error()))
		}
	}, nil
}
