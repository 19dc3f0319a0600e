package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
)

const (
	// DefaultImageVersion is used when build.version is not set.
	DefaultImageVersion = "latest"
	// DefaultDockerfile is used when build.dockerfile is not set.
	DefaultDockerfile = "Dockerfile"
)

var (
	ErrProjectConfigNotFound  = ferrors.NotFoundError("project config not found").Build()
	ErrProjectConfigMalformed = ferrors.ConfigError("project config malformed").Build()
)

// ProjectConfig is the per-project pipeline definition read from the watched root.
type ProjectConfig struct {
	Build  ProjectBuild  `yaml:"build"`
	Test   ProjectTest   `yaml:"test"`
	Deploy ProjectDeploy `yaml:"deploy"`
}

type ProjectBuild struct {
	BaseName   string `yaml:"base_name"`
	Version    string `yaml:"version,omitempty"`
	Dockerfile string `yaml:"dockerfile,omitempty"`
}

type ProjectTest struct {
	Command string `yaml:"command,omitempty"`
}

type ProjectDeploy struct {
	Registry string `yaml:"registry"`
}

// ImageRef returns base_name:version, or "" when no base name is configured.
func (p *ProjectConfig) ImageRef() string {
	if p.Build.BaseName == "" {
		return ""
	}
	return p.Build.BaseName + ":" + p.Build.Version
}

// DockerfilePath resolves the dockerfile against root unless it is absolute.
func (p *ProjectConfig) DockerfilePath(root string) string {
	if filepath.IsAbs(p.Build.Dockerfile) {
		return p.Build.Dockerfile
	}
	return filepath.Join(root, p.Build.Dockerfile)
}

// ProjectLoader reads the project file from a watched root on every call.
type ProjectLoader struct {
	FileName string
}

// NewProjectLoader returns a loader for the given file name, defaulting to .cicd.yml.
func NewProjectLoader(fileName string) *ProjectLoader {
	if fileName == "" {
		fileName = defaultProjectFile
	}
	return &ProjectLoader{FileName: fileName}
}

// Load reads and decodes the project file under root.
func (l *ProjectLoader) Load(root string) (*ProjectConfig, error) {
	return LoadProject(filepath.Join(root, l.FileName))
}

// LoadProject reads a project file. Missing files wrap ErrProjectConfigNotFound;
// unreadable, empty or non-mapping documents wrap ErrProjectConfigMalformed.
func LoadProject(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ferrors.WrapError(err, ferrors.CategoryNotFound, ErrProjectConfigNotFound.Message()).
				WithContext("path", path).
				Build()
		}
		return nil, malformed(path, err)
	}
	return ParseProject(data, path)
}

// ParseProject decodes project YAML. path is used only for error context.
func ParseProject(data []byte, path string) (*ProjectConfig, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, malformed(path, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, malformed(path, errors.New("document is not a mapping"))
	}

	var cfg ProjectConfig
	if err := doc.Content[0].Decode(&cfg); err != nil {
		return nil, malformed(path, err)
	}

	// test.command goes to the shell untouched; only image and registry
	// fields take ${VAR} references.
	cfg.Build.BaseName = strings.TrimSpace(os.ExpandEnv(cfg.Build.BaseName))
	cfg.Build.Version = os.ExpandEnv(cfg.Build.Version)
	cfg.Build.Dockerfile = os.ExpandEnv(cfg.Build.Dockerfile)
	cfg.Deploy.Registry = strings.TrimSpace(os.ExpandEnv(cfg.Deploy.Registry))
	if cfg.Build.Version == "" {
		cfg.Build.Version = DefaultImageVersion
	}
	if cfg.Build.Dockerfile == "" {
		cfg.Build.Dockerfile = DefaultDockerfile
	}
	return &cfg, nil
}

func malformed(path string, cause error) error {
	return ferrors.WrapError(cause, ferrors.CategoryConfig, ErrProjectConfigMalformed.Message()).
		WithContext("path", path).
		Build()
}

// StarterProject is the .cicd.yml written by `cicdsim init --project`.
const StarterProject = `build:
  base_name: app
  version: latest
  dockerfile: Dockerfile
test:
  command: "true"
deploy:
  registry: registry.example.com
`

// InitProject writes StarterProject into dir under fileName.
func InitProject(dir, fileName string, force bool) (string, error) {
	if fileName == "" {
		fileName = defaultProjectFile
	}
	path := filepath.Join(dir, fileName)
	if _, err := os.Stat(path); err == nil && !force {
		return path, ferrors.ValidationError("project file already exists (use --force to overwrite)").
			WithContext("path", path).
			Build()
	}
	// #nosec G306 -- project files are meant to be readable
	if err := os.WriteFile(path, []byte(StarterProject), 0o644); err != nil {
		return path, ferrors.FileSystemError("failed to write project file").
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	return path, nil
}
