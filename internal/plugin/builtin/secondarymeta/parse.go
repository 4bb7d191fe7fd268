package secondarymeta

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/openshift/cincinnati/internal/graph"
	"github.com/openshift/cincinnati/internal/plugin"
	cincerrors "github.com/openshift/cincinnati/pkg/errors"
)

// ParseName is the registry name of the parse plugin.
const ParseName = "openshift-secondary-metadata-parse"

var errChannelWithoutName = errors.New("channel file without name")

// channelFile lists the members of one channel.
type channelFile struct {
	Name     string   `yaml:"name"`
	Versions []string `yaml:"versions"`
}

// blockedEdgeFile blocks incoming edges of one release, either by exact
// version list or by regex over source versions.
type blockedEdgeFile struct {
	To        string `yaml:"to"`
	From      string `yaml:"from"`
	FromRegex string `yaml:"from_regex"`
}

// rawMetadataFile carries free-form metadata for one release.
type rawMetadataFile struct {
	Version  string            `json:"version"`
	Metadata map[string]string `json:"metadata"`
}

// Parse folds the fetched metadata directory into release metadata:
// channel membership, blocked-edge annotations, and raw metadata merges.
type Parse struct {
	dataDir string
	logger  zerolog.Logger
}

// NewParse creates the parse plugin over a metadata directory.
func NewParse(dataDir string, logger zerolog.Logger) *Parse {
	return &Parse{dataDir: dataDir, logger: logger}
}

// ParseFactory constructs the plugin from settings. data_directory is
// required.
func ParseFactory(settings plugin.Settings) (plugin.Interface, error) {
	dir, err := settings.Require("data_directory")
	if err != nil {
		return nil, err
	}
	return NewParse(dir, zerolog.Nop()), nil
}

func (p *Parse) Name() string {
	return ParseName
}

func (p *Parse) Phase() plugin.Phase {
	return plugin.PhaseInternalIO
}

// Transform mutates the graph's release metadata in place. A release named
// by the metadata but absent from the graph is logged and skipped; an
// unreadable or malformed file fails the build.
func (p *Parse) Transform(_ context.Context, io plugin.IO) (plugin.IO, error) {
	if err := p.applyChannels(io.Graph); err != nil {
		return plugin.IO{}, err
	}
	if err := p.applyBlockedEdges(io.Graph); err != nil {
		return plugin.IO{}, err
	}
	if err := p.applyRawMetadata(io.Graph); err != nil {
		return plugin.IO{}, err
	}
	return io, nil
}

func (p *Parse) applyChannels(g *graph.Graph) error {
	paths, err := sortedGlob(filepath.Join(p.dataDir, "channels", "*.yaml"))
	if err != nil {
		return err
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return cincerrors.NewParseError(path, err)
		}
		var channel channelFile
		if err := yaml.Unmarshal(data, &channel); err != nil {
			return cincerrors.NewParseError(path, err)
		}
		if channel.Name == "" {
			return cincerrors.NewParseError(path, errChannelWithoutName)
		}

		for _, v := range channel.Versions {
			release, ok := p.release(g, v, path)
			if !ok {
				continue
			}
			mergeChannel(release.Metadata, channel.Name)
		}
	}
	return nil
}

func (p *Parse) applyBlockedEdges(g *graph.Graph) error {
	paths, err := sortedGlob(filepath.Join(p.dataDir, "blocked-edges", "*.yaml"))
	if err != nil {
		return err
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return cincerrors.NewParseError(path, err)
		}
		var blocked blockedEdgeFile
		if err := yaml.Unmarshal(data, &blocked); err != nil {
			return cincerrors.NewParseError(path, err)
		}

		release, ok := p.release(g, blocked.To, path)
		if !ok {
			continue
		}
		if blocked.From != "" {
			mergeList(release.Metadata, graph.MetadataKeyPreviousRemove, blocked.From)
		}
		if blocked.FromRegex != "" {
			mergeRegex(release.Metadata, graph.MetadataKeyPreviousRemoveRegex, blocked.FromRegex)
		}
	}
	return nil
}

func (p *Parse) applyRawMetadata(g *graph.Graph) error {
	paths, err := sortedGlob(filepath.Join(p.dataDir, "raw", "*.json"))
	if err != nil {
		return err
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return cincerrors.NewParseError(path, err)
		}
		var raw rawMetadataFile
		if err := json.Unmarshal(data, &raw); err != nil {
			return cincerrors.NewParseError(path, err)
		}

		release, ok := p.release(g, raw.Version, path)
		if !ok {
			continue
		}
		for _, key := range sortedMapKeys(raw.Metadata) {
			release.Metadata.Set(key, raw.Metadata[key])
		}
	}
	return nil
}

// release resolves a version, logging a miss without failing the build.
func (p *Parse) release(g *graph.Graph, version, path string) (graph.Release, bool) {
	id, ok := g.FindByVersion(version)
	if !ok {
		p.logger.Warn().Str("version", version).Str("path", path).Msg("metadata references unknown release")
		return graph.Release{}, false
	}
	release, _ := g.Release(id)
	return release, true
}

// mergeChannel adds a channel to the release's channel list, deduplicated
// and stable-sorted.
func mergeChannel(md *graph.Metadata, channel string) {
	members := map[string]struct{}{channel: {}}
	if existing, ok := md.Get(graph.MetadataKeyChannels); ok && existing != "" {
		for _, m := range strings.Split(existing, ",") {
			if m = strings.TrimSpace(m); m != "" {
				members[m] = struct{}{}
			}
		}
	}
	merged := make([]string, 0, len(members))
	for m := range members {
		merged = append(merged, m)
	}
	sort.Strings(merged)
	md.Set(graph.MetadataKeyChannels, strings.Join(merged, ","))
}

// mergeList unions a comma-separated value into an existing list key.
func mergeList(md *graph.Metadata, key, addition string) {
	members := make(map[string]struct{})
	order := []string{}
	add := func(raw string) {
		for _, m := range strings.Split(raw, ",") {
			if m = strings.TrimSpace(m); m != "" {
				if _, ok := members[m]; !ok {
					members[m] = struct{}{}
					order = append(order, m)
				}
			}
		}
	}
	if existing, ok := md.Get(key); ok {
		add(existing)
	}
	add(addition)
	md.Set(key, strings.Join(order, ","))
}

// mergeRegex combines regex patterns as alternatives.
func mergeRegex(md *graph.Metadata, key, pattern string) {
	if existing, ok := md.Get(key); ok && existing != "" {
		md.Set(key, existing+"|"+pattern)
		return
	}
	md.Set(key, pattern)
}

func sortedGlob(pattern string) ([]string, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func sortedMapKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
