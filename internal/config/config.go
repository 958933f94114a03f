// Package config loads the ingest pipeline's configuration: an
// embedded default YAML document, optionally overridden by an
// external directory of YAML files.
package config

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var embedFsys embed.FS

var yamlExts = []string{".yaml", ".yml"}

// BrokerConfig is one entry of BrokerList.
type BrokerConfig struct {
	Name          string `yaml:"name"`
	Address       string `yaml:"address"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	ForwardToChat bool   `yaml:"forwardToChat"`
}

// Config is the full enumerated configuration of the ingest pipeline.
type Config struct {
	BrokerList []BrokerConfig `yaml:"brokerList"`

	KVEndpoint    string `yaml:"kvEndpoint"`
	KVCredentials string `yaml:"kvCredentials"`

	MaxPortnumMessages    int `yaml:"maxPortnumMessages"`
	PortnumMaxPacketBytes int `yaml:"portnumMaxPacketBytes"`

	DedupWindow            time.Duration `yaml:"dedupWindow"`
	GroupWindow            time.Duration `yaml:"groupWindow"`
	ProcessedMessagesClear time.Duration `yaml:"processedMessagesClear"`

	WorkerConcurrency int `yaml:"workerConcurrency"`

	AdminSharedSecret string `yaml:"adminSharedSecret"`

	AllowedTopicPrefixes []string          `yaml:"allowedTopicPrefixes"`
	ChannelByPrefix      map[string]string `yaml:"channelByPrefix"`

	DecryptionKeys []string `yaml:"decryptionKeys"`

	SlackToken      string            `yaml:"slackToken"`
	SlackChannelIDs map[string]string `yaml:"slackChannelIds"`

	ComponentTag string `yaml:"componentTag"`
	OpsAddr      string `yaml:"opsAddr"`
}

// defaults fills in any field left zero after loading.
func (c *Config) defaults() {
	if c.MaxPortnumMessages == 0 {
		c.MaxPortnumMessages = 200
	}
	if c.PortnumMaxPacketBytes == 0 {
		c.PortnumMaxPacketBytes = 524288
	}
	if c.DedupWindow == 0 {
		c.DedupWindow = 3 * time.Second
	}
	if c.GroupWindow == 0 {
		c.GroupWindow = 8 * time.Second
	}
	if c.ProcessedMessagesClear == 0 {
		c.ProcessedMessagesClear = 10 * time.Minute
	}
	if c.WorkerConcurrency == 0 {
		c.WorkerConcurrency = 10
	}
	if c.ComponentTag == "" {
		c.ComponentTag = "mesh-ingest"
	}
	if len(c.AllowedTopicPrefixes) == 0 {
		c.AllowedTopicPrefixes = []string{"msh/msk/", "msh/kgd/", "msh/ufa/"}
	}
}

func (c *Config) validate() error {
	if c.KVEndpoint == "" {
		return fmt.Errorf("kvEndpoint is required")
	}
	if len(c.BrokerList) == 0 {
		return fmt.Errorf("brokerList must have at least one entry")
	}
	for _, b := range c.BrokerList {
		if b.Name == "" || b.Address == "" {
			return fmt.Errorf("broker entry missing name or address: %+v", b)
		}
	}
	return nil
}

// mergeYAML decodes every YAML document in b into c, letting later
// documents in the same file overwrite earlier ones field by field
// (yaml.v3's Decode already merges into an existing struct value).
func mergeYAML(c *Config, b []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	for {
		if err := dec.Decode(c); err != nil {
			if err.Error() == "EOF" {
				return nil
			}
			return err
		}
	}
}

func walkYAML(fsys fs.FS, root string, c *Config, onFile func(path string, err error)) error {
	return fs.WalkDir(fsys, root, func(subPath string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !slices.Contains(yamlExts, filepath.Ext(d.Name())) {
			return nil
		}
		b, rerr := fs.ReadFile(fsys, subPath)
		if rerr != nil {
			onFile(subPath, rerr)
			return nil
		}
		if merr := mergeYAML(c, b); merr != nil {
			onFile(subPath, merr)
			return merr
		}
		onFile(subPath, nil)
		return nil
	})
}

// Load reads the embedded default configuration, then overlays every
// YAML file found under externDir (if non-empty), applies defaults,
// and validates the result. onFile receives a per-file load status for
// the caller to log (e.g. "...loaded %s" / "...%s %s").
func Load(externDir string, onFile func(path string, err error)) (*Config, error) {
	if onFile == nil {
		onFile = func(string, error) {}
	}

	var c Config
	if err := walkYAML(embedFsys, ".", &c, onFile); err != nil {
		return nil, fmt.Errorf("load embedded config: %w", err)
	}

	if externDir != "" {
		externFsys := os.DirFS(externDir)
		if err := walkYAML(externFsys, ".", &c, onFile); err != nil {
			return nil, fmt.Errorf("load external config %s: %w", externDir, err)
		}
	}

	c.defaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
