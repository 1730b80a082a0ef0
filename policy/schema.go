package policy

import "fmt"

// FileConfig is the YAML representation of a policy file.
//
// Example policy.yaml:
//
//	version: "1"
//	allowed_dirs:
//	  - /usr/bin
//	  - /bin
//	whitelist: "xset|xdotool|luakit"
//	blacklist: "rm|reboot|shutdown|poweroff"
//	whitelist_overrides_blacklist: true
//	denied_tokens: ["&", "|", "<", ">"]
//	allow_all: false
type FileConfig struct {
	Version                     string   `yaml:"version"`
	AllowedDirs                 []string `yaml:"allowed_dirs"`
	Whitelist                   string   `yaml:"whitelist"`
	Blacklist                   string   `yaml:"blacklist"`
	WhitelistOverridesBlacklist *bool    `yaml:"whitelist_overrides_blacklist"`
	DeniedTokens                []string `yaml:"denied_tokens"`
	AllowAll                    bool     `yaml:"allow_all"`
}

// supportedVersions lists the schema versions this build understands.
var supportedVersions = map[string]bool{"": true, "1": true, "1.0": true}

// Validate checks structural properties of the file before compilation.
func (fc *FileConfig) Validate() error {
	if !supportedVersions[fc.Version] {
		return fmt.Errorf("unsupported policy version %q", fc.Version)
	}
	for _, d := range fc.AllowedDirs {
		if d == "" {
			return fmt.Errorf("allowed_dirs entries must be non-empty")
		}
		if d[0] != '/' {
			return fmt.Errorf("allowed_dirs entry %q must be absolute", d)
		}
	}
	return nil
}

// ToConfig converts the file representation into a compilable Config.
func (fc *FileConfig) ToConfig() Config {
	return Config{
		AllowedDirs:                 fc.AllowedDirs,
		Whitelist:                   fc.Whitelist,
		Blacklist:                   fc.Blacklist,
		WhitelistOverridesBlacklist: fc.WhitelistOverridesBlacklist,
		DeniedTokens:                fc.DeniedTokens,
		AllowAll:                    fc.AllowAll,
	}
}

// ExamplePolicy returns an example policy file configuration.
// Use this as a starting point when writing a policy for a new install.
func ExamplePolicy() *FileConfig {
	return &FileConfig{
		Version:     "1",
		AllowedDirs: DefaultAllowedDirs,
		Whitelist:   "xset|xdotool|luakit|sleep|echo",
		Blacklist:   "rm|reboot|shutdown|poweroff|halt",
	}
}
