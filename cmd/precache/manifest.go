package main

import (
	_ "embed"
	"fmt"

	"github.com/always-cache/precache"

	"gopkg.in/yaml.v3"
)

// the manifest is compiled into the binary, changing it requires a rebuild
//
//go:embed precache.yaml
var manifestBytes []byte

type Manifest struct {
	CacheName string   `yaml:"cacheName"`
	Resources []string `yaml:"resources"`
}

// parseManifest reads the manifest, using the package defaults for missing fields.
func parseManifest(b []byte) (Manifest, error) {
	var manifest Manifest
	if err := yaml.Unmarshal(b, &manifest); err != nil {
		return manifest, fmt.Errorf("Could not parse manifest: %w", err)
	}
	if manifest.CacheName == "" {
		manifest.CacheName = precache.DefaultCacheName
	}
	if len(manifest.Resources) == 0 {
		manifest.Resources = precache.DefaultResources
	}
	return manifest, nil
}
