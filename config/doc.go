// Package config loads dialogmesh configuration and builds the collaborators
// it describes.
//
// Values are resolved in order: defaults, then a YAML file, then environment
// variables prefixed with DIALOGMESH_ (for example DIALOGMESH_STORAGE_TYPE or
// DIALOGMESH_STORAGE_REDIS_ADDR), then validators.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("dialogmesh.yaml").
//	    Load()
package config
