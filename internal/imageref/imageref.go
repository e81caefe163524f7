// Package imageref parses and validates a container image reference the
// same way OCI registries do, so a malformed `image` value is rejected at
// config-resolve time (ConfigInvalid) instead of surfacing deep inside the
// guest boot.
//
// This package only parses; it never dials a registry, matching the Config
// Resolver's "never performs I/O" boundary and the Seed Builder's pure-
// renderer role.
package imageref

import (
	"fmt"

	"github.com/google/go-containerregistry/pkg/name"
)

// Reference is the parsed form of an `image` config value: registry,
// repository, and tag-or-digest, normalized the way name.ParseReference
// does it (e.g. a bare "nginx" normalizes to registry "index.docker.io",
// repository "library/nginx").
type Reference struct {
	Registry   string
	Repository string
	TagOrDigest string
	raw         string
}

// String returns the reference string as it was given to Parse; the
// normalized parts are in Registry, Repository and TagOrDigest.
func (r Reference) String() string {
	return r.raw
}

// Parse validates image against the Docker/OCI reference grammar, returning
// ConfigInvalid-worthy detail on failure. An empty image is rejected like
// any other malformed value; the Config Resolver treats an empty image as
// "not yet declared" by not calling Parse for it.
func Parse(image string) (Reference, error) {
	ref, err := name.ParseReference(image, name.WeakValidation)
	if err != nil {
		return Reference{}, fmt.Errorf("invalid image reference %q: %w", image, err)
	}

	tagOrDigest := ""
	switch t := ref.(type) {
	case name.Tag:
		tagOrDigest = t.TagStr()
	case name.Digest:
		tagOrDigest = t.DigestStr()
	}

	return Reference{
		Registry:    ref.Context().RegistryStr(),
		Repository:  ref.Context().RepositoryStr(),
		TagOrDigest: tagOrDigest,
		raw:         ref.String(),
	}, nil
}

// IsPullable judges whether image is a remote-resolvable reference: a
// reference that parses as a registry/repository/tag
// triple (or no registry segment, defaulting to Docker Hub) is pullable. A
// caller with a local Dockerfile build context should not call this at all
// (the build path is authoritative whenever a Dockerfile is present); this
// function only judges the image string's own shape.
func IsPullable(image string) bool {
	if image == "" {
		return false
	}
	_, err := Parse(image)
	return err == nil
}
