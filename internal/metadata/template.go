package metadata

import "fmt"

// Template emits a minimally valid metadata document for name/version: a
// package block plus one example apt_package step, so `create-template`
// produces something the operator can edit rather than an empty stub.
func Template(name, version string) []byte {
	return []byte(fmt.Sprintf(`package:
  name: %s
  version: %s
  description: ""
  author: ""
  license: ""

requirements:
  min_disk_space: 100
  architectures:
    - amd64

install_steps:
  - type: apt_package
    rollback: auto
    action: install
    packages:
      - %s
    refresh_cache: true

pre_install: []
post_install: []

dependencies: []
conflicts: []
`, name, version, name))
}
