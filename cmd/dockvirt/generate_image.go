package main

import "github.com/jbweber/dockvirt/internal/installer"

// buildInstallerImage renders the generate-image installer ISO carrying the
// binary at selfPath.
func buildInstallerImage(selfPath string) ([]byte, error) {
	return installer.Build(selfPath)
}
