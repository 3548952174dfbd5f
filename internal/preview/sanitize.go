// Copyright (c) 2026 Frameflow. All rights reserved.
// Use of this source code is governed by the Frameflow License
// that can be found in the LICENSE file.

package preview

import (
	"fmt"
	"path/filepath"
	"strings"
)

// maxSessionIDLength limita o comprimento de um session id na URL.
const maxSessionIDLength = 64

// validateSessionID valida que um id vindo da URL é seguro para compor
// caminhos no filesystem. Previne path traversal.
func validateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if len(id) > maxSessionIDLength {
		return fmt.Errorf("session id exceeds max length %d", maxSessionIDLength)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return fmt.Errorf("session id contains invalid character %q", r)
		}
	}
	return nil
}

// validatePathInBaseDir verifica que o caminho resolvido permanece dentro
// de baseDir. Defesa em profundidade contra path traversal.
func validatePathInBaseDir(baseDir, resolvedPath string) error {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("resolving base dir: %w", err)
	}
	absResolved, err := filepath.Abs(resolvedPath)
	if err != nil {
		return fmt.Errorf("resolving target path: %w", err)
	}

	rel, err := filepath.Rel(absBase, absResolved)
	if err != nil {
		return fmt.Errorf("path escapes base directory: %w", err)
	}
	if strings.HasPrefix(rel, "..") {
		return fmt.Errorf("path %q escapes base directory %q", resolvedPath, baseDir)
	}
	return nil
}
