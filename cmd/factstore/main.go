// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command factstore manages a version-aware technology fact store.
//
// Usage:
//
//	factstore put npm nextjs 14.1.0 --file nextjs.json
//	factstore fallback npm nextjs 14.1.3
//	factstore query npm nextjs --pattern 14.1
//	factstore export
//	factstore serve --addr 127.0.0.1:8088
//
// The store location comes from ~/.factstore/factstore.yaml, which is
// created with defaults on first run. Flags override the file.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
