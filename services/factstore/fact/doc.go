// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fact defines the fact key, its payload, the binary codec and the
// Storage contract shared by every backend.
//
// # Key Encoding
//
// A Key encodes to "fact:{ecosystem}:{tool}:{version}". This string is the
// one wire-level format every range query depends on: version listings,
// ecosystem listings and prefix search are all plain prefix scans over it.
// '%' and ':' inside a segment are escaped as "%25" and "%3A", so
//
//	fact.ParseStorageKey(k.StorageKey()) == k
//
// holds for every Key, including tools such as "scope:name".
//
// # Payload
//
// Data is opaque to storage. Backends store it in the binary form produced
// by Encode (schema byte, CRC32, gob body) and mirror it as pretty-printed
// JSON via MarshalJSON.
package fact
