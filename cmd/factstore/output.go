// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/mikkihugo/ex-llm-sub002/services/factstore/fact"
)

// errNotFound is returned by commands whose lookup found nothing, so the
// process exits non-zero.
var errNotFound = errors.New("not found")

// printJSON writes v as indented JSON with a trailing newline.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printFact writes data in the export file format.
func printFact(w io.Writer, data *fact.Data) error {
	raw, err := fact.MarshalJSON(data)
	if err != nil {
		return err
	}
	_, err = w.Write(raw)
	return err
}

// printKeys writes one storage key per line.
func printKeys(w io.Writer, keys []fact.Key) error {
	for _, k := range keys {
		if _, err := io.WriteString(w, k.StorageKey()+"\n"); err != nil {
			return err
		}
	}
	return nil
}
