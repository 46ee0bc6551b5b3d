// Package jsonl provides a Source which reads JSON Lines files. A single value is extracted from
// each line using https://github.com/tidwall/gjson, so the field to extract is a gjson path.
package jsonl
