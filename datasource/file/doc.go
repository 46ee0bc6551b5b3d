// Package file provides a Source which reads lines of text from a set of files, locally or in S3,
// and a Sink which writes one text file per partition.
// Files are assigned to partitions in their entirety, so it is favourable if individual
// files represent roughly equal-sized divisions of data.
package file
