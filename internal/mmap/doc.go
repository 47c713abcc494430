// Package mmap maps archive files read-only into memory.
//
// The local archive store decodes frames straight from the mapping instead
// of reading each file into a fresh buffer. On unix the package uses mmap(2)
// and madvise(2); on windows CreateFileMapping/MapViewOfFile, where access
// hints are ignored.
//
// A Mapping must not be used after Close. Slices returned by Bytes are only
// valid until then.
package mmap
