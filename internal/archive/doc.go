// Package archive packs directory trees into compressed tarballs and unpacks them.
//
// Pack always writes gzip-compressed tar streams whose entries live under a single
// rewritten root directory. Unpack accepts gzip, zstd, bzip2 and uncompressed tar
// input and reports the effective content root:
//   - first entry is a directory -> <dest>/<first entry>
//   - otherwise (flat file set)  -> <dest>
package archive
