// Package block stores block payloads on disk, addressed by hash code.
//
// Layout under the blocks directory:
//
//	blocks/<id>/payload/     copy of the registered file or directory
//	blocks/<id>/system.json  metadata record {id, kind, name, createdAt, digest}
//
// Payloads are copied into a staging directory and renamed into place, so a
// block directory is either complete or absent. A block's digest is a tree
// digest over its payload (see Digest); its ID derives from kind and digest.
package block
