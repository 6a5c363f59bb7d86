// Package flatfile provides driven port implementations persisted as
// plain JSON and text files under a single data directory.
//
// Layout:
//
//	<data>/vector_store.json     JSON array of chunk records
//	<data>/vector_index.json     document id -> record positions
//	<data>/metadata/<id>.json    one document metadata object
//	<data>/content/<id>.txt      one document's raw text
//	<data>/hash_index.json       content hash -> document id
//	<data>/embedding_cache.json  text hash -> vector
//
// Every file is independently recoverable: a missing file loads as empty
// and an unparseable one is reset on the next write. Writes go to a
// temporary file that is renamed over the target.
//
// # Thread Safety
//
// All types are safe for concurrent use.
package flatfile
