package badger

import "fmt"

// Key prefixes for different data types
const (
	documentPrefix   = "doc"
	collectionPrefix = "doccol"
	vectorPrefix     = "vec"
)

// makeDocumentKey generates a key for a document within a collection.
func makeDocumentKey(collection, docID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", documentPrefix, collection, docID))
}

// makeCollectionScanKey generates the key prefix for iterating a collection.
func makeCollectionScanKey(collection string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", documentPrefix, collection))
}

// makeCollectionKey generates the marker key recording a collection's existence.
func makeCollectionKey(collection string) []byte {
	return []byte(fmt.Sprintf("%s:%s", collectionPrefix, collection))
}

// makeVectorKey generates a key for a vector index entry.
func makeVectorKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", vectorPrefix, id))
}
