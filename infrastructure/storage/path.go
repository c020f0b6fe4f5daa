package storage

import (
	"fmt"
	"strings"

	"quiz-lab/errors"
)

const probeCollection = "_probe"

// location splits a store path into the badger document key and the field
// path inside that document. The first two segments name a document
// (collection/id); a single segment addresses a whole collection.
type location struct {
	collection string
	doc        string
	field      []string
}

func (l location) isCollection() bool {
	return l.doc == ""
}

func (l location) key() []byte {
	return []byte(l.doc)
}

// prefix is what a subscription has to match in badger.
func (l location) prefix() []byte {
	if l.isCollection() {
		return []byte(l.collection + "/")
	}
	return []byte(l.doc)
}

func (l location) matches(key string) bool {
	if l.isCollection() {
		return strings.HasPrefix(key, l.collection+"/")
	}
	return key == l.doc
}

func locate(path string) (location, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for _, s := range segments {
		if s == "" || strings.ContainsAny(s, ".#$[]") {
			return location{}, fmt.Errorf("%w: %q", errors.ErrInvalidPath, path)
		}
	}
	if segments[0] == probeCollection {
		return location{}, fmt.Errorf("%w: %q is reserved", errors.ErrInvalidPath, path)
	}
	loc := location{collection: segments[0]}
	if len(segments) >= 2 {
		loc.doc = segments[0] + "/" + segments[1]
		loc.field = segments[2:]
	}
	return loc, nil
}

func docID(key []byte, collection string) string {
	return strings.TrimPrefix(string(key), collection+"/")
}
