// Package git resolves version-control metadata for watched roots.
//
// A watched root does not have to be a git repository. When it is (or when it
// sits inside one), build records are stamped with the HEAD commit so that a
// record can be traced back to the exact source that was built.
package git
