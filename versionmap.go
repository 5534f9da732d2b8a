package campaignd

import (
	"iter"
	"sort"
)

// VersionRecord ties a version string to the basename of its full pack file.
type VersionRecord struct {
	Version  string
	Filename string
}

// VersionMap is the ordered history of one add-on: version records sorted by
// parsed version, oldest first. Inserting a record whose version parses
// equal to an existing key replaces that record.
//
// The zero value is an empty map ready for use.
type VersionMap struct {
	entries []versionEntry
}

type versionEntry struct {
	key Version
	rec VersionRecord
}

// NewVersionMap builds a VersionMap from the given records.
func NewVersionMap(records ...VersionRecord) *VersionMap {
	vm := &VersionMap{}
	for _, rec := range records {
		vm.InsertReplace(rec)
	}
	return vm
}

// Len returns the number of known versions.
func (vm *VersionMap) Len() int {
	return len(vm.entries)
}

// InsertReplace inserts rec, replacing any record with an equal version key.
func (vm *VersionMap) InsertReplace(rec VersionRecord) {
	key := ParseVersion(rec.Version)
	i := vm.lowerBound(key)
	if i < len(vm.entries) && vm.entries[i].key.Equal(key) {
		vm.entries[i] = versionEntry{key: key, rec: rec}
		return
	}
	vm.entries = append(vm.entries, versionEntry{})
	copy(vm.entries[i+1:], vm.entries[i:])
	vm.entries[i] = versionEntry{key: key, rec: rec}
}

// Find returns the record whose version parses equal to v.
func (vm *VersionMap) Find(v Version) (VersionRecord, bool) {
	i := vm.lowerBound(v)
	if i < len(vm.entries) && vm.entries[i].key.Equal(v) {
		return vm.entries[i].rec, true
	}
	return VersionRecord{}, false
}

// NearestOlder returns the newest record whose version is less than or equal
// to v. It reports false if every known version is newer than v.
func (vm *VersionMap) NearestOlder(v Version) (VersionRecord, bool) {
	i := vm.upperBound(v)
	if i == 0 {
		return VersionRecord{}, false
	}
	return vm.entries[i-1].rec, true
}

// First returns the oldest record.
func (vm *VersionMap) First() (VersionRecord, bool) {
	if len(vm.entries) == 0 {
		return VersionRecord{}, false
	}
	return vm.entries[0].rec, true
}

// Last returns the newest record.
func (vm *VersionMap) Last() (VersionRecord, bool) {
	if len(vm.entries) == 0 {
		return VersionRecord{}, false
	}
	return vm.entries[len(vm.entries)-1].rec, true
}

// Records returns all records, oldest first.
func (vm *VersionMap) Records() []VersionRecord {
	out := make([]VersionRecord, len(vm.entries))
	for i, e := range vm.entries {
		out[i] = e.rec
	}
	return out
}

// Pairs iterates over every pair of consecutive versions, oldest first.
func (vm *VersionMap) Pairs() iter.Seq2[VersionRecord, VersionRecord] {
	return func(yield func(VersionRecord, VersionRecord) bool) {
		for i := 0; i+1 < len(vm.entries); i++ {
			if !yield(vm.entries[i].rec, vm.entries[i+1].rec) {
				return
			}
		}
	}
}

// Range returns the records in [from, to], oldest first. Both bounds must
// be exact keys in the map and from must be strictly older than to; nil is
// returned otherwise.
func (vm *VersionMap) Range(from, to Version) []VersionRecord {
	start := vm.lowerBound(from)
	end := vm.lowerBound(to)
	if start >= len(vm.entries) || end >= len(vm.entries) {
		return nil
	}
	if !vm.entries[start].key.Equal(from) || !vm.entries[end].key.Equal(to) || start >= end {
		return nil
	}
	out := make([]VersionRecord, 0, end-start)
	for i := start; i <= end; i++ {
		out = append(out, vm.entries[i].rec)
	}
	return out
}

// lowerBound returns the index of the first entry not less than v.
func (vm *VersionMap) lowerBound(v Version) int {
	return sort.Search(len(vm.entries), func(i int) bool {
		return !vm.entries[i].key.Less(v)
	})
}

// upperBound returns the index of the first entry greater than v.
func (vm *VersionMap) upperBound(v Version) int {
	return sort.Search(len(vm.entries), func(i int) bool {
		return v.Less(vm.entries[i].key)
	})
}
