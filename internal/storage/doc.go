// Package storage persists the set of competition keys that have already been
// announced.
//
// The default backend is a JSON file holding an object that maps each key to
// true, e.g. {"Poland: Spring Open": true}. The file is loaded once at startup
// and rewritten in full whenever a key is added; writes go to a temporary
// sibling file that is synced and renamed over the cache, so a crash leaves
// either the previous or the new version on disk. A SQLite backend is
// available for deployments that prefer a database file.
package storage
