// Package harness drives an import-test batch end to end.
//
// A Runner walks a corpus, skips inputs whose fingerprint was already seen,
// runs the import tool on the rest and writes one result row per discovered
// file. A Classifier rebuilds the same table from an earlier run's log
// directories without invoking the tool. A Sorter reads either table and
// moves each input into a Passed, Failed or Timedout directory beside it.
package harness
