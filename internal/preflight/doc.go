// Package preflight checks that an index run can succeed before it starts:
// the corpus root is readable and holds loadable files, the index location
// is writable with room to spare, the embedder answers, and an existing
// index matches the embedder.
//
//	checker := preflight.New(preflight.WithVerbose(true))
//	results := checker.RunAll(ctx, preflight.Target{
//	    CorpusRoot: "data",
//	    PersistDir: "vectorstore",
//	    Supports:   dispatcher.Supports,
//	    Embedder:   embedder,
//	})
//	if checker.HasCriticalFailures(results) {
//	    // refuse to index
//	}
package preflight
