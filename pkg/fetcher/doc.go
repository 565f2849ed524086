/*
Package fetcher produces a local source tree for a Package, the external
collaborator spec.md §1 calls out by name but leaves unspecified. This
package supplies the interface pkg/graph's Prepare tasks resolve against,
plus one concrete implementation per Package.Source.

# Architecture

	┌─────────────────────── FETCHER ───────────────────────┐
	│                                                        │
	│  Fetch(ctx, Package) --> sourceDir, err                │
	│                                                        │
	│  SourceGit      --> GitFetcher (go-git clone+checkout) │
	│  SourceRegistry --> ErrUnsupportedSource (no registry  │
	│                     is named anywhere in this spec)    │
	└────────────────────────────────────────────────────────┘

Grounded on the go-git-based fetch step used elsewhere in this retrieval
pack for cloning a pinned revision into a scratch directory; the teacher
itself has no fetcher (it runs pre-built container images), so this
package has no direct teacher file to generalize from.
*/
package fetcher
