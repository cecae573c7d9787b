// Package titlekey canonicalizes playlist titles and local file names into
// normalized keys.
//
// A key is the join identity shared by the playlist, the local media index,
// the decision cache, and the output tree: one logical title and year (plus
// season and episode for TV) maps to exactly one key. The mapping is pure and
// deterministic. Version must be bumped whenever Normalize changes output for
// any input; the cache drops every stored decision when it sees a different
// version.
package titlekey
