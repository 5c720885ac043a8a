// Package blocks turns reified intrinsic nodes into the platform block tree.
//
// The engine never interprets tags. It reifies every intrinsic element into
// a Node (action props already replaced by hook ids, children already
// transformed) and hands it to a Transformer. Catalog is the default
// Transformer and knows a small fixed set of layout and content tags.
package blocks
