// Package graph maps knowledge collections and assets onto named-graph IRIs.
// Everything here is pure; no function touches a store.
package graph

import (
	"strconv"
	"strings"

	"github.com/BogBogdan/ot-node/internal/domain/knowledge"
)

const (
	MetadataGraph          = "metadata:graph"
	UnifiedGraph           = "unified:graph"
	HistoricalUnifiedGraph = "historical-unified:graph"
	LegacyAssetsGraph      = "assets:graph"
	legacyAssertionPrefix  = "assertion:"

	SchemaContext = "http://schema.org/"

	UALPredicate   = "<https://ontology.origintrail.io/dkg/1.0#UAL>"
	LabelPredicate = "<https://ontology.origintrail.io/dkg/1.0#label>"
	PrivateLabel   = "private"
)

// AssetUAL is the UAL of asset index within a collection.
func AssetUAL(collectionUAL string, index uint64) string {
	return strings.TrimSuffix(collectionUAL, "/") + "/" + strconv.FormatUint(index, 10)
}

// AssetGraph is the content graph <ual>/<index>/<visibility>.
func AssetGraph(collectionUAL string, index uint64, v knowledge.Visibility) string {
	return VisibilityGraph(AssetUAL(collectionUAL, index), v)
}

// VisibilityGraph appends the visibility suffix to an asset UAL.
func VisibilityGraph(assetUAL string, v knowledge.Visibility) string {
	return assetUAL + "/" + string(v)
}

// CombinedGraph is the visibility-less graph <ual>/<index> used by the unified and legacy layouts.
func CombinedGraph(collectionUAL string, index uint64) string {
	return AssetUAL(collectionUAL, index)
}

// CollectionGraphs lists the content graphs of every live asset in r for a single visibility.
// Burned indices never appear.
func CollectionGraphs(collectionUAL string, r knowledge.TokenRange, v knowledge.Visibility) []string {
	indices := r.Indices()
	out := make([]string, 0, len(indices))
	for _, i := range indices {
		out = append(out, AssetGraph(collectionUAL, i, v))
	}
	return out
}

// SubjectPrefix is the STRSTARTS prefix that matches a collection's assets but not
// a sibling collection whose id shares leading digits.
func SubjectPrefix(collectionUAL string) string {
	return strings.TrimSuffix(collectionUAL, "/") + "/"
}

// LegacyAssertionGraph names the pre-UAL graph keyed by assertion id.
func LegacyAssertionGraph(assertionID string) string {
	return legacyAssertionPrefix + strings.TrimPrefix(assertionID, legacyAssertionPrefix)
}

// LegacyAssertionID strips the graph prefix from a stored assertion reference.
func LegacyAssertionID(ref string) string {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimPrefix(ref, "<")
	ref = strings.TrimSuffix(ref, ">")
	return strings.TrimPrefix(ref, legacyAssertionPrefix)
}
