package graph

import (
	"strconv"
	"time"
)

const (
	dkgOntology = "https://ontology.origintrail.io/dkg/1.0#"

	PublishedByPredicate   = "<" + dkgOntology + "publishedBy>"
	PublishTimePredicate   = "<" + dkgOntology + "publishTime>"
	HasNamedGraphPredicate = "<" + dkgOntology + "hasNamedGraph>"
	MerkleRootPredicate    = "<" + dkgOntology + "datasetRoot>"
	ByteSizePredicate      = "<" + dkgOntology + "byteSize>"
	xsdDateTime            = "<http://www.w3.org/2001/XMLSchema#dateTime>"
	xsdInteger             = "<http://www.w3.org/2001/XMLSchema#integer>"
)

// PublishMetadata describes one finalized publish.
type PublishMetadata struct {
	Publisher   string
	PublishedAt time.Time
	MerkleRoot  string
	ByteSize    int64
}

// AssetMetadata renders the metadata statements for one asset. namedGraphs are the graphs
// holding the asset's content.
func AssetMetadata(assetUAL string, namedGraphs []string, m PublishMetadata) ([]string, error) {
	subject, err := IRI(assetUAL)
	if err != nil {
		return nil, err
	}
	var out []string
	if m.Publisher != "" {
		out = append(out, subject+" "+PublishedByPredicate+" "+Literal(m.Publisher)+" .")
	}
	if !m.PublishedAt.IsZero() {
		out = append(out, subject+" "+PublishTimePredicate+" "+
			Literal(m.PublishedAt.UTC().Format(time.RFC3339))+"^^"+xsdDateTime+" .")
	}
	if m.MerkleRoot != "" {
		out = append(out, subject+" "+MerkleRootPredicate+" "+Literal(m.MerkleRoot)+" .")
	}
	if m.ByteSize > 0 {
		out = append(out, subject+" "+ByteSizePredicate+" "+
			Literal(strconv.FormatInt(m.ByteSize, 10))+"^^"+xsdInteger+" .")
	}
	for _, g := range namedGraphs {
		iri, err := IRI(g)
		if err != nil {
			return nil, err
		}
		out = append(out, subject+" "+HasNamedGraphPredicate+" "+iri+" .")
	}
	return out, nil
}
