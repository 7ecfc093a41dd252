package pipeline

import (
	"lensforge/pkg/domain"
)

// Parameters that never serialize well are excluded from metadata by
// (component, key) pair: the drizzle offset pattern, the source catalog
// folder path, and the source inclusion-index array.
var metadataExclusions = map[[2]string]struct{}{
	{domain.ComponentSource, "source_inclusion_list"}: {},
	{domain.ComponentDrizzle, "offset_pattern"}:       {},
	{domain.ComponentSource, "catalog_folder"}:        {},
}

// flattenMetadata rebuilds the flat metadata record from the given sample.
// Keys follow "{component}_{parameter}". Booleans coerce to 0/1; strings,
// ints, floats and nil pass through; any other value is dropped with a
// single warning per Handler instance.
func (h *Handler) flattenMetadata(sample domain.Sample) domain.Record {
	metadata := make(domain.Record)
	for component, params := range sample {
		for key, value := range params {
			if _, excluded := metadataExclusions[[2]string{component, key}]; excluded {
				continue
			}
			switch tv := value.(type) {
			case bool:
				if tv {
					metadata[component+"_"+key] = 1
				} else {
					metadata[component+"_"+key] = 0
				}
			case string, int, int64, float64, float32, nil:
				metadata[component+"_"+key] = tv
			default:
				h.diag.WarnOnce(warnSerialization,
					"parameter (%s, %s), and possibly others, will not be written to metadata",
					component, key)
			}
		}
	}
	return metadata
}
