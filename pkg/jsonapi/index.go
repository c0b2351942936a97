package jsonapi

// Index maps resource ids to side-loaded resources of a single type.
// An Index is scoped to one page; it is never carried across pages.
type Index map[string]Resource

// BuildIndex indexes the included resources of the given type.
func BuildIndex(included []Resource, resourceType string) Index {
	idx := make(Index, len(included))
	for _, res := range included {
		if res.Type != resourceType {
			continue
		}
		idx[res.ID] = res
	}
	return idx
}

// Lookup returns the resource with the given id.
func (idx Index) Lookup(id string) (Resource, bool) {
	res, ok := idx[id]
	return res, ok
}
