package flatten

import (
	"github.com/zieneks/teamtailor-csv-export/pkg/jsonapi"
)

// Flatten turns one candidate into rows, one per referenced job application
// in reference order. A candidate without job applications yields a single
// placeholder row. References missing from idx still produce a row with an
// empty timestamp.
func Flatten(candidate jsonapi.Resource, idx jsonapi.Index) []Row {
	base := Row{
		CandidateID: candidate.ID,
		FirstName:   candidate.StringAttribute(AttrFirstName),
		LastName:    candidate.StringAttribute(AttrLastName),
		Email:       candidate.StringAttribute(AttrEmail),
	}

	refs := candidate.Related(RelationshipJobApplications)
	if len(refs) == 0 {
		return []Row{base}
	}

	rows := make([]Row, 0, len(refs))
	for _, ref := range refs {
		row := base
		row.JobApplicationID = ref.ID
		if app, ok := idx.Lookup(ref.ID); ok {
			row.JobApplicationCreatedAt = app.StringAttribute(AttrCreatedAt)
		}
		rows = append(rows, row)
	}
	return rows
}

// Page flattens every primary resource of a page against the page's own
// job-application index.
func Page(doc *jsonapi.Document) []Row {
	if doc == nil {
		return nil
	}
	idx := jsonapi.BuildIndex(doc.Included, TypeJobApplication)

	var rows []Row
	for _, candidate := range doc.Data {
		rows = append(rows, Flatten(candidate, idx)...)
	}
	return rows
}
