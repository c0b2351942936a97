// Package flatten denormalizes candidates and their side-loaded job
// applications into fixed-shape rows.
package flatten

// Resource types and attribute names used by the Teamtailor API.
const (
	TypeCandidate      = "candidates"
	TypeJobApplication = "job-applications"

	RelationshipJobApplications = "job-applications"

	AttrFirstName = "first-name"
	AttrLastName  = "last-name"
	AttrEmail     = "email"
	AttrCreatedAt = "created-at"
)

// Header is the fixed column order of a Row.
var Header = []string{
	"candidate_id",
	"first_name",
	"last_name",
	"email",
	"job_application_id",
	"job_application_created_at",
}

// Row joins one candidate to one job application, or to none.
type Row struct {
	CandidateID             string
	FirstName               string
	LastName                string
	Email                   string
	JobApplicationID        string
	JobApplicationCreatedAt string
}

// Values returns the fields in Header order.
func (r Row) Values() []string {
	return []string{
		r.CandidateID,
		r.FirstName,
		r.LastName,
		r.Email,
		r.JobApplicationID,
		r.JobApplicationCreatedAt,
	}
}

// IsPlaceholder reports whether the row carries no job application.
func (r Row) IsPlaceholder() bool {
	return r.JobApplicationID == ""
}
