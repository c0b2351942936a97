// Package pagination walks every candidates page of the Teamtailor API and
// accumulates the flattened rows.
//
// Pages are fetched strictly one after another: the continuation cursor of
// page n+1 is only known once page n has arrived, and all requests share the
// upstream rate limit. The loop ends when a page carries no links.next.
//
// Example usage:
//
//	driver := pagination.NewDriver(teamtailorClient, pagination.DefaultConfig())
//	rows, err := driver.FetchAll(ctx, apiKey)
//
// The driver:
//   - Estimates the total page count from the first page's meta (progress only)
//   - Builds the job-application index per page, never across pages
//   - Returns no partial rows when any page fails
//   - Aborts with ErrPageLimitExceeded after Config.MaxPages pages
package pagination
