// teamtailor-export exports Teamtailor candidates and their job applications
// as a CSV document.
//
// Usage:
//
//	# Serve the export over HTTP at /api/export/candidates.csv
//	teamtailor-export serve --port 8080
//
//	# Write one export to a file
//	teamtailor-export export --out candidates.csv
//
// The API key is read from TEAMTAILOR_API_KEY, either from the environment
// or from a .env file in the working directory.
package main

func main() {
	Execute()
}
