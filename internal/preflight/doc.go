// Package preflight provides readiness checks for the remote endpoints and
// filesystem paths that callpipe depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup. Directory failures abort the start;
//     endpoint failures are logged because the endpoints may come up later.
//   - The CLI "callpipe status" command renders the same results as a table.
package preflight
