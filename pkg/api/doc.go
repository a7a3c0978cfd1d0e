// Package api implements the JSON management API of tenancyd.
//
// Central exposes tenant provisioning and lifecycle transitions and runs
// against the central database. Organizations and CurrentTenant run behind
// tenant.Middleware and only ever see the database of the resolved tenant.
//
// Every reply uses the Response envelope. Error maps domain errors to status
// codes and hides the message of unexpected failures.
package api
