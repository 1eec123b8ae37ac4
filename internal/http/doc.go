// Package http provides HTTP handlers and middleware for the scheduler API.
//
// The router exposes the following endpoints:
//   - GET /schedules, POST /schedules, GET /schedules/{id}, PUT /schedules/{id},
//     DELETE /schedules/{id}: schedule management endpoints exchanging the
//     `scheduleDTO` payload defined in schedule_handler.go. Mutation responses
//     include conflict warnings; conflicts never block the mutation.
//   - GET /schedules/{id}/occurrences?from=...&to=...: expands the identified
//     schedule's recurrence over the given window.
//   - POST /sync/{user_id}: triggers an external-calendar sync run for the
//     user, honoring the per-user cooldown.
//   - GET /calendar.ics: renders the caller's schedules as an iCalendar
//     document; recurrence masters carry an RRULE.
//
// The caller identity is taken from the X-User-ID and X-Admin headers by the
// Identity middleware; credential verification happens upstream of this
// service.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
