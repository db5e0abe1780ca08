// Package auth issues and verifies the JWTs that dashboards and service
// tools present to the API.
//
// There are two roles:
//   - panel: a lab dashboard. It reads dialogs, acts on them and reports
//     its route.
//   - service: a technician tool. It also manages feature toggles, the
//     watched instruments, and can inject instrument events for testing.
//
// A client obtains a token by presenting the lab's enrolment key. Tokens
// are validated by signature only; there is no token store.
package auth
