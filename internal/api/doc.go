// Package api exposes the REST surface of the conversational agent: user
// registration, API key issuance, and the message endpoint that feeds the
// intent router.
package api
