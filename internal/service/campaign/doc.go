// Package campaign runs campaign dispatches.
//
// A dispatch validates the request, prepares the campaign HTML once, then
// walks the audience chunk by chunk: every recipient gets a personalized
// copy, the copies are batched onto the queue, and whatever the queue
// refuses after retries goes to the failure store. Sweeps pick up persisted
// scheduled sends and dispatch them one at a time.
//
// The service depends on interfaces defined here and in the audience,
// queue and failures packages. Postgres implementations live in
// repository/postgres/.
package campaign
