// Package request provides the HTTP fan-out engine used by the scraper and the
// Discord client.
//
// A Call is one pending network operation. One and All settle a single call or
// a batch of concurrent calls into a (value, error) pair and apply a transform
// to the settled values. Send and SendEach build calls from a Request shape
// and a target address (or a per-item address function), inject the bot
// credential, and run them through One and All respectively.
package request
