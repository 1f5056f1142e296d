package events

import (
	"fmt"
	"strings"
)

// Subject naming conventions.
//
// Hierarchy:
//   ivr.calls.<call_uuid>.<event_suffix>   - Per-call events
//
// Wildcard subscriptions:
//   ivr.calls.>                            - All call events
//   ivr.calls.*.ended                      - All session.ended events

const (
	// SubjectPrefix is the root of all subjects
	SubjectPrefix = "ivr"

	// SubjectCalls is the per-call subject root
	SubjectCalls = SubjectPrefix + ".calls"
)

// CallSubject builds a subject for a specific call event.
// Example: CallSubject("abc-123", "ended") => "ivr.calls.abc-123.ended"
func CallSubject(callUUID string, eventSuffix string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectCalls, callUUID, eventSuffix)
}

// Topic converts a dotted subject into an MQTT topic under prefix.
// Example: Topic("home", "ivr.calls.abc.ended") => "home/ivr/calls/abc/ended"
func Topic(prefix, subject string) string {
	topic := strings.ReplaceAll(subject, ".", "/")
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return topic
	}
	return prefix + "/" + topic
}
