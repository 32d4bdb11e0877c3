package envelope

import "strings"

// BuildTopicKey composes "<prefix>:<topic>" with exactly one ':' separator
// at the seam, regardless of whether prefix/topic already carry one. An
// empty prefix yields the bare topic. Pure function; no I/O.
func BuildTopicKey(prefix, topic string) string {
	if prefix == "" {
		return topic
	}
	p := strings.TrimRight(prefix, ":")
	t := strings.TrimLeft(topic, ":")
	return p + ":" + t
}
