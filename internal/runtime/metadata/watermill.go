package metadata

import "github.com/ThreeDotsLabs/watermill/message"

// ToWatermill copies featureflow metadata into the Watermill message header
// type. The result is always writable and never aliases the input.
func ToWatermill(md Metadata) message.Metadata {
	out := make(message.Metadata, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

// FromWatermill copies Watermill message headers into featureflow metadata.
func FromWatermill(md message.Metadata) Metadata {
	out := make(Metadata, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
