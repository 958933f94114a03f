// Package topicfilter parses and classifies Meshtastic-style MQTT
// topics (msh/<region...>/2/<type>/<channel>/<user>) and lists the
// subscription filters the ingest pipeline registers on every broker.
package topicfilter

import "strings"

const (
	sep            = "/"
	versionSegment = "2"
	rootSegment    = "msh"
)

// Filters is the fixed set of topic filters every BrokerSession
// subscribes to on connect. The depth of region nesting varies in the
// wild, so the same shape is repeated for 1-4 region segments.
var Filters = []string{
	"msh/+/2/map/",
	"msh/+/2/e/+/+",
	"msh/+/+/2/map/",
	"msh/+/+/2/e/+/+",
	"msh/+/+/+/2/map/",
	"msh/+/+/+/2/e/+/+",
	"msh/+/+/+/+/2/map/",
	"msh/+/+/+/+/2/e/+/+",
}

// Type is the message class carried right after the protocol version
// marker in the topic path.
type Type string

const (
	TypeEncoded Type = "e"    // binary protobuf ServiceEnvelope
	TypeJSON    Type = "json" // JSON-encoded payload
	TypeMap     Type = "map"  // map report, no channel/user suffix
	TypeStat    Type = "stat" // gateway stats, always ignored
	TypeOther   Type = ""     // anything else: still routed as binary
)

// Parsed is the decoded shape of an inbound topic.
type Parsed struct {
	Region  []string // region path segments before the version marker
	Type    Type
	Channel string // empty for TypeMap
	User    string // empty for TypeMap
}

// Parse splits topic on '/' and locates the protocol version marker
// ("2") to recover the type/channel/user slots that follow it,
// regardless of how many region segments precede it — the filter set
// above subscribes to 1-4 region levels, so the marker's absolute
// position is not fixed. The marker is taken as the *last* standalone
// "2" segment in the path, since region names are never bare "2".
func Parse(topic string) (Parsed, bool) {
	parts := strings.Split(topic, sep)
	if len(parts) < 2 || parts[0] != rootSegment {
		return Parsed{}, false
	}

	markerIdx := -1
	for i := len(parts) - 1; i >= 1; i-- {
		if parts[i] == versionSegment {
			markerIdx = i
			break
		}
	}
	if markerIdx < 0 || markerIdx+1 >= len(parts) {
		return Parsed{}, false
	}

	p := Parsed{Region: append([]string(nil), parts[1:markerIdx]...)}
	rest := parts[markerIdx+1:]
	p.Type = Type(rest[0])

	switch p.Type {
	case TypeMap, TypeStat:
		// no channel/user slots expected; anything present is ignored.
	default:
		if len(rest) > 1 {
			p.Channel = rest[1]
		}
		if len(rest) > 2 {
			p.User = rest[2]
		}
	}
	return p, true
}

// Broadcast is the reserved "everyone" destination address.
const Broadcast uint32 = 0xFFFFFFFF

// AllowedPrefixes are the topic prefixes the Notifier is allowed to
// forward broadcasts from.
var AllowedPrefixes = []string{"msh/msk/", "msh/kgd/", "msh/ufa/"}

// Channel names the chat channel a topic's prefix maps to.
type Channel string

const (
	ChannelMain        Channel = "ch_main"
	ChannelKaliningrad Channel = "ch_kgd"
	ChannelUfa         Channel = "ch_ufa"
)

// IsAllowed reports whether topic carries one of AllowedPrefixes.
func IsAllowed(topic string) bool {
	for _, p := range AllowedPrefixes {
		if strings.HasPrefix(topic, p) {
			return true
		}
	}
	return false
}

// ChannelFor selects the chat channel for a topic, given it already
// passed IsAllowed. Unmatched (but allowed) prefixes fall back to Main.
func ChannelFor(topic string) Channel {
	switch {
	case strings.HasPrefix(topic, "msh/kgd/"):
		return ChannelKaliningrad
	case strings.HasPrefix(topic, "msh/ufa/"):
		return ChannelUfa
	default:
		return ChannelMain
	}
}
