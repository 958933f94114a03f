// Package portrouter maps a decoded Data payload's portnum to its
// symbolic name, its decoded fields, and the Store/MapAggregator
// side-effects that follow from it.
package portrouter

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/pico-cs/mesh-ingest/internal/meshproto"
)

// Name is the symbolic port name persisted as the list-key prefix.
type Name string

const (
	NameTextMessage  Name = "TEXT_MESSAGE_APP"
	NamePosition     Name = "POSITION_APP"
	NameNodeInfo     Name = "NODEINFO_APP"
	NameWaypoint     Name = "WAYPOINT_APP"
	NameTelemetry    Name = "TELEMETRY_APP"
	NameTraceroute   Name = "TRACEROUTE_APP"
	NameNeighborInfo Name = "NEIGHBORINFO_APP"
	NameMapReport    Name = "MAP_REPORT_APP"
)

var portNames = map[meshproto.Portnum]Name{
	meshproto.PortnumTextMessage:  NameTextMessage,
	meshproto.PortnumPosition:     NamePosition,
	meshproto.PortnumNodeInfo:     NameNodeInfo,
	meshproto.PortnumWaypoint:     NameWaypoint,
	meshproto.PortnumTelemetry:    NameTelemetry,
	meshproto.PortnumTraceroute:   NameTraceroute,
	meshproto.PortnumNeighborInfo: NameNeighborInfo,
	meshproto.PortnumMapReport:    NameMapReport,
}

// NameFor returns the symbolic name for portnum, synthesizing
// UNKNOWN_<n> for anything not in the known-portnum table.
func NameFor(p meshproto.Portnum) Name {
	if n, ok := portNames[p]; ok {
		return n
	}
	return Name(fmt.Sprintf("UNKNOWN_%d", p))
}

// Known reports whether portnum appears in the known-portnum table
// (and therefore is eligible to update the Dot).
func Known(p meshproto.Portnum) bool {
	_, ok := portNames[p]
	return ok
}

// DotUpdate is the partial Dot mutation a decoded packet implies,
// independent of whether the Store ultimately applies it (that
// decision belongs to MapAggregator/Deduper).
type DotUpdate struct {
	HasCoords bool
	Longitude float64
	Latitude  float64
	HasNames  bool
	LongName  string
	ShortName string
}

// Route is the outcome of routing one decoded packet: which port list
// to append to, what Dot mutation (if any) it implies, and whether it
// qualifies for group-chat forwarding.
type Route struct {
	PortName  Name
	DotUpdate DotUpdate
	HasDot    bool
	Groupable bool // TEXT_MESSAGE_APP + broadcast + allowed region
}

// RouteData derives the routing side-effects for a decoded Data
// payload. broadcast and allowedRegion are supplied by the caller
// because they depend on the MeshPacket.To field and the inbound
// topic, neither of which this package parses itself.
func RouteData(data *meshproto.Data, broadcast, allowedRegion bool) (Route, error) {
	name := NameFor(data.Portnum)
	r := Route{PortName: name}

	switch data.Portnum {
	case meshproto.PortnumTextMessage:
		r.Groupable = broadcast && allowedRegion

	case meshproto.PortnumPosition:
		pos, err := meshproto.DecodePosition(data.Payload)
		if err != nil {
			return Route{}, err
		}
		if pos.LatitudeI != 0 && pos.LongitudeI != 0 {
			r.DotUpdate.HasCoords = true
			r.DotUpdate.Latitude = float64(pos.LatitudeI) / 1e7
			r.DotUpdate.Longitude = float64(pos.LongitudeI) / 1e7
			r.HasDot = true
		}

	case meshproto.PortnumNodeInfo:
		u, err := meshproto.DecodeUser(data.Payload)
		if err != nil {
			return Route{}, err
		}
		if ValidUserName(u.LongName) || ValidUserName(u.ShortName) {
			r.DotUpdate.HasNames = true
			r.DotUpdate.LongName = u.LongName
			r.DotUpdate.ShortName = u.ShortName
			r.HasDot = true
		}

	case meshproto.PortnumWaypoint:
		if _, err := meshproto.DecodeWaypoint(data.Payload); err != nil {
			return Route{}, err
		}

	case meshproto.PortnumTelemetry:
		if _, err := meshproto.DecodeTelemetry(data.Payload); err != nil {
			return Route{}, err
		}

	case meshproto.PortnumTraceroute:
		if _, err := meshproto.DecodeRouteDiscovery(data.Payload); err != nil {
			return Route{}, err
		}

	case meshproto.PortnumNeighborInfo:
		if _, err := meshproto.DecodeNeighborInfo(data.Payload); err != nil {
			return Route{}, err
		}

	case meshproto.PortnumMapReport:
		mr, err := meshproto.DecodeMapReport(data.Payload)
		if err != nil {
			return Route{}, err
		}
		if mr.LatitudeI != 0 && mr.LongitudeI != 0 {
			r.DotUpdate.HasCoords = true
			r.DotUpdate.Latitude = float64(mr.LatitudeI) / 1e7
			r.DotUpdate.Longitude = float64(mr.LongitudeI) / 1e7
			r.HasDot = true
		}
		if ValidUserName(mr.LongName) || ValidUserName(mr.ShortName) {
			r.DotUpdate.HasNames = true
			r.DotUpdate.LongName = mr.LongName
			r.DotUpdate.ShortName = mr.ShortName
			r.HasDot = true
		}
	}

	return r, nil
}

// ValidUserName rejects empty strings, whitespace-only strings, and
// strings with no printable rune.
func ValidUserName(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, r := range s {
		if unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return true
		}
	}
	return false
}
