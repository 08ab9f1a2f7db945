package export

import (
	"encoding/xml"
	"fmt"
	"strconv"

	"lineagecore/pkg/domain"
)

// Keys the instrument uses for the spatial calibration of a recording.
const (
	calibrationSection = "DISC"
	calibrationKey     = "CALIBRATION"
)

type trackMateDoc struct {
	XMLName xml.Name       `xml:"TrackMate"`
	Version string         `xml:"version,attr"`
	Model   trackMateModel `xml:"Model"`
}

type trackMateModel struct {
	SpatialUnits   string         `xml:"spatialunits,attr"`
	TimeUnits      string         `xml:"timeunits,attr"`
	AllSpots       allSpots       `xml:"AllSpots"`
	AllTracks      allTracks      `xml:"AllTracks"`
	FilteredTracks filteredTracks `xml:"FilteredTracks"`
}

type allSpots struct {
	NSpots int            `xml:"nspots,attr"`
	Frames []spotsInFrame `xml:"SpotsInFrame"`
}

type spotsInFrame struct {
	Frame int         `xml:"frame,attr"`
	Spots []mamutSpot `xml:"Spot"`
}

type mamutSpot struct {
	ID         int     `xml:"ID,attr"`
	Name       string  `xml:"name,attr"`
	Visibility int     `xml:"VISIBILITY,attr"`
	Radius     float64 `xml:"RADIUS,attr"`
	Quality    float64 `xml:"QUALITY,attr"`
	PositionT  float64 `xml:"POSITION_T,attr"`
	PositionX  float64 `xml:"POSITION_X,attr"`
	PositionY  float64 `xml:"POSITION_Y,attr"`
	PositionZ  float64 `xml:"POSITION_Z,attr"`
	Frame      int     `xml:"FRAME,attr"`
}

type allTracks struct {
	Tracks []mamutTrack `xml:"Track"`
}

type mamutTrack struct {
	Name     string      `xml:"name,attr"`
	TrackID  int         `xml:"TRACK_ID,attr"`
	Duration int         `xml:"TRACK_DURATION,attr"`
	Start    int         `xml:"TRACK_START,attr"`
	Stop     int         `xml:"TRACK_STOP,attr"`
	NSpots   int         `xml:"NUMBER_SPOTS,attr"`
	Edges    []mamutEdge `xml:"Edge"`
}

type mamutEdge struct {
	SourceID int `xml:"SPOT_SOURCE_ID,attr"`
	TargetID int `xml:"SPOT_TARGET_ID,attr"`
}

type filteredTracks struct {
	IDs []filteredTrackID `xml:"TrackID"`
}

type filteredTrackID struct {
	TrackID int `xml:"TRACK_ID,attr"`
}

// cellTrace holds the interpolated spot chain of one exported cell. The
// first and last spot ids anchor the division edges between cells.
type cellTrace struct {
	firstID  int
	lastID   int
	count    int
	minFrame int
	maxFrame int
	edges    []mamutEdge
}

// BuildMaMuT renders a project as TrackMate/MaMuT XML. Every valid cell
// contributes one spot per frame of its lifespan, with missing frames filled
// by linear interpolation. X and Y are scaled by the calibration factor, Z
// by the instrument's fixed slice spacing of 10. Each root cell becomes one
// track covering its whole subtree, and every track is listed as filtered so
// viewers show them without manual selection.
func BuildMaMuT(project domain.Project, calibration float64) ([]byte, error) {
	if calibration <= 0 {
		calibration = 1
	}

	spotID := 1
	maxFrame := project.LastFrame
	traces := make(map[string]*cellTrace)
	perFrame := make(map[int][]mamutSpot)

	for _, cell := range project.Cells {
		if !cell.Valid() {
			continue
		}
		spots := interpolateSpots(cell.Spots)
		trace := &cellTrace{
			firstID:  spotID,
			count:    len(spots),
			minFrame: spots[0].Frame,
			maxFrame: spots[0].Frame,
		}
		for i, spot := range spots {
			if spot.Frame < 0 {
				return nil, fmt.Errorf("cell %s: negative frame %d", cell.Name, spot.Frame)
			}
			perFrame[spot.Frame] = append(perFrame[spot.Frame], mamutSpot{
				ID:         spotID,
				Name:       cell.Name,
				Visibility: 1,
				Radius:     5,
				Quality:    1,
				PositionT:  float64(spot.Frame),
				PositionX:  spot.X * calibration,
				PositionY:  spot.Y * calibration,
				PositionZ:  spot.Z * 10.0,
				Frame:      spot.Frame,
			})
			if i > 0 {
				trace.edges = append(trace.edges, mamutEdge{SourceID: spotID - 1, TargetID: spotID})
			}
			if spot.Frame < trace.minFrame {
				trace.minFrame = spot.Frame
			}
			if spot.Frame > trace.maxFrame {
				trace.maxFrame = spot.Frame
			}
			if spot.Frame > maxFrame {
				maxFrame = spot.Frame
			}
			spotID++
		}
		trace.lastID = spotID - 1
		traces[cell.Name] = trace
	}

	// Viewers expect one SpotsInFrame element per frame of the recording,
	// empty frames included.
	frames := make([]spotsInFrame, 0, maxFrame+1)
	for f := 0; f <= maxFrame; f++ {
		frames = append(frames, spotsInFrame{Frame: f, Spots: perFrame[f]})
	}

	var tracks []mamutTrack
	var filtered []filteredTrackID
	for _, root := range project.Roots() {
		var edges []mamutEdge
		count := 0
		start, stop := -1, 0
		for _, name := range subtreeNames(project, root.Name) {
			trace, ok := traces[name]
			if !ok {
				continue
			}
			cell, _ := project.FindCell(name)
			if parent, ok := traces[cell.ParentName]; ok {
				edges = append(edges, mamutEdge{SourceID: parent.lastID, TargetID: trace.firstID})
			}
			edges = append(edges, trace.edges...)
			count += trace.count
			if start < 0 || trace.minFrame < start {
				start = trace.minFrame
			}
			if trace.maxFrame > stop {
				stop = trace.maxFrame
			}
		}
		if count == 0 {
			continue
		}
		id := len(tracks)
		tracks = append(tracks, mamutTrack{
			Name:     root.Name,
			TrackID:  id,
			Duration: stop - start,
			Start:    start,
			Stop:     stop,
			NSpots:   count,
			Edges:    edges,
		})
		filtered = append(filtered, filteredTrackID{TrackID: id})
	}

	doc := trackMateDoc{
		Version: "0.1",
		Model: trackMateModel{
			SpatialUnits:   "pixels",
			TimeUnits:      "frames",
			AllSpots:       allSpots{NSpots: spotID - 1, Frames: frames},
			AllTracks:      allTracks{Tracks: tracks},
			FilteredTracks: filteredTracks{IDs: filtered},
		},
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal mamut xml: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// subtreeNames lists the root and every reachable descendant in breadth
// first order. Repeated names are visited once so a malformed child graph
// cannot loop the walk.
func subtreeNames(project domain.Project, root string) []string {
	seen := make(map[string]struct{})
	var order []string
	queue := []string{root}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		cell, ok := project.FindCell(name)
		if !ok {
			continue
		}
		order = append(order, name)
		queue = append(queue, cell.Children...)
	}
	return order
}

// interpolateSpots fills every missing frame between consecutive samples by
// linear interpolation. Only strictly ascending gaps are filled; a sample
// whose frame does not advance passes through untouched.
func interpolateSpots(spots []domain.Spot) []domain.Spot {
	if len(spots) == 0 {
		return nil
	}
	out := make([]domain.Spot, 0, len(spots))
	out = append(out, spots[0])
	for i := 1; i < len(spots); i++ {
		prev, next := spots[i-1], spots[i]
		gap := next.Frame - prev.Frame
		for f := prev.Frame + 1; f < next.Frame; f++ {
			t := float64(f-prev.Frame) / float64(gap)
			out = append(out, domain.Spot{
				Frame: f,
				X:     prev.X + (next.X-prev.X)*t,
				Y:     prev.Y + (next.Y-prev.Y)*t,
				Z:     prev.Z + (next.Z-prev.Z)*t,
			})
		}
		out = append(out, next)
	}
	return out
}

// CalibrationFactor returns the spatial calibration stored with a project's
// settings. The canonical location is the CALIBRATION key of the DISC
// section, but older recordings carry the key elsewhere, so every section is
// searched before giving up. Callers decide the fallback when no usable
// value exists.
func CalibrationFactor(project domain.Project) (float64, bool) {
	if value, ok := settingsFloat(project.Settings, calibrationSection, calibrationKey); ok {
		return value, true
	}
	for _, section := range project.Settings {
		if value, ok := settingsFloat(project.Settings, section.Name, calibrationKey); ok {
			return value, true
		}
	}
	return 0, false
}

func settingsFloat(sections []domain.SettingsSection, section, key string) (float64, bool) {
	for _, s := range sections {
		if s.Name != section {
			continue
		}
		for _, opt := range s.Options {
			if opt.Key != key {
				continue
			}
			value, err := strconv.ParseFloat(opt.Value, 64)
			if err != nil {
				return 0, false
			}
			return value, true
		}
	}
	return 0, false
}
