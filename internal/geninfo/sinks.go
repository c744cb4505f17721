package geninfo

import (
	"strconv"
	"strings"
)

// sinkClassAllowList names node classes that terminate a pipeline branch —
// the graph's "this is where output leaves the system" nodes. A graph with
// several independent branches (e.g. a base pass and a refiner preview) is
// disambiguated by picking the highest-ranked sink and walking upstream
// from there only.
var sinkClassAllowList = []string{
	"SaveImage", "SaveImageWebsocket", "SaveAnimatedWEBP", "SaveAnimatedPNG",
	"PreviewImage", "VHS_VideoCombine", "VHS_SaveVideo", "SaveVideo",
	"SaveAudio", "SaveAudioMP3", "VAEDecode", "VAEDecodeAudio", "VAEDecodeTiled",
}

func isSinkClass(classType string) bool {
	for _, c := range sinkClassAllowList {
		if classType == c {
			return true
		}
	}
	return strings.HasPrefix(classType, "Save") || strings.HasPrefix(classType, "Preview")
}

// rankedSink is a candidate sink node with a sortable rank: numeric node
// ids sort numerically (later id generally means "added later in the
// authoring session"); non-numeric ids rank below all numeric ones, then
// lexically among themselves, so a tie between a non-integer id and an
// integer id always resolves in favor of the integer one (spec Open
// Question: non-integer ids are a tie-break loser, never a tie-break winner).
type rankedSink struct {
	id      string
	numeric bool
	num     int64
}

func rankSinks(g *Graph) []rankedSink {
	var sinks []rankedSink
	for _, id := range g.Order {
		n := g.Nodes[id]
		if !isSinkClass(n.ClassType) {
			continue
		}
		if num, err := strconv.ParseInt(id, 10, 64); err == nil {
			sinks = append(sinks, rankedSink{id: id, numeric: true, num: num})
		} else {
			sinks = append(sinks, rankedSink{id: id, numeric: false})
		}
	}
	sortSinks(sinks)
	return sinks
}

func sortSinks(sinks []rankedSink) {
	for i := 1; i < len(sinks); i++ {
		for j := i; j > 0 && sinkLess(sinks[j], sinks[j-1]); j-- {
			sinks[j], sinks[j-1] = sinks[j-1], sinks[j]
		}
	}
}

// sinkLess reports whether a should sort before b in ascending rank order
// (last element = top-ranked sink).
func sinkLess(a, b rankedSink) bool {
	if a.numeric != b.numeric {
		return !a.numeric // non-numeric ranks below numeric
	}
	if a.numeric {
		return a.num < b.num
	}
	return a.id < b.id
}

// primarySink returns the highest-ranked sink node id, or "" if the graph
// has none (a media-only pipeline with no terminal save/preview node).
func primarySink(g *Graph) string {
	sinks := rankSinks(g)
	if len(sinks) == 0 {
		return ""
	}
	return sinks[len(sinks)-1].id
}
