package probes

import "github.com/snapetech/mjrindex/internal/assetpaths"

// Mode selects which tool(s) the router invokes per file.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeExiftool Mode = "exiftool"
	ModeFFprobe  Mode = "ffprobe"
	ModeBoth     Mode = "both"
)

// Router selects which probe(s) to run for a given file, dropping
// unavailable tools from the plan silently (spec §4.3).
type Router struct {
	Mode       Mode
	TagReader  *TagReader
	MediaProbe *MediaProbe
}

// Plan describes which adapters to invoke for one file.
type Plan struct {
	UseTagReader  bool
	UseMediaProbe bool
}

// PlanFor decides which tools to run for kind, given availability and Mode.
func (r *Router) PlanFor(kind assetpaths.Kind) Plan {
	tagAvail := r.TagReader != nil && r.TagReader.IsAvailable()
	probeAvail := r.MediaProbe != nil && r.MediaProbe.IsAvailable()

	mode := r.Mode
	if mode == "" {
		mode = ModeAuto
	}

	switch mode {
	case ModeExiftool:
		return Plan{UseTagReader: tagAvail}
	case ModeFFprobe:
		return Plan{UseMediaProbe: probeAvail}
	case ModeBoth:
		return Plan{UseTagReader: tagAvail, UseMediaProbe: probeAvail}
	default: // auto
		switch kind {
		case assetpaths.KindVideo, assetpaths.KindAudio:
			return Plan{UseTagReader: tagAvail, UseMediaProbe: probeAvail}
		case assetpaths.KindImage:
			if tagAvail {
				return Plan{UseTagReader: true}
			}
			return Plan{UseMediaProbe: probeAvail}
		default:
			return Plan{UseTagReader: tagAvail, UseMediaProbe: probeAvail}
		}
	}
}
