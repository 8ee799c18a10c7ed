package domain

import "time"

// PipelineKind selects the stage graph used for a composite creation.
type PipelineKind string

const (
	// PipelineKindInfluencer builds a synthetic influencer: a base video,
	// reference extraction, then profile image and bodymap in parallel.
	PipelineKindInfluencer PipelineKind = "influencer"
	// PipelineKindVideo is a single-stage video generation.
	PipelineKindVideo PipelineKind = "video"
)

// PipelineStatus mirrors JobStatus at the pipeline level.
type PipelineStatus string

const (
	PipelineStatusRunning PipelineStatus = "running"
	PipelineStatusReady   PipelineStatus = "ready"
	PipelineStatusFailed  PipelineStatus = "failed"
)

// Pipeline groups the stage jobs of one composite creation. ReferenceURL is
// filled once reference extraction settles and lets a resumed pipeline skip
// that stage.
type Pipeline struct {
	ID           string
	UserID       string
	Kind         PipelineKind
	Status       PipelineStatus
	ReferenceURL string
	FailureStage Stage // set when Status is failed
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// stageGraphs maps each stage of a pipeline kind to its predecessor set. A
// stage's job may only be created once every predecessor job is ready.
var stageGraphs = map[PipelineKind]map[Stage][]Stage{
	PipelineKindInfluencer: {
		StageVideo:               {},
		StageReferenceExtraction: {StageVideo},
		StageProfileImage:        {StageReferenceExtraction},
		StageBodymap:             {StageReferenceExtraction},
	},
	PipelineKindVideo: {
		StageSingle: {},
	},
}

// Stages returns every stage of the pipeline kind in dependency order.
func (k PipelineKind) Stages() []Stage {
	switch k {
	case PipelineKindInfluencer:
		return []Stage{StageVideo, StageReferenceExtraction, StageProfileImage, StageBodymap}
	case PipelineKindVideo:
		return []Stage{StageSingle}
	default:
		return nil
	}
}

// Predecessors returns the predecessor set of a stage within the pipeline
// kind. Unknown stages have no predecessors and are never advanced to.
func (k PipelineKind) Predecessors(s Stage) []Stage {
	graph, ok := stageGraphs[k]
	if !ok {
		return nil
	}
	return graph[s]
}

// InitialStages returns the stages with an empty predecessor set.
func (k PipelineKind) InitialStages() []Stage {
	var initial []Stage
	for _, s := range k.Stages() {
		if len(k.Predecessors(s)) == 0 {
			initial = append(initial, s)
		}
	}
	return initial
}

// Successors returns the stages that list s as a predecessor.
func (k PipelineKind) Successors(s Stage) []Stage {
	var out []Stage
	for _, candidate := range k.Stages() {
		for _, pred := range k.Predecessors(candidate) {
			if pred == s {
				out = append(out, candidate)
				break
			}
		}
	}
	return out
}
