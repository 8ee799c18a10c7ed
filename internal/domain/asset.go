package domain

import "time"

// AssetKind enumerates artifact types produced by settled jobs.
type AssetKind string

const (
	AssetKindImage AssetKind = "image"
	AssetKindVideo AssetKind = "video"
)

// Asset is a downstream record of a generated artifact. SourceURL points at
// the provider-hosted result; StorageKey is set when the artifact has been
// mirrored into local storage.
type Asset struct {
	ID         string
	JobID      string
	Kind       AssetKind
	SourceURL  string
	StorageKey string
	Bytes      int64
	CreatedAt  time.Time
}

// KindForStage maps a pipeline stage to the artifact kind it produces.
func KindForStage(s Stage) AssetKind {
	switch s {
	case StageVideo, StageSingle:
		return AssetKindVideo
	default:
		return AssetKindImage
	}
}
