package processor

import (
	"mediafactory/internal/composition"
	"mediafactory/internal/jobs"
	"mediafactory/internal/publish"
)

// Task is everything a worker needs to take a staged job to a terminal
// state. All paths live under WorkDir, which the task owns.
type Task struct {
	JobID       string
	Kind        jobs.Kind
	WorkDir     string
	Title       string
	Description string
	Options     publish.Options
	Thumbnail   *publish.Thumbnail

	Simple      *SimpleInput
	Composition *CompositionInput
}

type SimpleInput struct {
	ImagePath   string
	AudioPath   string
	DurationSec int
}

type CompositionInput struct {
	Manifest   *composition.Manifest
	AssetPaths map[string]string
	AudioPath  string
}
