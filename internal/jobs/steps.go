package jobs

// Step identifies one checkpoint in the creation pipeline.
type Step string

const (
	StepInitializing          Step = "initializing"
	StepAnalyzing             Step = "analyzing"
	StepGeneratingScript      Step = "generating_script"
	StepDownloadingReferences Step = "downloading_references"
	StepGeneratingVideo       Step = "generating_video"
	StepGeneratingVoice       Step = "generating_voice"
	StepMergingAudio          Step = "merging_audio"
	StepSubtitling            Step = "subtitling"
	StepWatermarking          Step = "watermarking"
	StepScoringMusic          Step = "scoring_music"
	StepUploading             Step = "uploading"
	StepOptimizing            Step = "optimizing"
	StepCompleted             Step = "completed"
)

// StepInfo is the fixed (progress, message) pair assigned to a step.
type StepInfo struct {
	Progress int
	Message  string
}

// stepTable is the single source of truth for valid step names, their
// percentage checkpoints, and the user-facing message shown while the step
// runs.
var stepTable = map[Step]StepInfo{
	StepInitializing:          {Progress: 0, Message: "preparing job"},
	StepAnalyzing:             {Progress: 10, Message: "analyzing product listing"},
	StepGeneratingScript:      {Progress: 20, Message: "writing marketing script"},
	StepDownloadingReferences: {Progress: 30, Message: "fetching reference images"},
	StepGeneratingVideo:       {Progress: 40, Message: "synthesizing video"},
	StepGeneratingVoice:       {Progress: 60, Message: "synthesizing voice-over"},
	StepMergingAudio:          {Progress: 70, Message: "merging voice track"},
	StepSubtitling:            {Progress: 75, Message: "burning subtitles"},
	StepWatermarking:          {Progress: 80, Message: "applying watermark"},
	StepScoringMusic:          {Progress: 85, Message: "mixing background music"},
	StepUploading:             {Progress: 90, Message: "storing final video"},
	StepOptimizing:            {Progress: 95, Message: "finalizing metadata"},
	StepCompleted:             {Progress: 100, Message: "done"},
}

// Lookup returns the table entry for step, reporting false for unknown names.
func Lookup(step Step) (StepInfo, bool) {
	info, ok := stepTable[step]
	return info, ok
}
